package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributeBagPromote(t *testing.T) {
	t.Run("promotes email and phone aliases", func(t *testing.T) {
		bag := AttributeBag{
			"work_email": "jane@example.com",
			"mobile":     "+1 555 0100",
			"team":       "Platform",
		}
		email, phone, rest := bag.Promote()
		assert.Equal(t, "jane@example.com", email)
		assert.Equal(t, "+1 555 0100", phone)
		assert.Equal(t, AttributeBag{"team": "Platform"}, rest)
	})

	t.Run("alias matching is case-insensitive", func(t *testing.T) {
		bag := AttributeBag{"E-Mail": "a@b.c"}
		email, _, rest := bag.Promote()
		assert.Equal(t, "a@b.c", email)
		assert.Empty(t, rest)
	})

	t.Run("empty alias values are not promoted", func(t *testing.T) {
		bag := AttributeBag{"email": "", "title": "Engineer"}
		email, phone, rest := bag.Promote()
		assert.Empty(t, email)
		assert.Empty(t, phone)
		assert.Equal(t, AttributeBag{"title": "Engineer"}, rest)
	})

	t.Run("does not modify receiver", func(t *testing.T) {
		bag := AttributeBag{"email": "a@b.c"}
		bag.Promote()
		assert.Len(t, bag, 1)
	})
}

func TestAttributeBagMerge(t *testing.T) {
	existing := AttributeBag{"title": "Senior Engineer", "team": "Platform"}

	t.Run("raw merge overwrites existing keys", func(t *testing.T) {
		merged := existing.Merge(AttributeBag{"title": "Engineer"})
		assert.Equal(t, "Engineer", merged["title"])
		assert.Equal(t, "Platform", merged["team"])
	})

	t.Run("raw merge leaves receiver untouched", func(t *testing.T) {
		existing.Merge(AttributeBag{"title": "x"})
		assert.Equal(t, "Senior Engineer", existing["title"])
	})
}

func TestAttributeBagMergeNonDestructive(t *testing.T) {
	cmp := LengthComparator{}

	t.Run("less specific incoming value does not downgrade", func(t *testing.T) {
		existing := AttributeBag{"title": "Senior Engineer", "team": "Platform"}
		merged := existing.MergeNonDestructive(AttributeBag{"title": "Engineer"}, cmp)
		assert.Equal(t, "Senior Engineer", merged["title"])
		assert.Equal(t, "Platform", merged["team"])
	})

	t.Run("more specific incoming value replaces", func(t *testing.T) {
		existing := AttributeBag{"title": "Engineer"}
		merged := existing.MergeNonDestructive(AttributeBag{"title": "Staff Engineer"}, cmp)
		assert.Equal(t, "Staff Engineer", merged["title"])
	})

	t.Run("ties keep the existing value", func(t *testing.T) {
		existing := AttributeBag{"city": "Lyon"}
		merged := existing.MergeNonDestructive(AttributeBag{"city": "Oslo"}, cmp)
		assert.Equal(t, "Lyon", merged["city"])
	})

	t.Run("new keys are always added", func(t *testing.T) {
		existing := AttributeBag{"title": "Engineer"}
		merged := existing.MergeNonDestructive(AttributeBag{"pronouns": "they/them"}, cmp)
		assert.Equal(t, "they/them", merged["pronouns"])
		assert.Len(t, merged, 2)
	})

	t.Run("output never loses existing keys", func(t *testing.T) {
		existing := AttributeBag{"a": "1", "b": "2", "c": "3"}
		merged := existing.MergeNonDestructive(AttributeBag{"a": ""}, cmp)
		assert.Len(t, merged, 3)
		assert.Equal(t, "1", merged["a"])
	})
}
