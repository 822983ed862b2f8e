package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestEntityTemporalClassification(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	tomorrow := now.AddDate(0, 0, 1)

	t.Run("ended yesterday is past, not current", func(t *testing.T) {
		e := &Entity{EndDate: datePtr(yesterday)}
		assert.True(t, e.IsPast(now))
		assert.False(t, e.IsCurrent(now))
	})

	t.Run("no end date is current regardless of past start", func(t *testing.T) {
		e := &Entity{StartDate: datePtr(now.AddDate(-5, 0, 0))}
		assert.True(t, e.IsCurrent(now))
		assert.False(t, e.IsPast(now))
		assert.False(t, e.IsFuture(now))
	})

	t.Run("starts tomorrow is future", func(t *testing.T) {
		e := &Entity{StartDate: datePtr(tomorrow)}
		assert.True(t, e.IsFuture(now))
	})

	t.Run("ends today is still current", func(t *testing.T) {
		e := &Entity{EndDate: datePtr(now)}
		assert.True(t, e.IsCurrent(now))
		assert.False(t, e.IsPast(now))
	})
}

func TestEntityActiveDuring(t *testing.T) {
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	t.Run("open window overlaps everything", func(t *testing.T) {
		e := &Entity{}
		assert.True(t, e.ActiveDuring(jan, dec))
	})

	t.Run("window inside range overlaps", func(t *testing.T) {
		e := &Entity{StartDate: datePtr(jan), EndDate: datePtr(jun)}
		assert.True(t, e.ActiveDuring(jan, dec))
	})

	t.Run("window ending before range start does not overlap", func(t *testing.T) {
		e := &Entity{EndDate: datePtr(jan)}
		assert.False(t, e.ActiveDuring(jun, dec))
	})

	t.Run("window starting after range end does not overlap", func(t *testing.T) {
		e := &Entity{StartDate: datePtr(dec)}
		assert.False(t, e.ActiveDuring(jan, jun))
	})

	t.Run("boundary touch counts as overlap", func(t *testing.T) {
		e := &Entity{StartDate: datePtr(jun)}
		assert.True(t, e.ActiveDuring(jan, jun))
	})
}
