package types

import (
	"fmt"
	"strings"
)

// AttributeBag is an open key-value bag attached to entities. Values are
// restricted in practice to JSON-representable types (string, number, bool,
// nil, nested map); merge logic compares them through their string forms
// rather than via reflection.
type AttributeBag map[string]interface{}

// emailAliases are attribute keys promoted to the entity's email column.
var emailAliases = map[string]bool{
	"email":         true,
	"mail":          true,
	"email_address": true,
	"e-mail":        true,
	"work_email":    true,
}

// phoneAliases are attribute keys promoted to the entity's phone column.
var phoneAliases = map[string]bool{
	"phone":        true,
	"phone_number": true,
	"tel":          true,
	"telephone":    true,
	"mobile":       true,
	"cell":         true,
	"work_phone":   true,
}

// Promote splits the bag into promoted contact fields and the remaining
// open attributes. Keys matching an email alias set the email result; keys
// matching a phone alias set the phone result. The receiver is not modified.
func (b AttributeBag) Promote() (email, phone string, rest AttributeBag) {
	rest = make(AttributeBag, len(b))
	for key, value := range b {
		normalized := strings.ToLower(strings.TrimSpace(key))
		str := stringValue(value)
		switch {
		case emailAliases[normalized] && str != "":
			email = str
		case phoneAliases[normalized] && str != "":
			phone = str
		default:
			rest[key] = value
		}
	}
	return email, phone, rest
}

// Merge overwrites the receiver's entries with those from incoming: new keys
// are added, existing keys are replaced. This is the raw merge used by
// FindOrCreateEntity; callers needing non-destructive reconciliation use
// MergeNonDestructive instead.
func (b AttributeBag) Merge(incoming AttributeBag) AttributeBag {
	merged := b.clone()
	for key, value := range incoming {
		merged[key] = value
	}
	return merged
}

// MergeNonDestructive reconciles the receiver (existing record) with the
// incoming bag under the rule that existing values are never downgraded:
// an existing key is only replaced when the comparator judges the incoming
// value strictly more informative. Ties keep the existing value. New keys
// are always added. The result never carries less information than the
// receiver alone.
func (b AttributeBag) MergeNonDestructive(incoming AttributeBag, cmp SpecificityComparator) AttributeBag {
	merged := b.clone()
	for key, newValue := range incoming {
		oldValue, exists := merged[key]
		if !exists {
			merged[key] = newValue
			continue
		}
		if cmp.IsMoreSpecific(oldValue, newValue) {
			merged[key] = newValue
		}
	}
	return merged
}

func (b AttributeBag) clone() AttributeBag {
	out := make(AttributeBag, len(b))
	for key, value := range b {
		out[key] = value
	}
	return out
}

// SpecificityComparator judges whether a new value carries strictly more
// information than the old one. Pluggable so the length heuristic can later
// be swapped for an LLM-assisted judgment without touching the merge
// algorithm.
type SpecificityComparator interface {
	IsMoreSpecific(oldValue, newValue interface{}) bool
}

// LengthComparator treats string length as a proxy for specificity: the new
// value wins only when its string form is strictly longer than the old one.
type LengthComparator struct{}

// IsMoreSpecific implements SpecificityComparator.
func (LengthComparator) IsMoreSpecific(oldValue, newValue interface{}) bool {
	return len(stringValue(newValue)) > len(stringValue(oldValue))
}

// stringValue renders an attribute value for comparison and promotion.
func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
