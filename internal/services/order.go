package services

import "fmt"

// IndexError reports a position outside the current question order.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range for %d questions", e.Index, e.Len)
}

// Reorder returns a copy of list with the element at from moved to to.
// The relative order of all other elements is preserved.
func Reorder[T any](list []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(list) {
		return nil, &IndexError{Index: from, Len: len(list)}
	}
	if to < 0 || to >= len(list) {
		return nil, &IndexError{Index: to, Len: len(list)}
	}
	out := make([]T, 0, len(list))
	moved := list[from]
	for i, v := range list {
		if i != from {
			out = append(out, v)
		}
	}
	out = append(out, moved)
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = moved
	return out, nil
}

// Reconcile keeps the ids of order that are still enabled, in their relative order,
// and appends newly enabled ids in ascending slot number.
func Reconcile(order []SlotID, enabled []SlotID) []SlotID {
	on := make(map[SlotID]bool, len(enabled))
	for _, id := range enabled {
		on[id] = true
	}
	out := make([]SlotID, 0, len(enabled))
	seen := make(map[SlotID]bool, len(enabled))
	for _, id := range order {
		if on[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	rest := make([]bool, SlotCount)
	for _, id := range enabled {
		if id.Valid() && !seen[id] {
			rest[id] = true
		}
	}
	for i, add := range rest {
		if add {
			out = append(out, SlotID(i))
		}
	}
	return out
}

// ValidateOrder checks that order is a permutation of exactly the enabled slots.
func ValidateOrder(order []SlotID, slots Slots) error {
	seen := make(map[SlotID]bool, len(order))
	for _, id := range order {
		if !slots.IsEnabled(id) {
			return NewFieldError("order", id.String()+" is not an enabled field")
		}
		if seen[id] {
			return NewFieldError("order", id.String()+" appears more than once")
		}
		seen[id] = true
	}
	if len(seen) != slots.Summary().Total {
		return NewFieldError("order", "must list every enabled field")
	}
	return nil
}

// OrderStrings is the persisted form of a question order.
func OrderStrings(order []SlotID) []string {
	out := make([]string, 0, len(order))
	for _, id := range order {
		out = append(out, id.String())
	}
	return out
}

// HealOrder rebuilds a question order from its persisted form. Unparseable, duplicate and
// disabled ids are dropped and returned so the caller can report them; enabled slots missing
// from the stored order are appended.
func HealOrder(stored []string, slots Slots) ([]SlotID, []string) {
	var dropped []string
	parsed := make([]SlotID, 0, len(stored))
	seen := map[SlotID]bool{}
	for _, raw := range stored {
		id, err := ParseSlotID(raw)
		if err != nil || !slots.IsEnabled(id) || seen[id] {
			dropped = append(dropped, raw)
			continue
		}
		seen[id] = true
		parsed = append(parsed, id)
	}
	return Reconcile(parsed, slots.Enabled()), dropped
}
