package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SlotKind is the value type a field slot collects.
type SlotKind int

const (
	KindShortText SlotKind = iota
	KindLongText
	KindInteger
	KindCheckbox
)

const (
	SlotsPerKind = 4
	KindCount    = 4
	SlotCount    = SlotsPerKind * KindCount

	maxLabelLen = 500
)

var kindNames = [KindCount]string{"shortText", "longText", "integer", "checkbox"}

func (k SlotKind) String() string {
	if k < 0 || int(k) >= KindCount {
		return "unknown"
	}
	return kindNames[k]
}

func ParseSlotKind(s string) (SlotKind, bool) {
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			return SlotKind(i), true
		}
	}
	return 0, false
}

func (k SlotKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *SlotKind) UnmarshalText(b []byte) error {
	v, ok := ParseSlotKind(string(b))
	if !ok {
		return fmt.Errorf("unknown slot kind %q", string(b))
	}
	*k = v
	return nil
}

// SlotID is the slot number 0..15; kinds occupy consecutive blocks of four.
// Its text form is "<kind>#<n>" with n in 1..4.
type SlotID int

func NewSlotID(kind SlotKind, n int) SlotID {
	return SlotID(int(kind)*SlotsPerKind + n - 1)
}

func (id SlotID) Valid() bool    { return id >= 0 && int(id) < SlotCount }
func (id SlotID) Kind() SlotKind { return SlotKind(int(id) / SlotsPerKind) }
func (id SlotID) N() int         { return int(id)%SlotsPerKind + 1 }

func (id SlotID) String() string {
	if !id.Valid() {
		return "invalid#" + strconv.Itoa(int(id))
	}
	return id.Kind().String() + "#" + strconv.Itoa(id.N())
}

// ParseSlotID accepts "shortText#2" and the compact "shortText2".
func ParseSlotID(s string) (SlotID, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 || i == len(s)-1 {
		return 0, fmt.Errorf("invalid slot id %q", s)
	}
	name := s[:i+1]
	name = strings.TrimSuffix(name, "#")
	kind, ok := ParseSlotKind(name)
	if !ok {
		return 0, fmt.Errorf("invalid slot id %q", s)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 1 || n > SlotsPerKind {
		return 0, fmt.Errorf("invalid slot id %q", s)
	}
	return NewSlotID(kind, n), nil
}

func (id SlotID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid slot number %d", int(id))
	}
	return []byte(id.String()), nil
}

func (id *SlotID) UnmarshalText(b []byte) error {
	v, err := ParseSlotID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

type Slot struct {
	Kind    SlotKind
	Enabled bool
	Label   string
}

// Slots is the fixed field-slot state of a template, indexed by SlotID.
type Slots [SlotCount]Slot

// EmptySlots returns all sixteen slots disabled, with kinds filled in.
func EmptySlots() Slots {
	var s Slots
	for i := range s {
		s[i].Kind = SlotID(i).Kind()
	}
	return s
}

func (s Slots) IsEnabled(id SlotID) bool {
	return id.Valid() && s[id].Enabled
}

// Enabled lists enabled slot ids in ascending slot number.
func (s Slots) Enabled() []SlotID {
	out := make([]SlotID, 0, SlotCount)
	for i := range s {
		if s[i].Enabled {
			out = append(out, SlotID(i))
		}
	}
	return out
}

type SlotSummary struct {
	PerKind [KindCount]int `json:"per_kind"`
	Total   int            `json:"total"`
}

// CanAdd reports whether another slot of kind can still be enabled.
func (ss SlotSummary) CanAdd(kind SlotKind) bool {
	return kind >= 0 && int(kind) < KindCount && ss.PerKind[kind] < SlotsPerKind
}

func (s Slots) Summary() SlotSummary {
	var ss SlotSummary
	for i := range s {
		if s[i].Enabled {
			ss.PerKind[SlotID(i).Kind()]++
			ss.Total++
		}
	}
	return ss
}

// ValidateSlots enforces the one invariant of the slot model: at least one enabled slot.
func ValidateSlots(s Slots) error {
	if s.Summary().Total == 0 {
		return NewFieldError("slots", "at least one field must be enabled")
	}
	return nil
}

type SlotChange struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
}

// ApplySlots overlays changes on current and returns the canonical state.
// Labels are trimmed. A disabled slot never keeps a label: any label sent for it is ignored.
func ApplySlots(current Slots, changes map[string]SlotChange) (Slots, SlotSummary, error) {
	next := current
	for i := range next {
		next[i].Kind = SlotID(i).Kind()
	}
	for key, ch := range changes {
		id, err := ParseSlotID(key)
		if err != nil {
			return current, SlotSummary{}, NewFieldError(key, "unknown field slot")
		}
		if !ch.Enabled {
			next[id].Enabled = false
			next[id].Label = ""
			continue
		}
		label := strings.TrimSpace(ch.Label)
		if utf8.RuneCountInString(label) > maxLabelLen {
			return current, SlotSummary{}, NewFieldError(id.String(), fmt.Sprintf("label longer than %d characters", maxLabelLen))
		}
		next[id].Enabled = true
		next[id].Label = label
	}
	for i := range next {
		if !next[i].Enabled {
			next[i].Label = ""
		}
	}
	if err := ValidateSlots(next); err != nil {
		return current, SlotSummary{}, err
	}
	return next, next.Summary(), nil
}

type slotJSON struct {
	ID      SlotID   `json:"id"`
	Kind    SlotKind `json:"kind"`
	Enabled bool     `json:"enabled"`
	Label   string   `json:"label,omitempty"`
}

func (s Slots) MarshalJSON() ([]byte, error) {
	out := make([]slotJSON, 0, SlotCount)
	for i := range s {
		out = append(out, slotJSON{ID: SlotID(i), Kind: SlotID(i).Kind(), Enabled: s[i].Enabled, Label: s[i].Label})
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any subset of slots; missing ones are disabled.
func (s *Slots) UnmarshalJSON(b []byte) error {
	var in []slotJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	next := EmptySlots()
	for _, sl := range in {
		if !sl.ID.Valid() {
			return fmt.Errorf("invalid slot number %d", int(sl.ID))
		}
		next[sl.ID].Enabled = sl.Enabled
		if sl.Enabled {
			next[sl.ID].Label = sl.Label
		}
	}
	*s = next
	return nil
}
