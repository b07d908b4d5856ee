package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxShortTextLen = 255
	maxLongTextLen  = 10000
)

// Answer is one typed value; which field is meaningful depends on Kind.
type Answer struct {
	Kind    SlotKind
	Text    string
	Number  int64
	Checked bool
}

func (a Answer) Value() any {
	switch a.Kind {
	case KindInteger:
		return a.Number
	case KindCheckbox:
		return a.Checked
	default:
		return a.Text
	}
}

func (a Answer) MarshalJSON() ([]byte, error) { return json.Marshal(a.Value()) }

// Equal compares against an expected value decoded from JSON (used by quiz scoring).
func (a Answer) Equal(expected json.RawMessage) bool {
	want, err := decodeAnswer(a.Kind, expected)
	if err != nil {
		return false
	}
	switch a.Kind {
	case KindInteger:
		return a.Number == want.Number
	case KindCheckbox:
		return a.Checked == want.Checked
	default:
		return strings.EqualFold(strings.TrimSpace(a.Text), strings.TrimSpace(want.Text))
	}
}

type Answers map[SlotID]Answer

func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// UnmarshalJSON decodes stored answers; the slot id decides the value type.
func (a *Answers) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Answers, len(raw))
	for key, v := range raw {
		id, err := ParseSlotID(key)
		if err != nil {
			return err
		}
		ans, err := decodeAnswer(id.Kind(), v)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		out[id] = ans
	}
	*a = out
	return nil
}

// ParseAnswers validates submitted values against the template's enabled slots.
func ParseAnswers(raw map[string]json.RawMessage, slots Slots) (Answers, error) {
	out := make(Answers, len(raw))
	for key, v := range raw {
		id, err := ParseSlotID(key)
		if err != nil {
			return nil, NewFieldError(key, "unknown field slot")
		}
		if !slots.IsEnabled(id) {
			return nil, NewFieldError(id.String(), "field is not enabled on this template")
		}
		if isJSONNull(v) {
			continue
		}
		ans, err := decodeAnswer(id.Kind(), v)
		if err != nil {
			return nil, NewFieldError(id.String(), err.Error())
		}
		out[id] = ans
	}
	return out, nil
}

func isJSONNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func decodeAnswer(kind SlotKind, v json.RawMessage) (Answer, error) {
	ans := Answer{Kind: kind}
	switch kind {
	case KindShortText, KindLongText:
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ans, fmt.Errorf("expected text")
		}
		limit := maxShortTextLen
		if kind == KindLongText {
			limit = maxLongTextLen
		}
		if utf8.RuneCountInString(s) > limit {
			return ans, fmt.Errorf("longer than %d characters", limit)
		}
		ans.Text = s
	case KindInteger:
		var f json.Number
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var tok any
		if err := dec.Decode(&tok); err != nil {
			return ans, fmt.Errorf("expected integer")
		}
		switch t := tok.(type) {
		case json.Number:
			f = t
		case string:
			f = json.Number(strings.TrimSpace(t))
		default:
			return ans, fmt.Errorf("expected integer")
		}
		n, err := strconv.ParseInt(f.String(), 10, 64)
		if err != nil {
			fl, ferr := f.Float64()
			if ferr != nil || fl != math.Trunc(fl) || math.Abs(fl) > math.MaxInt64/2 {
				return ans, fmt.Errorf("expected integer")
			}
			n = int64(fl)
		}
		ans.Number = n
	case KindCheckbox:
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			var s string
			if serr := json.Unmarshal(v, &s); serr != nil {
				return ans, fmt.Errorf("expected boolean")
			}
			pb, perr := strconv.ParseBool(strings.TrimSpace(s))
			if perr != nil {
				return ans, fmt.Errorf("expected boolean")
			}
			b = pb
		}
		ans.Checked = b
	default:
		return ans, fmt.Errorf("unknown slot kind")
	}
	return ans, nil
}
