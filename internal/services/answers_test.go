package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizSlots() Slots {
	s := EmptySlots()
	for _, id := range ids("shortText#1", "longText#1", "integer#1", "checkbox#1") {
		s[id].Enabled = true
	}
	return s
}

func raw(m map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = json.RawMessage(v)
	}
	return out
}

func TestParseAnswers(t *testing.T) {
	got, err := ParseAnswers(raw(map[string]string{
		"shortText#1": `"Paris"`,
		"longText1":   `"a longer story"`,
		"integer#1":   `"42"`,
		"checkbox#1":  `true`,
	}), quizSlots())
	require.NoError(t, err)
	assert.Equal(t, Answers{
		0:  {Kind: KindShortText, Text: "Paris"},
		4:  {Kind: KindLongText, Text: "a longer story"},
		8:  {Kind: KindInteger, Number: 42},
		12: {Kind: KindCheckbox, Checked: true},
	}, got)
}

func TestParseAnswersRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown slot":      {"radio#1": `"x"`},
		"disabled slot":     {"shortText#2": `"x"`},
		"text for integer":  {"integer#1": `"many"`},
		"fraction":          {"integer#1": `1.5`},
		"number for text":   {"shortText#1": `7`},
		"bad checkbox":      {"checkbox#1": `"maybe"`},
		"short text length": {"shortText#1": `"` + strings.Repeat("x", maxShortTextLen+1) + `"`},
	}
	for name, in := range cases {
		_, err := ParseAnswers(raw(in), quizSlots())
		assert.True(t, HasCode(err, ErrorInvalid), "%s: %v", name, err)
	}
}

func TestParseAnswersSkipsNull(t *testing.T) {
	got, err := ParseAnswers(raw(map[string]string{"shortText#1": `null`, "integer#1": `3`}), quizSlots())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAnswersJSON(t *testing.T) {
	a := Answers{0: {Kind: KindShortText, Text: "hi"}, 8: {Kind: KindInteger, Number: -3}, 12: {Kind: KindCheckbox}}
	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shortText#1":"hi","integer#1":-3,"checkbox#1":false}`, string(b))

	var back Answers
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, a, back)
}

func TestScoreAnswers(t *testing.T) {
	slots := quizSlots()
	answers := Answers{
		0:  {Kind: KindShortText, Text: " paris "},
		8:  {Kind: KindInteger, Number: 4},
		12: {Kind: KindCheckbox, Checked: false},
	}
	criteria := `{"shortText#1":"Paris","integer#1":5,"checkbox#1":false,"longText#1":"x","checkbox#4":true}`
	score, max, ok := ScoreAnswers(criteria, slots, answers)
	require.True(t, ok)
	assert.Equal(t, 2, score)
	assert.Equal(t, 4, max, "criteria on disabled slots are ignored")

	_, _, ok = ScoreAnswers("not json", slots, answers)
	assert.False(t, ok)
	_, _, ok = ScoreAnswers("  ", slots, answers)
	assert.False(t, ok)
}
