package services

import (
	"encoding/json"
	"strings"
)

// ScoreAnswers grades answers against a quiz's scoring criteria, a JSON object mapping slot ids
// to expected values. Criteria on slots that are not enabled are ignored. ok is false when the
// criteria cannot be parsed; the submission still goes through unscored.
func ScoreAnswers(criteria string, slots Slots, answers Answers) (score, max int, ok bool) {
	if strings.TrimSpace(criteria) == "" {
		return 0, 0, false
	}
	var expected map[string]json.RawMessage
	if err := json.Unmarshal([]byte(criteria), &expected); err != nil {
		return 0, 0, false
	}
	for key, want := range expected {
		id, err := ParseSlotID(key)
		if err != nil || !slots.IsEnabled(id) {
			continue
		}
		max++
		if got, present := answers[id]; present && got.Equal(want) {
			score++
		}
	}
	return score, max, true
}
