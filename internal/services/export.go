package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"
)

// ExportResponsesCSV renders a wide CSV: one row per response, one column per enabled field in
// question order. Headers use the slot id and label, e.g. "shortText#1 Name".
func ExportResponsesCSV(t *Template, responses []*Response) ([]byte, error) {
	order := t.Order
	if len(order) == 0 {
		order = t.Slots.Enabled()
	}
	sorted := append([]*Response(nil), responses...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt) })

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"response_id", "submitter_id", "submitted_at"}
	if t.IsQuiz {
		header = append(header, "score", "max_score")
	}
	for _, id := range order {
		col := id.String()
		if label := t.Slots[id].Label; label != "" {
			col += " " + label
		}
		header = append(header, col)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range sorted {
		row := []string{r.ID, r.SubmitterID, r.SubmittedAt.UTC().Format(time.RFC3339)}
		if t.IsQuiz {
			row = append(row, optInt(r.Score), optInt(r.MaxScore))
		}
		for _, id := range order {
			row = append(row, answerCell(r.Answers, id))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func answerCell(answers Answers, id SlotID) string {
	a, ok := answers[id]
	if !ok {
		return ""
	}
	switch a.Kind {
	case KindInteger:
		return strconv.FormatInt(a.Number, 10)
	case KindCheckbox:
		return strconv.FormatBool(a.Checked)
	default:
		return a.Text
	}
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
