package model

import (
	"strings"
)

// SlotResult is the outcome of one redundant upstream query. A slot either
// carries an answer or an error; callers must check OK before using Answer.
type SlotResult struct {
	Slot   int
	Answer string
	Err    error
}

// OK reports whether the slot produced a usable answer.
func (s SlotResult) OK() bool {
	return s.Err == nil && strings.TrimSpace(s.Answer) != ""
}

// Answers returns the usable answers in slot order.
func Answers(slots []SlotResult) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.OK() {
			out = append(out, s.Answer)
		}
	}
	return out
}
