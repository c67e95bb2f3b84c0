package quiz

import (
	"fmt"
	"strings"
	"unicode"
)

// LabelOptions prefixes unlabeled options with "A) ", "B) ", ... and rewrites CorrectAnswer to the
// labeled option it names. Questions whose options already carry labels are returned unchanged.
func LabelOptions(q Question) Question {
	if len(q.Options) == 0 || hasLabels(q.Options) {
		return q
	}

	out := q
	out.Options = make([]string, len(q.Options))
	answer := strings.TrimSpace(q.CorrectAnswer)
	for i, opt := range q.Options {
		labeled := fmt.Sprintf("%c) %s", 'A'+rune(i), strings.TrimSpace(opt))
		out.Options[i] = labeled
		if strings.EqualFold(strings.TrimSpace(opt), answer) {
			out.CorrectAnswer = labeled
		}
	}
	return out
}

// LabelSet applies LabelOptions to every question.
func LabelSet(set QuestionSet) QuestionSet {
	out := make(QuestionSet, len(set))
	for i, q := range set {
		out[i] = LabelOptions(q)
	}
	return out
}

// hasLabels reports whether options read "A) ...", "B) ..." in order.
func hasLabels(options []string) bool {
	for i, opt := range options {
		r := []rune(strings.TrimSpace(opt))
		if len(r) < 2 || unicode.ToUpper(r[0]) != 'A'+rune(i) || r[1] != ')' {
			return false
		}
	}
	return true
}
