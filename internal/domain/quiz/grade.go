package quiz

import "errors"

// ErrEmptyQuestionSet is returned when grading is invoked on an empty set.
// A zero score would be indistinguishable from every answer being wrong.
var ErrEmptyQuestionSet = errors.New("cannot grade an empty question set")

// Grade scores answers against set. It is pure: identical inputs always yield
// identical output. Unanswered positions count as incorrect.
func Grade(set QuestionSet, answers AnswerRecord) (GradingResult, error) {
	if len(set) == 0 {
		return GradingResult{}, ErrEmptyQuestionSet
	}

	results := make([]QuestionResult, len(set))
	correct := 0
	for i, q := range set {
		selected, answered := answers[i]
		want := OptionLabel(q.CorrectAnswer)
		ok := answered && selected != "" && selected == want
		if ok {
			correct++
		}
		results[i] = QuestionResult{
			QuestionID:    q.ID,
			Text:          q.Text,
			UserAnswer:    selected,
			CorrectAnswer: want,
			IsCorrect:     ok,
			Explanation:   q.Explanation,
		}
	}

	return GradingResult{
		Score:     float64(correct) / float64(len(set)),
		Correct:   correct,
		Total:     len(set),
		Questions: results,
	}, nil
}
