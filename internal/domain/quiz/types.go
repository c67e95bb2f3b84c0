// Package quiz holds the practice-quiz data model and the grading engine.
package quiz

import (
	"strings"
	"time"
)

// Question is one multiple-choice item of a generated question set.
// Options are textually prefixed with their label, e.g. "A) Paris".
type Question struct {
	ID            string   `json:"id,omitempty"          yaml:"id,omitempty"`
	Text          string   `json:"text"                  yaml:"text"`
	Options       []string `json:"options"               yaml:"options"`
	CorrectAnswer string   `json:"correct_answer"        yaml:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// QuestionSet is an ordered sequence of questions.
type QuestionSet []Question

// AnswerRecord maps a question position to the label the user selected.
type AnswerRecord map[int]string

// QuestionResult is the per-question outcome. Field names match the feedback
// entries the server records for real quiz attempts.
type QuestionResult struct {
	QuestionID    string `json:"question_id,omitempty"`
	Text          string `json:"text"`
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
}

// GradingResult is built once at submission time and not mutated afterwards.
type GradingResult struct {
	Score     float64          `json:"score"`
	Correct   int              `json:"correct"`
	Total     int              `json:"total"`
	Questions []QuestionResult `json:"questions"`
}

// Percent returns the score as a whole-number percentage.
func (r GradingResult) Percent() int {
	return int(r.Score*100 + 0.5)
}

// OptionLabel returns the label prefix of an option such as "B) Berlin".
// The label is the first non-space character.
func OptionLabel(option string) string {
	s := strings.TrimSpace(option)
	if s == "" {
		return ""
	}
	return string([]rune(s)[0])
}

// AttemptKind discriminates attempt payloads returned by the backend.
type AttemptKind string

const (
	AttemptReal     AttemptKind = "real"
	AttemptPractice AttemptKind = "practice"
)

// AttemptResult is a recorded attempt, either for a stored quiz or for a
// dashboard-generated practice quiz.
type AttemptResult struct {
	ID          string            `json:"id"`
	Kind        AttemptKind       `json:"kind"`
	QuizID      string            `json:"quiz_id"`
	Score       float64           `json:"score"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Responses   map[string]string `json:"responses,omitempty"`
	Questions   []QuestionResult  `json:"questions,omitempty"`
}

// PracticeAttempt is the payload for recording a client-graded practice attempt.
type PracticeAttempt struct {
	QuizType  string           `json:"quiz_type"`
	Score     float64          `json:"score"`
	Questions []QuestionResult `json:"questions"`
}
