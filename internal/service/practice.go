package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/target/companion-client/internal/domain/quiz"
)

var (
	// ErrAlreadySubmitted is returned when answers change, or grading runs again, after submission.
	ErrAlreadySubmitted = errors.New("practice quiz already submitted")
	// ErrNotSubmitted is returned when a result is requested before submission.
	ErrNotSubmitted = errors.New("practice quiz not submitted")
	// ErrUnknownOption is returned when a selected label is not one of the question's options.
	ErrUnknownOption = errors.New("unknown option")
)

// DefaultPracticeQuizType tags practice attempts recorded with the backend.
const DefaultPracticeQuizType = "practice"

// PracticeSession holds answers for a client-graded practice quiz. The grading result is computed
// once on Submit and stays fixed until Retry. It is not safe for concurrent use.
type PracticeSession struct {
	quizType  string
	questions quiz.QuestionSet
	answers   quiz.AnswerRecord
	result    *quiz.GradingResult
}

// NewPracticeSession labels the question options and starts with no answers.
func NewPracticeSession(quizType string, set quiz.QuestionSet) (*PracticeSession, error) {
	if len(set) == 0 {
		return nil, quiz.ErrEmptyQuestionSet
	}
	if strings.TrimSpace(quizType) == "" {
		quizType = DefaultPracticeQuizType
	}
	return &PracticeSession{
		quizType:  quizType,
		questions: quiz.LabelSet(set),
		answers:   make(quiz.AnswerRecord),
	}, nil
}

// Questions returns the labeled question set.
func (s *PracticeSession) Questions() quiz.QuestionSet {
	return append(quiz.QuestionSet(nil), s.questions...)
}

// Select records label as the answer for the question at index, replacing any earlier choice.
func (s *PracticeSession) Select(index int, label string) error {
	if s.result != nil {
		return ErrAlreadySubmitted
	}
	if index < 0 || index >= len(s.questions) {
		return fmt.Errorf("question %d: out of range [0,%d)", index, len(s.questions))
	}
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, opt := range s.questions[index].Options {
		if quiz.OptionLabel(opt) == label {
			s.answers[index] = label
			return nil
		}
	}
	return fmt.Errorf("question %d: %w %q", index, ErrUnknownOption, label)
}

// Answered returns how many questions have an answer.
func (s *PracticeSession) Answered() int {
	return len(s.answers)
}

// Answers returns a copy of the current answers.
func (s *PracticeSession) Answers() quiz.AnswerRecord {
	out := make(quiz.AnswerRecord, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Submit grades the current answers. Unanswered questions count as incorrect.
func (s *PracticeSession) Submit() (quiz.GradingResult, error) {
	if s.result != nil {
		return quiz.GradingResult{}, ErrAlreadySubmitted
	}
	res, err := quiz.Grade(s.questions, s.answers)
	if err != nil {
		return quiz.GradingResult{}, err
	}
	s.result = &res
	return res, nil
}

// Result returns the submitted grading result.
func (s *PracticeSession) Result() (quiz.GradingResult, bool) {
	if s.result == nil {
		return quiz.GradingResult{}, false
	}
	return *s.result, true
}

// Retry discards the result and the answers so the quiz can be taken again.
func (s *PracticeSession) Retry() {
	s.result = nil
	s.answers = make(quiz.AnswerRecord)
}

// ToPracticeAttempt builds the payload that records the submitted attempt with the backend.
func (s *PracticeSession) ToPracticeAttempt() (quiz.PracticeAttempt, error) {
	if s.result == nil {
		return quiz.PracticeAttempt{}, ErrNotSubmitted
	}
	return quiz.PracticeAttempt{
		QuizType:  s.quizType,
		Score:     s.result.Score,
		Questions: append([]quiz.QuestionResult(nil), s.result.Questions...),
	}, nil
}
