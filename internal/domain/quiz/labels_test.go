package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelOptions_AddsLabelsAndRewritesAnswer(t *testing.T) {
	q := Question{
		Text:          "Capital of France?",
		Options:       []string{"Berlin", " Paris ", "Rome"},
		CorrectAnswer: "paris",
	}
	got := LabelOptions(q)

	assert.Equal(t, []string{"A) Berlin", "B) Paris", "C) Rome"}, got.Options)
	assert.Equal(t, "B) Paris", got.CorrectAnswer)
	assert.Equal(t, []string{"Berlin", " Paris ", "Rome"}, q.Options, "input is not mutated")

	res, err := Grade(QuestionSet{got}, AnswerRecord{0: "B"})
	require.NoError(t, err)
	assert.True(t, res.Questions[0].IsCorrect)
}

func TestLabelOptions_KeepsLabeledQuestions(t *testing.T) {
	q := Question{Options: []string{"A) one", "B) two"}, CorrectAnswer: "B) two"}
	assert.Equal(t, q, LabelOptions(q))
}

func TestLabelOptions_UnmatchedAnswerIsKept(t *testing.T) {
	q := Question{Options: []string{"x", "y"}, CorrectAnswer: "C"}
	got := LabelOptions(q)
	assert.Equal(t, "C", got.CorrectAnswer)
}

func TestLabelSet(t *testing.T) {
	set := LabelSet(QuestionSet{
		{Options: []string{"yes", "no"}, CorrectAnswer: "no"},
		{Options: []string{"A) up", "B) down"}, CorrectAnswer: "A) up"},
	})
	require.Len(t, set, 2)
	assert.Equal(t, "B) no", set[0].CorrectAnswer)
	assert.Equal(t, "A) up", set[1].CorrectAnswer)
}
