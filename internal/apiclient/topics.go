package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/target/companion-client/internal/domain/quiz"
)

// Topic is a subject area quizzes are grouped under.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TopicProgress is the signed-in user's mastery of one topic, in [0,1].
type TopicProgress struct {
	TopicID      string  `json:"topic_id"`
	TopicName    string  `json:"topic_name"`
	MasteryLevel float64 `json:"mastery_level"`
}

// ListTopicsParams pages ListTopics.
type ListTopicsParams struct {
	Skip  int
	Limit int
}

// PracticeQuiz is a recorded practice attempt fetched through its dedicated route.
// Questions are the graded results stored when the attempt was recorded.
type PracticeQuiz struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Description     string                `json:"description,omitempty"`
	TopicID         string                `json:"topic_id,omitempty"`
	IsAdaptive      bool                  `json:"is_adaptive"`
	DifficultyLevel float64               `json:"difficulty_level"`
	CreatedAt       time.Time             `json:"created_at"`
	Questions       []quiz.QuestionResult `json:"questions"`
}

// ListTopics returns topics.
func (c *Client) ListTopics(ctx context.Context, params ListTopicsParams) ([]Topic, error) {
	q := url.Values{}
	if params.Skip > 0 {
		q.Set("skip", fmt.Sprint(params.Skip))
	}
	if params.Limit > 0 {
		q.Set("limit", fmt.Sprint(params.Limit))
	}
	path := "/topics/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Topic
	if err := c.GetJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTopic returns one topic.
func (c *Client) GetTopic(ctx context.Context, id string) (Topic, error) {
	if strings.TrimSpace(id) == "" {
		return Topic{}, errors.New("topic id is required")
	}
	var out Topic
	if err := c.GetJSON(ctx, "/topics/"+url.PathEscape(id), &out); err != nil {
		return Topic{}, err
	}
	return out, nil
}

// ListProgress returns the signed-in user's mastery per topic.
func (c *Client) ListProgress(ctx context.Context) ([]TopicProgress, error) {
	var out []TopicProgress
	if err := c.GetJSON(ctx, "/topics/progress/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPracticeAttempt returns a recorded practice attempt. id may be given with or without
// the "practice-" prefix the backend stores it under.
func (c *Client) GetPracticeAttempt(ctx context.Context, id string) (PracticeQuiz, error) {
	id = strings.TrimSpace(id)
	if strings.TrimPrefix(id, practiceQuizPrefix) == "" {
		return PracticeQuiz{}, errors.New("practice attempt id is required")
	}
	var out PracticeQuiz
	if err := c.GetJSON(ctx, "/quizzes/practice/"+url.PathEscape(id), &out); err != nil {
		return PracticeQuiz{}, err
	}
	if out.Questions == nil {
		out.Questions = []quiz.QuestionResult{}
	}
	return out, nil
}
