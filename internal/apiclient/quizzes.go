package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/companion-client/internal/domain/quiz"
)

// practiceQuizPrefix marks pseudo quiz IDs the backend assigns to dashboard practice attempts.
const practiceQuizPrefix = "practice-"

// DefaultPracticeQuestions is the question count GeneratePracticeQuiz asks for when none is given.
const DefaultPracticeQuestions = 3

// User is the authenticated backend account.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

// Quiz is a stored quiz. Questions is populated only by GetQuiz.
type Quiz struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	TopicID         string           `json:"topic_id,omitempty"`
	IsAdaptive      bool             `json:"is_adaptive"`
	DifficultyLevel float64          `json:"difficulty_level"`
	CreatedAt       time.Time        `json:"created_at"`
	Questions       quiz.QuestionSet `json:"questions,omitempty"`
}

// AttemptFeedback is the server-graded outcome of SubmitAttempt.
type AttemptFeedback struct {
	AttemptID     string                `json:"attempt_id"`
	QuizID        string                `json:"quiz_id"`
	Score         float64               `json:"score"`
	Questions     []quiz.QuestionResult `json:"questions"`
	MasteryUpdate float64               `json:"mastery_update"`
}

// ListQuizzesParams filters ListQuizzes.
type ListQuizzesParams struct {
	TopicID string
	Skip    int
	Limit   int
}

// GenerateParams asks the backend for a practice question set.
type GenerateParams struct {
	Context      string `json:"context"`
	NumQuestions int    `json:"num_questions"`
	TopicID      string `json:"topic_id,omitempty"`
}

// Dashboard bundles the data the home screen loads together.
type Dashboard struct {
	User     User
	Quizzes  []Quiz
	Attempts []quiz.AttemptResult
	Progress []TopicProgress
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	if err := c.GetJSON(ctx, "/users/me", &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// ListQuizzes returns stored quizzes.
func (c *Client) ListQuizzes(ctx context.Context, params ListQuizzesParams) ([]Quiz, error) {
	q := url.Values{}
	if params.TopicID != "" {
		q.Set("topic_id", params.TopicID)
	}
	if params.Skip > 0 {
		q.Set("skip", fmt.Sprint(params.Skip))
	}
	if params.Limit > 0 {
		q.Set("limit", fmt.Sprint(params.Limit))
	}
	path := "/quizzes/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []Quiz
	if err := c.GetJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetQuiz returns a stored quiz with its questions.
func (c *Client) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	if strings.TrimSpace(id) == "" {
		return Quiz{}, errors.New("quiz id is required")
	}
	var out Quiz
	if err := c.GetJSON(ctx, "/quizzes/"+url.PathEscape(id), &out); err != nil {
		return Quiz{}, err
	}
	return out, nil
}

// SubmitAttempt submits answers to a stored quiz for server-side grading. responses maps question
// IDs to the selected option.
func (c *Client) SubmitAttempt(ctx context.Context, quizID string, responses map[string]string) (AttemptFeedback, error) {
	if strings.TrimSpace(quizID) == "" {
		return AttemptFeedback{}, errors.New("quiz id is required")
	}
	if responses == nil {
		responses = map[string]string{}
	}
	body := struct {
		QuizID    string            `json:"quiz_id"`
		Responses map[string]string `json:"responses"`
	}{QuizID: quizID, Responses: responses}

	var out AttemptFeedback
	if err := c.PostJSON(ctx, "/quizzes/attempt", body, &out); err != nil {
		return AttemptFeedback{}, err
	}
	return out, nil
}

// SubmitPracticeAttempt records a client-graded practice attempt and returns its attempt ID.
func (c *Client) SubmitPracticeAttempt(ctx context.Context, attempt quiz.PracticeAttempt) (string, error) {
	if attempt.Questions == nil {
		attempt.Questions = []quiz.QuestionResult{}
	}
	var out struct {
		AttemptID string `json:"attempt_id"`
	}
	if err := c.PostJSON(ctx, "/quizzes/practice/attempt", attempt, &out); err != nil {
		return "", err
	}
	return out.AttemptID, nil
}

// GetAttempt returns one recorded attempt.
func (c *Client) GetAttempt(ctx context.Context, id string) (quiz.AttemptResult, error) {
	if strings.TrimSpace(id) == "" {
		return quiz.AttemptResult{}, errors.New("attempt id is required")
	}
	var raw attemptPayload
	if err := c.GetJSON(ctx, "/quizzes/attempts/"+url.PathEscape(id), &raw); err != nil {
		return quiz.AttemptResult{}, err
	}
	return raw.toResult(), nil
}

// ListAttempts returns the authenticated user's attempts.
func (c *Client) ListAttempts(ctx context.Context) ([]quiz.AttemptResult, error) {
	var raw []attemptPayload
	if err := c.GetJSON(ctx, "/quizzes/attempts/user", &raw); err != nil {
		return nil, err
	}
	out := make([]quiz.AttemptResult, 0, len(raw))
	for _, a := range raw {
		out = append(out, a.toResult())
	}
	return out, nil
}

// GeneratePracticeQuiz asks the backend for a question set and labels its options.
func (c *Client) GeneratePracticeQuiz(ctx context.Context, params GenerateParams) (quiz.QuestionSet, error) {
	if strings.TrimSpace(params.Context) == "" {
		return nil, errors.New("practice context is required")
	}
	if params.NumQuestions <= 0 {
		params.NumQuestions = DefaultPracticeQuestions
	}
	var set quiz.QuestionSet
	if err := c.PostJSON(ctx, "/generate/questions", params, &set); err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, quiz.ErrEmptyQuestionSet
	}
	return quiz.LabelSet(set), nil
}

// LoadDashboard fetches the account, quizzes, attempts and topic progress concurrently.
func (c *Client) LoadDashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := c.Me(gctx)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		d.User = u
		return nil
	})
	g.Go(func() error {
		qs, err := c.ListQuizzes(gctx, ListQuizzesParams{})
		if err != nil {
			return fmt.Errorf("load quizzes: %w", err)
		}
		d.Quizzes = qs
		return nil
	})
	g.Go(func() error {
		as, err := c.ListAttempts(gctx)
		if err != nil {
			return fmt.Errorf("load attempts: %w", err)
		}
		d.Attempts = as
		return nil
	})
	g.Go(func() error {
		ps, err := c.ListProgress(gctx)
		if err != nil {
			return fmt.Errorf("load progress: %w", err)
		}
		d.Progress = ps
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// attemptPayload is the wire shape of a recorded attempt.
type attemptPayload struct {
	ID          string                `json:"id"`
	Kind        quiz.AttemptKind      `json:"kind"`
	QuizID      string                `json:"quiz_id"`
	Score       float64               `json:"score"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at"`
	Responses   json.RawMessage       `json:"responses"`
	Questions   []quiz.QuestionResult `json:"questions"`
}

// toResult is the one place an attempt's kind is decided when the backend does not send it.
func (a attemptPayload) toResult() quiz.AttemptResult {
	kind := a.Kind
	if kind != quiz.AttemptReal && kind != quiz.AttemptPractice {
		kind = quiz.AttemptReal
		if strings.HasPrefix(a.QuizID, practiceQuizPrefix) {
			kind = quiz.AttemptPractice
		}
	}
	return quiz.AttemptResult{
		ID:          a.ID,
		Kind:        kind,
		QuizID:      a.QuizID,
		Score:       a.Score,
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
		Responses:   decodeResponses(a.Responses),
		Questions:   a.Questions,
	}
}

// decodeResponses accepts an object or a JSON-encoded object string. Anything else is empty.
func decodeResponses(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out
	}
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return map[string]string{}
}
