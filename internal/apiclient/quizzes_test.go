package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/companion-client/internal/domain/quiz"
)

// fakeBackend serves the quiz routes under /api/v1.
func fakeBackend(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"id":"u-1","email":"learner@example.com","username":"learner","is_active":true}`)
	})
	mux.HandleFunc("GET /api/v1/quizzes/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t-9", r.URL.Query().Get("topic_id"))
		writeJSON(w, `[{"id":"q-1","title":"Cells","topic_id":"t-9","is_adaptive":true,"difficulty_level":0.5,"created_at":"2026-01-02T03:04:05Z"}]`)
	})
	mux.HandleFunc("GET /api/v1/quizzes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "q-1" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, `{"detail":"Quiz not found"}`)
			return
		}
		writeJSON(w, `{"id":"q-1","title":"Cells","topic_id":"t-9","is_adaptive":true,"difficulty_level":0.5,
			"created_at":"2026-01-02T03:04:05Z",
			"questions":[{"id":"qq-1","text":"Powerhouse?","options":["A) Mitochondria","B) Nucleus"],"correct_answer":"A) Mitochondria"}]}`)
	})
	mux.HandleFunc("POST /api/v1/quizzes/attempt", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			QuizID    string            `json:"quiz_id"`
			Responses map[string]string `json:"responses"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "q-1", body.QuizID)
		assert.Equal(t, map[string]string{"qq-1": "A) Mitochondria"}, body.Responses)
		writeJSON(w, `{"attempt_id":"a-1","quiz_id":"q-1","score":1,"mastery_update":0.62,
			"questions":[{"question_id":"qq-1","text":"Powerhouse?","user_answer":"A) Mitochondria","correct_answer":"A) Mitochondria","is_correct":true,"explanation":""}]}`)
	})
	mux.HandleFunc("POST /api/v1/quizzes/practice/attempt", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"quiz_type":"practice","score":0.5,"questions":[]}`, string(raw))
		writeJSON(w, `{"attempt_id":"pa-7"}`)
	})
	mux.HandleFunc("GET /api/v1/quizzes/attempts/user", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[
			{"id":"a-1","quiz_id":"q-1","score":1,"started_at":"2026-01-02T03:04:05Z","responses":{"qq-1":"A"}},
			{"id":"a-2","quiz_id":"practice-2026-01-03T00:00:00","score":0.5,"started_at":"2026-01-03T00:00:00Z","responses":"{}"},
			{"id":"a-3","kind":"real","quiz_id":"practice-legacy","score":0,"started_at":"2026-01-04T00:00:00Z","responses":null}
		]`)
	})
	mux.HandleFunc("GET /api/v1/quizzes/attempts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"id":"a-2","quiz_id":"practice-2026-01-03T00:00:00","score":0.5,"started_at":"2026-01-03T00:00:00Z",
			"completed_at":"2026-01-03T00:05:00Z","responses":{},
			"questions":[{"text":"Q","user_answer":"B","correct_answer":"A) x","is_correct":false,"explanation":"because"}]}`)
	})
	mux.HandleFunc("POST /api/v1/generate/questions", func(w http.ResponseWriter, r *http.Request) {
		var body GenerateParams
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.NumQuestions == 0 {
			writeJSON(w, `[]`)
			return
		}
		assert.Equal(t, 3, body.NumQuestions)
		writeJSON(w, `[{"text":"Sky?","options":["green","blue"],"correct_answer":"blue","explanation":"Rayleigh"}]`)
	})
	mux.HandleFunc("GET /api/v1/quizzes/practice/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "practice-2026-01-03T00:00:00", r.PathValue("id"))
		writeJSON(w, `{"id":"practice-2026-01-03T00:00:00","title":"Practice Quiz","is_adaptive":false,
			"difficulty_level":0.5,"created_at":"2026-01-03T00:00:00Z",
			"questions":[{"text":"Q","user_answer":"B","correct_answer":"A","is_correct":false,"explanation":"because"}]}`)
	})
	mux.HandleFunc("GET /api/v1/topics/{$}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("skip"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, `[{"id":"t-9","name":"Biology","description":"Cells and more"},{"id":"t-10","name":"Algebra"}]`)
	})
	mux.HandleFunc("GET /api/v1/topics/progress/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"topic_id":"t-9","topic_name":"Biology","mastery_level":0.62}]`)
	})
	mux.HandleFunc("GET /api/v1/topics/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "t-9" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, `{"detail":"Topic not found"}`)
			return
		}
		writeJSON(w, `{"id":"t-9","name":"Biology","description":"Cells and more"}`)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestClient_Me(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	u, err := f.client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u-1", Email: "learner@example.com", Username: "learner", IsActive: true}, u)
}

func TestClient_ListAndGetQuiz(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	ctx := context.Background()

	quizzes, err := f.client.ListQuizzes(ctx, ListQuizzesParams{TopicID: "t-9"})
	require.NoError(t, err)
	require.Len(t, quizzes, 1)
	assert.Equal(t, "Cells", quizzes[0].Title)
	assert.Empty(t, quizzes[0].Questions)

	q, err := f.client.GetQuiz(ctx, "q-1")
	require.NoError(t, err)
	require.Len(t, q.Questions, 1)
	assert.Equal(t, "qq-1", q.Questions[0].ID)

	_, err = f.client.GetQuiz(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Quiz not found", apiErr.Message)

	_, err = f.client.GetQuiz(ctx, " ")
	require.Error(t, err)
}

func TestClient_SubmitAttempt(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	fb, err := f.client.SubmitAttempt(context.Background(), "q-1", map[string]string{"qq-1": "A) Mitochondria"})
	require.NoError(t, err)
	assert.Equal(t, "a-1", fb.AttemptID)
	assert.InDelta(t, 0.62, fb.MasteryUpdate, 1e-9)
	require.Len(t, fb.Questions, 1)
	assert.True(t, fb.Questions[0].IsCorrect)
}

func TestClient_SubmitPracticeAttempt(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	id, err := f.client.SubmitPracticeAttempt(context.Background(), quiz.PracticeAttempt{QuizType: "practice", Score: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "pa-7", id)
}

func TestClient_ListAttemptsDerivesKind(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	attempts, err := f.client.ListAttempts(context.Background())
	require.NoError(t, err)
	require.Len(t, attempts, 3)

	assert.Equal(t, quiz.AttemptReal, attempts[0].Kind)
	assert.Equal(t, map[string]string{"qq-1": "A"}, attempts[0].Responses)

	assert.Equal(t, quiz.AttemptPractice, attempts[1].Kind)
	assert.Equal(t, map[string]string{}, attempts[1].Responses)

	assert.Equal(t, quiz.AttemptReal, attempts[2].Kind, "an explicit kind wins over the id prefix")
	assert.Equal(t, map[string]string{}, attempts[2].Responses)
}

func TestClient_GetAttempt(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	a, err := f.client.GetAttempt(context.Background(), "a-2")
	require.NoError(t, err)
	assert.Equal(t, quiz.AttemptPractice, a.Kind)
	require.NotNil(t, a.CompletedAt)
	require.Len(t, a.Questions, 1)
	assert.Equal(t, "because", a.Questions[0].Explanation)

	_, err = f.client.GetAttempt(context.Background(), "")
	require.Error(t, err)
}

func TestClient_GeneratePracticeQuizLabelsOptions(t *testing.T) {
	f := newClientFixture(t, fakeBackend(t))
	set, err := f.client.GeneratePracticeQuiz(context.Background(), GenerateParams{Context: "light scattering"})
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Equal(t, []string{"A) green", "B) blue"}, set[0].Options)
	assert.Equal(t, "B) blue", set[0].CorrectAnswer)

	_, err = f.client.GeneratePracticeQuiz(context.Background(), GenerateParams{})
	require.Error(t, err)
}

func TestDecodeResponses(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{raw: ``, want: map[string]string{}},
		{raw: `null`, want: map[string]string{}},
		{raw: `{"a":"B"}`, want: map[string]string{"a": "B"}},
		{raw: `"{\"a\":\"C\"}"`, want: map[string]string{"a": "C"}},
		{raw: `"not json"`, want: map[string]string{}},
		{raw: `[1,2]`, want: map[string]string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decodeResponses(json.RawMessage(tt.raw)), tt.raw)
	}
}

func TestClient_LoadDashboard(t *testing.T) {
	f := newClientFixture(t, dashboardBackend(t))

	d, err := f.client.LoadDashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u-1", d.User.ID)
	assert.Len(t, d.Quizzes, 1)
	assert.Len(t, d.Attempts, 3)
	assert.Equal(t, []TopicProgress{{TopicID: "t-9", TopicName: "Biology", MasteryLevel: 0.62}}, d.Progress)
}

func TestClient_LoadDashboardFailsOnProgress(t *testing.T) {
	inner := dashboardBackend(t)
	f := newClientFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/topics/progress/" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		inner.ServeHTTP(w, r)
	}))

	_, err := f.client.LoadDashboard(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load progress")
}

func TestClient_LoadDashboardFailsFast(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/users/me" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, `[]`)
	})
	f := newClientFixture(t, mux)

	_, err := f.client.LoadDashboard(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load user")
}

// dashboardBackend answers the unfiltered quiz listing the dashboard asks for.
func dashboardBackend(t *testing.T) http.Handler {
	t.Helper()
	inner := fakeBackend(t)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/api/v1/quizzes/" {
			writeJSON(w, `[{"id":"q-1","title":"Cells","created_at":"2026-01-02T03:04:05Z"}]`)
			return
		}
		inner.ServeHTTP(w, r)
	})
}
