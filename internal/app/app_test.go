package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"learnpulse_backend/internal/config"
	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/internal/worker"
	"learnpulse_backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-at-least-32-characters"

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, responses ...service.MockResponse) *App {
	t.Helper()
	db, err := database.OpenMemory(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.JWT.Secret = testSecret

	return New(cfg, db, nil, Options{
		Generator: service.NewMockGenerator(responses...),
		Runner:    worker.Inline{Timeout: 5 * time.Second},
	})
}

func token(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, a *App, method, path, tok string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func createUser(t *testing.T, a *App) *model.User {
	t.Helper()
	u := &model.User{Name: "Grace", Email: fmt.Sprintf("grace-%d@example.com", time.Now().UnixNano()), Level: "beginner"}
	require.NoError(t, repository.NewUserRepository(a.DB).Create(t.Context(), u))
	return u
}

func createQuizRequest() map[string]interface{} {
	questions := make([]map[string]interface{}, 0, 4)
	for i := 0; i < 4; i++ {
		questions = append(questions, map[string]interface{}{
			"type":          "single_choice",
			"prompt":        fmt.Sprintf("question %d", i+1),
			"options":       []string{"a", "b", "c"},
			"correctAnswer": "a",
			"marks":         1,
			"topic":         "channels",
		})
	}
	return map[string]interface{}{
		"title":     "Channels",
		"topic":     "concurrency",
		"questions": questions,
	}
}

func TestHealthIsPublic(t *testing.T) {
	a := newTestApp(t)

	code, env := do(t, a, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
	assert.Contains(t, string(env.Data), `"redis":"disabled"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestApp(t)

	for _, path := range []string{"/api/performance", "/api/activity", "/api/recommendations", "/api/roadmaps"} {
		code, _ := do(t, a, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
	}
}

func TestCreateQuizRequiresTeacher(t *testing.T) {
	a := newTestApp(t)

	code, _ := do(t, a, http.MethodPost, "/api/quizzes", token(t, 7, model.Student), createQuizRequest())
	assert.Equal(t, http.StatusForbidden, code)

	code, env := do(t, a, http.MethodPost, "/api/quizzes", token(t, 8, model.Teacher), createQuizRequest())
	require.Equal(t, http.StatusCreated, code, env.Message)
}

func TestQuizSubmissionFlow(t *testing.T) {
	a := newTestApp(t)
	user := createUser(t, a)
	student := token(t, user.ID, model.Student)

	code, env := do(t, a, http.MethodPost, "/api/quizzes", token(t, 99, model.Teacher), createQuizRequest())
	require.Equal(t, http.StatusCreated, code, env.Message)
	var quiz model.Quiz
	require.NoError(t, json.Unmarshal(env.Data, &quiz))
	require.Len(t, quiz.Questions, 4)

	// 答题者看不到答案
	code, env = do(t, a, http.MethodGet, fmt.Sprintf("/api/quizzes/%d", quiz.ID), student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "correctAnswer")

	answers := map[string]interface{}{}
	for i, q := range quiz.Questions {
		if i < 3 {
			answers[fmt.Sprint(q.ID)] = "a"
		} else {
			answers[fmt.Sprint(q.ID)] = "b"
		}
	}
	submitPath := fmt.Sprintf("/api/quizzes/%d/submit", quiz.ID)
	body := map[string]interface{}{"answers": answers, "timeTakenSeconds": 60}

	code, env = do(t, a, http.MethodPost, submitPath, student, body, "Idempotency-Key", "attempt-1")
	require.Equal(t, http.StatusCreated, code, env.Message)
	var first service.SubmitResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, 3.0, first.Attempt.Score)
	assert.Equal(t, 75.0, first.Attempt.Percentage)

	code, env = do(t, a, http.MethodPost, submitPath, student, body, "Idempotency-Key", "attempt-1")
	require.Equal(t, http.StatusOK, code)
	var replay service.SubmitResult
	require.NoError(t, json.Unmarshal(env.Data, &replay))
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Attempt.ID, replay.Attempt.ID)

	code, env = do(t, a, http.MethodGet, "/api/attempts", student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total":1`)

	code, env = do(t, a, http.MethodGet, "/api/attempts/"+first.Attempt.ID, student, nil)
	assert.Equal(t, http.StatusOK, code)

	// 后台任务同步执行，活动与画像已更新
	code, env = do(t, a, http.MethodGet, "/api/activity", student, nil)
	require.Equal(t, http.StatusOK, code)
	var summary service.ActivitySummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 20, summary.TotalPoints)
	assert.Equal(t, 1, summary.Streak)

	code, env = do(t, a, http.MethodGet, "/api/performance", student, nil)
	require.Equal(t, http.StatusOK, code)
	var profile model.PerformanceProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, 1, profile.OverallStats.Data().TotalAttempts)
	assert.Equal(t, 75, profile.OverallStats.Data().AverageScore)
}

func TestSubmitUnknownQuiz(t *testing.T) {
	a := newTestApp(t)
	user := createUser(t, a)

	code, _ := do(t, a, http.MethodPost, "/api/quizzes/12345/submit", token(t, user.ID, model.Student),
		map[string]interface{}{"answers": map[string]string{}})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPerformanceZeroState(t *testing.T) {
	a := newTestApp(t)
	user := createUser(t, a)

	code, env := do(t, a, http.MethodGet, "/api/performance", token(t, user.ID, model.Student), nil)
	require.Equal(t, http.StatusOK, code)
	var profile model.PerformanceProfile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Zero(t, profile.OverallStats.Data().TotalAttempts)
	assert.Empty(t, profile.TopicMastery)
}

func TestRecommendationsFallbackThenCache(t *testing.T) {
	a := newTestApp(t, service.MockResponse{Err: errors.New("upstream timeout")})
	user := createUser(t, a)
	tok := token(t, user.ID, model.Student)

	code, env := do(t, a, http.MethodGet, "/api/recommendations", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"source":"ai"`)
	assert.Contains(t, string(env.Data), `"parseTier":"fallback"`)

	code, env = do(t, a, http.MethodGet, "/api/recommendations", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"source":"cache"`)
}

func TestRoadmapStepCompletionRecordsLesson(t *testing.T) {
	a := newTestApp(t)
	user := createUser(t, a)
	tok := token(t, user.ID, model.Student)

	code, env := do(t, a, http.MethodPost, "/api/roadmaps/generate", tok, map[string]string{"topic": "Rust", "level": "beginner"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var roadmap model.Roadmap
	require.NoError(t, json.Unmarshal(env.Data, &roadmap))

	code, _ = do(t, a, http.MethodPatch, fmt.Sprintf("/api/roadmaps/%d/steps/0", roadmap.ID), tok, map[string]bool{"completed": true})
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, a, http.MethodGet, "/api/activity", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var summary service.ActivitySummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 10, summary.TotalPoints)

	code, _ = do(t, a, http.MethodPatch, fmt.Sprintf("/api/roadmaps/%d/steps/42", roadmap.ID), tok, map[string]bool{"completed": true})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestParseEndpoint(t *testing.T) {
	a := newTestApp(t)
	tok := token(t, 3, model.Student)

	code, env := do(t, a, http.MethodPost, "/api/parse/roadmap", tok, map[string]string{
		"text":  "1. Basics - variables\n2. Control flow - if and loops",
		"topic": "Go",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"tier":"lines"`)

	code, _ = do(t, a, http.MethodPost, "/api/parse/poem", tok, map[string]string{"text": "roses"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConfigReloadRotatesSecret(t *testing.T) {
	a := newTestApp(t)
	old := token(t, 5, model.Student)

	code, _ := do(t, a, http.MethodGet, "/api/roadmaps", old, nil)
	require.Equal(t, http.StatusOK, code)

	next := config.Default()
	next.JWT.Secret = "rotated-secret-with-at-least-32-characters"
	next.Recommendation.FreshHours = 1
	a.ApplyConfig(next)

	code, _ = do(t, a, http.MethodGet, "/api/roadmaps", old, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
