package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"learnpulse_backend/internal/config"
	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/textparse"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/internal/worker"
	"learnpulse_backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ctx = context.Background()

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memTranscripts struct {
	mu    sync.Mutex
	saved []Transcript
}

func (m *memTranscripts) Save(_ context.Context, t Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, t)
	return nil
}

func (m *memTranscripts) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type testEnv struct {
	db          *gorm.DB
	clock       *fakeClock
	gen         *MockGenerator
	transcripts *memTranscripts

	users    *repository.UserRepository
	quizRepo *repository.QuizRepository
	roadmaps *repository.RoadmapRepository
	activity *repository.ActivityRepository

	progress *ProgressService
	quizzes  *QuizService
	recs     *RecommendationService
	roadmap  *RoadmapService
}

func newTestEnv(t *testing.T, responses ...MockResponse) *testEnv {
	t.Helper()
	db, err := database.OpenMemory(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		db:          db,
		clock:       &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
		gen:         NewMockGenerator(responses...),
		transcripts: &memTranscripts{},
		users:       repository.NewUserRepository(db),
		quizRepo:    repository.NewQuizRepository(db),
		roadmaps:    repository.NewRoadmapRepository(db),
		activity:    repository.NewActivityRepository(db),
	}

	attempts := repository.NewAttemptRepository(db)
	profiles := repository.NewProfileRepository(db)
	runner := worker.Inline{Timeout: 5 * time.Second}
	ai := &Generation{Generator: env.gen, Transcripts: env.transcripts, Runner: runner}

	env.progress = NewProgressService(attempts, env.activity, profiles, env.roadmaps, repository.NewCourseRepository(db), 10)
	env.progress.Now = env.clock.Now
	env.quizzes = NewQuizService(env.quizRepo, attempts, env.progress, runner, ai)
	env.quizzes.Now = env.clock.Now
	env.recs = NewRecommendationService(env.users, attempts, env.roadmaps, profiles,
		repository.NewRecommendationRepository(db, nil), ai, config.Default().Recommendation)
	env.recs.Now = env.clock.Now
	env.roadmap = NewRoadmapService(env.roadmaps, env.progress, runner, ai)
	return env
}

func (e *testEnv) createUser(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{
		Name:  "Ada",
		Email: fmt.Sprintf("ada-%d@example.com", e.clock.Now().UnixNano()),
		Level: "beginner",
		Goals: datatypes.JSONSlice[string]{"concurrency"},
	}
	require.NoError(t, e.users.Create(ctx, u))
	return u
}

// createQuiz 5 道单选题，正确答案都是 "a"
func (e *testEnv) createQuiz(t *testing.T, topic string) *model.Quiz {
	t.Helper()
	quiz := &model.Quiz{Title: topic + " basics", Topic: topic, Source: model.QuizSourceManual}
	for i := 0; i < 5; i++ {
		quiz.Questions = append(quiz.Questions, model.QuizQuestion{
			Type:          model.SingleChoice,
			Prompt:        fmt.Sprintf("question %d", i+1),
			Options:       datatypes.JSONSlice[string]{"a", "b", "c"},
			CorrectAnswer: model.ScalarOf("a"),
			Marks:         1,
			Order:         i + 1,
		})
	}
	require.NoError(t, e.quizRepo.Create(ctx, quiz))
	return quiz
}

// answers 前 correct 道答 "a"，其余答 "b"
func answers(quiz *model.Quiz, correct int) map[uint]json.RawMessage {
	out := map[uint]json.RawMessage{}
	for i, q := range quiz.Questions {
		if i < correct {
			out[q.ID] = json.RawMessage(`"a"`)
		} else {
			out[q.ID] = json.RawMessage(`"b"`)
		}
	}
	return out
}

const planJSON = `Here is your plan:
{"weaknessAnalysis":[{"topic":"loops","reason":"low accuracy","priority":"high"}],
 "studyPlan":[{"day":1,"focus":"Loops","tasks":["Do 5 loop exercises"],"minutes":30}],
 "resources":[{"title":"Loops guide","type":"article"}]}`

func TestSubmitQuiz_GradesAndUpdatesAggregates(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	quiz := env.createQuiz(t, "go")

	res, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{Answers: answers(quiz, 3), TimeTakenSeconds: 90})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 3.0, res.Attempt.Score)
	assert.Equal(t, 60.0, res.Attempt.Percentage)
	assert.Equal(t, model.AttemptCompleted, res.Attempt.Status)
	assert.Len(t, res.Attempt.Answers, 5)

	day, err := env.activity.FindByDay(ctx, user.ID, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, day.QuizzesTaken)
	assert.Equal(t, 20, day.PointsEarned)

	profile, err := env.progress.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	stats := profile.OverallStats.Data()
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 60, stats.AverageScore)
	assert.Equal(t, 60, stats.OverallAccuracy)
	require.Len(t, profile.TopicMastery, 1)
	assert.Equal(t, "go", profile.TopicMastery[0].Topic)
	assert.Equal(t, model.MasteryImproving, profile.TopicMastery[0].Tier)
}

func TestSubmitQuiz_SubmissionKeyReplaysStoredAttempt(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	quiz := env.createQuiz(t, "go")
	req := SubmitQuizRequest{Answers: answers(quiz, 5), SubmissionKey: "key-1"}

	first, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, req)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)

	var n int64
	require.NoError(t, env.db.Model(&model.Attempt{}).Where("user_id = ?", user.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	day, err := env.activity.FindByDay(ctx, user.ID, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, day.QuizzesTaken)

	other := env.createQuiz(t, "sql")
	_, err = env.quizzes.SubmitQuiz(ctx, user.ID, other.ID, req)
	assert.True(t, util.IsValidation(err))
}

func TestSubmitQuiz_WithoutKeyAttemptsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	quiz := env.createQuiz(t, "go")

	a, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{Answers: answers(quiz, 1)})
	require.NoError(t, err)
	b, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{Answers: answers(quiz, 1)})
	require.NoError(t, err)
	assert.NotEqual(t, a.Attempt.ID, b.Attempt.ID)

	day, err := env.activity.FindByDay(ctx, user.ID, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 2, day.QuizzesTaken)
	assert.Equal(t, 40, day.PointsEarned)
}

func TestSubmitQuiz_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	quiz := env.createQuiz(t, "go")

	_, err := env.quizzes.SubmitQuiz(ctx, user.ID, 9999, SubmitQuizRequest{})
	assert.ErrorIs(t, err, util.ErrQuizNotFound)

	_, err = env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{
		Answers: map[uint]json.RawMessage{424242: json.RawMessage(`"a"`)},
	})
	assert.True(t, util.IsValidation(err))

	_, err = env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{TimeTakenSeconds: -1})
	assert.True(t, util.IsValidation(err))

	_, err = env.quizzes.SubmitQuiz(ctx, 0, quiz.ID, SubmitQuizRequest{})
	assert.True(t, util.IsValidation(err))
}

func TestSubmitQuiz_EmptyAnswersGradeAsUnanswered(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	quiz := env.createQuiz(t, "go")

	res, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{})
	require.NoError(t, err)
	assert.Zero(t, res.Attempt.Score)
	assert.Zero(t, res.Attempt.Percentage)
	for _, a := range res.Attempt.Answers {
		assert.False(t, a.IsCorrect)
		assert.Zero(t, a.MarksAwarded)
	}
}

func TestGetQuiz_StripsAnswerKeys(t *testing.T) {
	env := newTestEnv(t)
	quiz := env.createQuiz(t, "go")

	view, err := env.quizzes.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	require.Len(t, view.Questions, 5)
	assert.Equal(t, "go", view.Questions[0].Topic)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correctAnswer")

	_, err = env.quizzes.GetQuiz(ctx, 777)
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestCreateQuiz_ValidatesDefinition(t *testing.T) {
	env := newTestEnv(t)

	quiz, err := env.quizzes.CreateQuiz(ctx, CreateQuizRequest{
		Title: "Slices",
		Topic: "go",
		Questions: []QuestionInput{
			{Type: model.MultiSelect, Prompt: "Pick the builtins", Options: []string{"len", "cap", "size"}, CorrectAnswer: json.RawMessage(`["cap","len"]`)},
			{Type: model.Boolean, Prompt: "Slices share backing arrays", CorrectAnswer: json.RawMessage(`"TRUE"`)},
		},
	})
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, model.SetOf("len", "cap"), quiz.Questions[0].CorrectAnswer)
	assert.Equal(t, model.ScalarOf("true"), quiz.Questions[1].CorrectAnswer)
	assert.Equal(t, 1.0, quiz.Questions[1].Marks)

	_, err = env.quizzes.CreateQuiz(ctx, CreateQuizRequest{
		Title:     "Broken",
		Topic:     "go",
		Questions: []QuestionInput{{Type: model.SingleChoice, Prompt: "No key", Options: []string{"a", "b"}}},
	})
	assert.True(t, util.IsValidation(err))

	_, err = env.quizzes.CreateQuiz(ctx, CreateQuizRequest{Title: "Empty", Topic: "go"})
	assert.True(t, util.IsValidation(err))
}

func TestGenerateQuiz_UsesParsedQuestions(t *testing.T) {
	env := newTestEnv(t, MockResponse{Text: "```json\n" + `[
		{"type":"single_choice","prompt":"What does len return?","options":["size","capacity"],"correctAnswer":"size"},
		{"type":"true_false","question":"Slices are values","answer":false}
	]` + "\n```"})

	quiz, tier, err := env.quizzes.GenerateQuiz(ctx, 1, GenerateQuizRequest{Topic: "slices", Count: 5})
	require.NoError(t, err)
	assert.Equal(t, textparse.TierJSON, tier)
	assert.Equal(t, model.QuizSourceAI, quiz.Source)
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, model.Boolean, quiz.Questions[1].Type)
	assert.Equal(t, 1, env.transcripts.Len())

	stored, err := env.quizRepo.FindByID(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Questions, 2)
}

func TestGenerateQuiz_FallsBackWhenGeneratorFails(t *testing.T) {
	env := newTestEnv(t, MockResponse{Err: errors.New("upstream down")})

	quiz, tier, err := env.quizzes.GenerateQuiz(ctx, 1, GenerateQuizRequest{Topic: "maps", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, textparse.TierFallback, tier)
	assert.Equal(t, model.QuizSourceFallback, quiz.Source)
	assert.Len(t, quiz.Questions, 3)
	for _, q := range quiz.Questions {
		assert.Equal(t, model.FreeFormCode, q.Type)
	}
	assert.Zero(t, env.transcripts.Len())
}

func TestRecordActivity_SameDayAccumulates(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	require.NoError(t, env.roadmaps.Create(ctx, &model.Roadmap{
		UserID: user.ID,
		Topic:  "go",
		Steps: datatypes.JSONSlice[model.RoadmapStep]{
			{Title: "a", Completed: true}, {Title: "b"}, {Title: "c"}, {Title: "d"},
		},
	}))

	row := env.progress.RecordActivity(ctx, user.ID, model.ActivityQuiz)
	require.NotNil(t, row)
	assert.Equal(t, 1, row.QuizzesTaken)
	assert.Equal(t, 0, row.LessonsCompleted)
	assert.Equal(t, 20, row.PointsEarned)
	assert.Equal(t, 25, row.CompletionPercentage)

	env.clock.Advance(2 * time.Hour)
	row = env.progress.RecordActivity(ctx, user.ID, model.ActivityLesson)
	require.NotNil(t, row)
	assert.Equal(t, 1, row.QuizzesTaken)
	assert.Equal(t, 1, row.LessonsCompleted)
	assert.Equal(t, 30, row.PointsEarned)

	n, err := env.activity.Count(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Nil(t, env.progress.RecordActivity(ctx, user.ID, model.ActivityKind("video")))
}

func TestRecomputeProfile_NoAttemptsIsNoop(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)

	written, err := env.progress.RecomputeProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, written)

	var n int64
	require.NoError(t, env.db.Model(&model.PerformanceProfile{}).Count(&n).Error)
	assert.Zero(t, n)

	profile, err := env.progress.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, profile.UserID)
	assert.Zero(t, profile.OverallStats.Data().TotalAttempts)
	assert.Empty(t, profile.TopicMastery)
	assert.NotNil(t, profile.Suggestions)
}

func TestRecomputeProfile_ReplacesWholeProfile(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)
	goQuiz := env.createQuiz(t, "go")
	sqlQuiz := env.createQuiz(t, "sql")

	_, err := env.quizzes.SubmitQuiz(ctx, user.ID, goQuiz.ID, SubmitQuizRequest{Answers: answers(goQuiz, 5)})
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	_, err = env.quizzes.SubmitQuiz(ctx, user.ID, sqlQuiz.ID, SubmitQuizRequest{Answers: answers(sqlQuiz, 1)})
	require.NoError(t, err)

	profile, err := env.progress.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, profile.TopicMastery, 2)
	assert.Equal(t, model.MasteryStrong, profile.TopicMastery[0].Tier)
	assert.Equal(t, model.MasteryWeak, profile.TopicMastery[1].Tier)
	assert.Len(t, profile.PerformanceHistory, 2)
	// Weak 知识点、整体正确率低于 70、答题少于 5 次
	assert.Len(t, profile.Suggestions, 3)

	var n int64
	require.NoError(t, env.db.Model(&model.PerformanceProfile{}).Where("user_id = ?", user.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestListActivity_StreakAndTotals(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t)

	for i := 0; i < 3; i++ {
		require.NotNil(t, env.progress.RecordActivity(ctx, user.ID, model.ActivityLesson))
		env.clock.Advance(24 * time.Hour)
	}
	// 今天还没有活动，连续天数从昨天开始算
	summary, err := env.progress.ListActivity(ctx, user.ID, "", "")
	require.NoError(t, err)
	assert.Len(t, summary.Days, 3)
	assert.Equal(t, 30, summary.TotalPoints)
	assert.Equal(t, 3, summary.Streak)
	assert.Equal(t, "2026-05-04", summary.To)

	summary, err = env.progress.ListActivity(ctx, user.ID, "2026-05-02", "2026-05-02")
	require.NoError(t, err)
	assert.Len(t, summary.Days, 1)

	_, err = env.progress.ListActivity(ctx, user.ID, "yesterday", "")
	assert.True(t, util.IsValidation(err))
	_, err = env.progress.ListActivity(ctx, user.ID, "2026-05-03", "2026-05-01")
	assert.True(t, util.IsValidation(err))
}

func TestGetRecommendations_ServesFreshCache(t *testing.T) {
	env := newTestEnv(t, MockResponse{Text: planJSON}, MockResponse{Text: planJSON}, MockResponse{Text: planJSON})
	user := env.createUser(t)

	first, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, SourceAI, first.Source)
	assert.Equal(t, string(textparse.TierJSON), first.Payload.ParseTier)
	assert.Len(t, first.Payload.StudyPlan, textparse.PlanDays)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), first.Payload.ExpiresAt)

	env.clock.Advance(10 * time.Minute)
	a, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)
	env.clock.Advance(30 * time.Minute)
	b, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)

	assert.Equal(t, SourceCache, a.Source)
	assert.Equal(t, SourceCache, b.Source)
	assert.True(t, a.Payload.GeneratedAt.Equal(b.Payload.GeneratedAt))
	assert.True(t, a.Payload.GeneratedAt.Equal(first.Payload.GeneratedAt))
	assert.Equal(t, 1, env.gen.Calls())

	env.clock.Advance(time.Minute)
	forced, err := env.recs.GetRecommendations(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, SourceAI, forced.Source)
	assert.True(t, forced.Payload.GeneratedAt.After(b.Payload.GeneratedAt))

	env.clock.Advance(13 * time.Hour)
	stale, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, SourceAI, stale.Source)
	assert.Equal(t, 3, env.gen.Calls())

	var n int64
	require.NoError(t, env.db.Model(&model.RecommendationCache{}).Where("user_id = ?", user.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestGetRecommendations_FallbackWhenGeneratorFails(t *testing.T) {
	env := newTestEnv(t, MockResponse{Err: context.DeadlineExceeded})
	user := env.createUser(t)
	quiz := env.createQuiz(t, "loops")
	_, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{Answers: answers(quiz, 1)})
	require.NoError(t, err)

	res, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, SourceAI, res.Source)
	assert.Equal(t, string(textparse.TierFallback), res.Payload.ParseTier)
	require.Len(t, res.Payload.StudyPlan, 7)
	for i, d := range res.Payload.StudyPlan {
		assert.Equal(t, i+1, d.Day)
		assert.NotEmpty(t, d.Focus)
	}
	require.NotEmpty(t, res.Payload.WeaknessAnalysis)
	assert.Equal(t, "loops", res.Payload.WeaknessAnalysis[0].Topic)

	metrics := res.Payload.ProgressMetrics.Data()
	assert.Equal(t, 1, metrics.AttemptsSampled)
	assert.Equal(t, 20, metrics.ConsistencyScore)
	assert.Zero(t, metrics.ImprovementPercent)
}

func TestGetRecommendations_TrendMetrics(t *testing.T) {
	env := newTestEnv(t, MockResponse{Text: planJSON})
	user := env.createUser(t)
	quiz := env.createQuiz(t, "go")

	_, err := env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{Answers: answers(quiz, 2)})
	require.NoError(t, err)
	env.clock.Advance(24 * time.Hour)
	_, err = env.quizzes.SubmitQuiz(ctx, user.ID, quiz.ID, SubmitQuizRequest{Answers: answers(quiz, 4)})
	require.NoError(t, err)

	res, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)
	metrics := res.Payload.ProgressMetrics.Data()
	// (80 - 40) / 40
	assert.Equal(t, 100, metrics.ImprovementPercent)
	assert.Equal(t, 40, metrics.ConsistencyScore)
	assert.Equal(t, 60.0, metrics.RecentAverage)
	assert.Contains(t, env.gen.Prompts[0], "7-day study plan")
}

func TestGetRecommendations_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.recs.GetRecommendations(ctx, 4242, false)
	assert.ErrorIs(t, err, util.ErrUserNotFound)
	assert.Zero(t, env.gen.Calls())
}

func TestRecommendationService_UpdateConfigChangesFreshness(t *testing.T) {
	env := newTestEnv(t, MockResponse{Text: planJSON}, MockResponse{Text: planJSON})
	user := env.createUser(t)

	_, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)

	env.recs.UpdateConfig(config.RecommendationConfig{FreshHours: 1, ExpireHours: 24, HistorySize: 10})
	env.clock.Advance(2 * time.Hour)
	res, err := env.recs.GetRecommendations(ctx, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, SourceAI, res.Source)
}

func TestGenerateRoadmap_FallbackAndStepCompletion(t *testing.T) {
	env := newTestEnv(t, MockResponse{Text: "{{{{ not useful"})
	user := env.createUser(t)

	roadmap, err := env.roadmap.GenerateRoadmap(ctx, user.ID, GenerateRoadmapRequest{Topic: "Rust"})
	require.NoError(t, err)
	assert.Equal(t, model.RoadmapSourceFallback, roadmap.Source)
	require.Len(t, roadmap.Steps, 5)
	assert.Equal(t, "Foundations of Rust", roadmap.Steps[0].Title)
	assert.Equal(t, 1, env.transcripts.Len())

	updated, err := env.roadmap.SetStepCompleted(ctx, user.ID, roadmap.ID, 0, true)
	require.NoError(t, err)
	assert.True(t, updated.Steps[0].Completed)

	day, err := env.activity.FindByDay(ctx, user.ID, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, day.LessonsCompleted)
	assert.Equal(t, 10, day.PointsEarned)
	assert.Equal(t, 20, day.CompletionPercentage)

	// 重复标记不再记活动
	_, err = env.roadmap.SetStepCompleted(ctx, user.ID, roadmap.ID, 0, true)
	require.NoError(t, err)
	day, err = env.activity.FindByDay(ctx, user.ID, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 1, day.LessonsCompleted)

	_, err = env.roadmap.SetStepCompleted(ctx, user.ID, roadmap.ID, 5, true)
	assert.True(t, util.IsValidation(err))
	_, err = env.roadmap.SetStepCompleted(ctx, user.ID+1, roadmap.ID, 0, true)
	assert.ErrorIs(t, err, util.ErrRoadmapNotFound)
}

func TestGenerateRoadmap_ParsesNumberedList(t *testing.T) {
	env := newTestEnv(t, MockResponse{Text: "Here is the roadmap:\n1. Ownership - move semantics and borrowing\n2. Traits: shared behaviour\n3. Cargo"})
	user := env.createUser(t)

	roadmap, err := env.roadmap.GenerateRoadmap(ctx, user.ID, GenerateRoadmapRequest{Topic: "Rust", Level: "intermediate"})
	require.NoError(t, err)
	assert.Equal(t, model.RoadmapSourceAI, roadmap.Source)
	require.Len(t, roadmap.Steps, 3)
	assert.Equal(t, "Ownership", roadmap.Steps[0].Title)
	assert.Equal(t, "move semantics and borrowing", roadmap.Steps[0].Description)

	list, err := env.roadmap.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.roadmap.GenerateRoadmap(ctx, user.ID, GenerateRoadmapRequest{Topic: "Rust", Level: "expert"})
	assert.True(t, util.IsValidation(err))
}

func TestParseText(t *testing.T) {
	res, err := ParseText(ShapeRoadmap, ParseRequest{Text: `[{"title":"Basics"}]`, Topic: "go"})
	require.NoError(t, err)
	assert.Equal(t, "json", res.Tier)

	res, err = ParseText(ShapePlan, ParseRequest{Text: ""})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Tier)
	assert.Len(t, res.Value.(textparse.Plan).StudyPlan, 7)

	_, err = ParseText("essay", ParseRequest{})
	assert.True(t, util.IsValidation(err))
}

func TestTranscriptStores(t *testing.T) {
	assert.IsType(t, NoopTranscriptStore{}, NewTranscriptStore(&config.StorageConfig{Type: "none"}))

	dir := t.TempDir()
	store := NewTranscriptStore(&config.StorageConfig{Type: "local", LocalPath: dir})
	require.IsType(t, &LocalTranscriptStore{}, store)

	tr := Transcript{Kind: "roadmap", UserID: 7, Prompt: "p", Response: "r", CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Save(ctx, tr))

	files, err := filepath.Glob(filepath.Join(dir, "roadmap", "2026-05-01", "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
