package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

var ctx = context.Background()

func TestActivity_IncrementAccumulatesOneRowPerDay(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	a, err := repo.Increment(ctx, 1, "2026-05-01", model.ActivityQuiz, 10, now)
	require.NoError(t, err)
	assert.Equal(t, 1, a.QuizzesTaken)
	assert.Equal(t, 0, a.LessonsCompleted)
	assert.Equal(t, 20, a.PointsEarned)
	assert.Equal(t, 10, a.CompletionPercentage)

	a, err = repo.Increment(ctx, 1, "2026-05-01", model.ActivityLesson, 40, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, a.QuizzesTaken)
	assert.Equal(t, 1, a.LessonsCompleted)
	assert.Equal(t, 30, a.PointsEarned)
	assert.Equal(t, 40, a.CompletionPercentage)

	// another day, another user
	_, err = repo.Increment(ctx, 1, "2026-05-02", model.ActivityLesson, 40, now)
	require.NoError(t, err)
	_, err = repo.Increment(ctx, 2, "2026-05-01", model.ActivityLesson, 0, now)
	require.NoError(t, err)

	n, err := repo.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestActivity_ConcurrentSameDay(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := model.ActivityQuiz
			if i%2 == 0 {
				kind = model.ActivityLesson
			}
			_, err := repo.Increment(ctx, 7, "2026-05-01", kind, 0, now)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := repo.Count(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a, err := repo.FindByDay(ctx, 7, "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 5, a.LessonsCompleted)
	assert.Equal(t, 5, a.QuizzesTaken)
	assert.Equal(t, 150, a.PointsEarned)
}

func TestActivity_RejectsUnknownKind(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	_, err := repo.Increment(ctx, 1, "2026-05-01", model.ActivityKind("nap"), 0, time.Now())
	assert.Error(t, err)
}

func TestActivity_ListRangeAndActiveDays(t *testing.T) {
	repo := NewActivityRepository(newTestDB(t))
	for _, d := range []string{"2026-05-01", "2026-05-03", "2026-05-05"} {
		_, err := repo.Increment(ctx, 1, d, model.ActivityLesson, 0, time.Now())
		require.NoError(t, err)
	}

	list, err := repo.ListRange(ctx, 1, "2026-05-02", "2026-05-05")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2026-05-03", list[0].Day)

	days, err := repo.ActiveDays(ctx, 1, "2026-05-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-05-05", "2026-05-03"}, days)
}

func seedQuiz(t *testing.T, db *gorm.DB) *model.Quiz {
	t.Helper()
	quiz := &model.Quiz{
		Title: "Loops",
		Topic: "loops",
		Questions: []model.QuizQuestion{
			{Type: model.SingleChoice, Prompt: "b", CorrectAnswer: model.ScalarOf("x"), Marks: 1, Order: 2},
			{Type: model.MultiSelect, Prompt: "a", CorrectAnswer: model.SetOf("a", "b"), Marks: 1, Order: 1},
		},
	}
	require.NoError(t, NewQuizRepository(db).Create(ctx, quiz))
	return quiz
}

func TestQuiz_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewQuizRepository(db)
	quiz := seedQuiz(t, db)

	got, err := repo.FindByID(ctx, quiz.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "a", got.Questions[0].Prompt)
	assert.Equal(t, model.SetOf("a", "b"), got.Questions[0].CorrectAnswer)
	assert.Equal(t, model.ScalarOf("x"), got.Questions[1].CorrectAnswer)

	_, err = repo.FindByID(ctx, 9999)
	assert.ErrorIs(t, err, util.ErrQuizNotFound)
}

func TestAttempt_CreateListAndKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewAttemptRepository(db)
	quiz := seedQuiz(t, db)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	key := "k-1"
	for i := 0; i < 3; i++ {
		a := &model.Attempt{
			UserID:      1,
			QuizID:      quiz.ID,
			Percentage:  float64(i * 10),
			Status:      model.AttemptCompleted,
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
			Answers:     []model.GradedAnswer{{QuestionID: 1, IsCorrect: true}},
		}
		if i == 0 {
			a.SubmissionKey = &key
		}
		require.NoError(t, repo.Create(ctx, a))
		assert.NotEmpty(t, a.ID)
	}

	// second attempt with the same key violates the unique index
	dup := &model.Attempt{UserID: 1, QuizID: quiz.ID, Status: model.AttemptCompleted, SubmissionKey: &key}
	assert.Error(t, repo.Create(ctx, dup))

	found, err := repo.FindBySubmissionKey(ctx, 1, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 0.0, found.Percentage)

	missing, err := repo.FindBySubmissionKey(ctx, 2, key)
	require.NoError(t, err)
	assert.Nil(t, missing)

	recent, err := repo.Recent(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 20.0, recent[0].Percentage)
	require.NotNil(t, recent[0].Quiz)
	assert.Equal(t, "loops", recent[0].Quiz.Topic)

	all, err := repo.ListCompleted(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0.0, all[0].Percentage)
	assert.Len(t, all[0].Answers, 1)

	page, total, err := repo.ListByUser(ctx, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	got, err := repo.FindByID(ctx, 1, page[0].ID)
	require.NoError(t, err)
	assert.Equal(t, page[0].ID, got.ID)

	_, err = repo.FindByID(ctx, 2, page[0].ID)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestProfile_ReplaceIsFullSwap(t *testing.T) {
	repo := NewProfileRepository(newTestDB(t))

	p, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, p)

	first := model.EmptyProfile(1)
	first.Suggestions = []string{"a", "b"}
	first.TopicMastery = []model.TopicMastery{{Topic: "x", Accuracy: 10, Tier: model.MasteryWeak}}
	require.NoError(t, repo.Replace(ctx, first))

	second := model.EmptyProfile(1)
	second.Suggestions = []string{"c"}
	require.NoError(t, repo.Replace(ctx, second))

	got, err := repo.FindByUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"c"}, []string(got.Suggestions))
	assert.Empty(t, got.TopicMastery)

	var n int64
	repo.DB.Model(&model.PerformanceProfile{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestRecommendation_ReplaceAndFindWithoutRedis(t *testing.T) {
	repo := NewRecommendationRepository(newTestDB(t), nil)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	got, err := repo.Find(ctx, 1, now)
	require.NoError(t, err)
	assert.Nil(t, got)

	entry := &model.RecommendationCache{
		StudyPlan:   []model.StudyDay{{Day: 1, Focus: "x"}},
		GeneratedAt: now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}
	entry.UserID = 1
	require.NoError(t, repo.Replace(ctx, entry, now))

	next := &model.RecommendationCache{GeneratedAt: now.Add(time.Hour), ExpiresAt: now.Add(25 * time.Hour)}
	next.UserID = 1
	require.NoError(t, repo.Replace(ctx, next, now))

	got, err = repo.Find(ctx, 1, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.GeneratedAt.Equal(now.Add(time.Hour)))
	assert.Empty(t, got.StudyPlan)
}

func TestRecommendation_CacheTTLUsesCallerClock(t *testing.T) {
	generated := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &model.RecommendationCache{GeneratedAt: generated, ExpiresAt: generated.Add(24 * time.Hour)}

	assert.Equal(t, 24*time.Hour, cacheTTL(entry, generated))
	assert.Equal(t, 6*time.Hour, cacheTTL(entry, generated.Add(18*time.Hour)))
	assert.LessOrEqual(t, cacheTTL(entry, generated.Add(48*time.Hour)), time.Duration(0))
}

func TestRoadmap_CompletionSnapshot(t *testing.T) {
	repo := NewRoadmapRepository(newTestDB(t))

	snap, err := repo.CompletionSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, snap)

	require.NoError(t, repo.Create(ctx, &model.Roadmap{UserID: 1, Topic: "a", Steps: []model.RoadmapStep{
		{Title: "1", Completed: true}, {Title: "2"},
	}}))
	second := &model.Roadmap{UserID: 1, Topic: "b", Steps: []model.RoadmapStep{
		{Title: "1"},
	}}
	require.NoError(t, repo.Create(ctx, second))

	snap, err = repo.CompletionSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 33, snap)

	_, changed, err := repo.SetStepCompleted(ctx, 1, second.ID, 0, true)
	require.NoError(t, err)
	assert.True(t, changed)
	snap, err = repo.CompletionSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 67, snap)

	_, changed, err = repo.SetStepCompleted(ctx, 1, second.ID, 0, true)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = repo.SetStepCompleted(ctx, 2, second.ID, 0, true)
	assert.ErrorIs(t, err, util.ErrRoadmapNotFound)

	_, _, err = repo.SetStepCompleted(ctx, 1, second.ID, 3, true)
	var verr *util.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRoadmap_ConcurrentStepToggles(t *testing.T) {
	repo := NewRoadmapRepository(newTestDB(t))
	steps := make([]model.RoadmapStep, 8)
	for i := range steps {
		steps[i].Title = fmt.Sprint(i)
	}
	roadmap := &model.Roadmap{UserID: 1, Topic: "go", Steps: steps}
	require.NoError(t, repo.Create(ctx, roadmap))

	var wg sync.WaitGroup
	for i := range steps {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, _, err := repo.SetStepCompleted(ctx, 1, roadmap.ID, index, true)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := repo.CompletionSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, snap)
}

func TestUserAndEnrollments(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	courses := NewCourseRepository(db)

	u := &model.User{Name: "Ada", Email: "ada@example.com", Goals: []string{"backend"}}
	require.NoError(t, users.Create(ctx, u))

	got, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"backend"}, []string(got.Goals))

	_, err = users.FindByID(ctx, 404)
	assert.ErrorIs(t, err, util.ErrUserNotFound)

	course := &model.Course{Title: "C"}
	require.NoError(t, db.Create(course).Error)
	require.NoError(t, courses.Enroll(ctx, &model.CourseEnrollment{UserID: u.ID, CourseID: course.ID, Completed: true}))

	list, err := courses.ListEnrollments(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Course)
	assert.Equal(t, "C", list[0].Course.Title)
}
