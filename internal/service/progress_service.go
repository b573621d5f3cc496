package service

import (
	"context"
	"fmt"
	"time"

	"learnpulse_backend/internal/analytics"
	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/internal/worker"
	"learnpulse_backend/pkg/logger"
	"learnpulse_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	JobRecordActivity   = "record_activity"
	JobRecomputeProfile = "recompute_profile"

	defaultActivityDays = 30
	maxActivityDays     = 366
)

// ProgressService 维护每日活动与学习画像两类派生数据，两者都可以从答题记录重算
type ProgressService struct {
	AttemptRepo  *repository.AttemptRepository
	ActivityRepo *repository.ActivityRepository
	ProfileRepo  *repository.ProfileRepository
	RoadmapRepo  *repository.RoadmapRepository
	CourseRepo   *repository.CourseRepository
	HistorySize  int
	Now          func() time.Time
}

func NewProgressService(
	attemptRepo *repository.AttemptRepository,
	activityRepo *repository.ActivityRepository,
	profileRepo *repository.ProfileRepository,
	roadmapRepo *repository.RoadmapRepository,
	courseRepo *repository.CourseRepository,
	historySize int,
) *ProgressService {
	return &ProgressService{
		AttemptRepo:  attemptRepo,
		ActivityRepo: activityRepo,
		ProfileRepo:  profileRepo,
		RoadmapRepo:  roadmapRepo,
		CourseRepo:   courseRepo,
		HistorySize:  historySize,
		Now:          time.Now,
	}
}

// RecordActivity 尽力而为：任何错误只记录日志，返回 nil
func (s *ProgressService) RecordActivity(ctx context.Context, userID uint, kind model.ActivityKind) *model.DailyActivity {
	row, err := s.recordActivity(ctx, userID, kind)
	if err != nil {
		logger.Log.Warn("记录每日活动失败",
			zap.Uint("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil
	}
	return row
}

func (s *ProgressService) recordActivity(ctx context.Context, userID uint, kind model.ActivityKind) (*model.DailyActivity, error) {
	if !kind.Valid() {
		return nil, util.NewValidationError("kind", "unknown activity kind %q", kind)
	}
	now := s.Now()

	snapshot, err := s.RoadmapRepo.CompletionSnapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("roadmap snapshot: %w", err)
	}
	return s.ActivityRepo.Increment(ctx, userID, util.DayKey(now), kind, snapshot, now)
}

// ActivityJob 供后台队列调用，错误交给队列记录与计数
func (s *ProgressService) ActivityJob(userID uint, kind model.ActivityKind) worker.Job {
	return func(ctx context.Context) error {
		_, err := s.recordActivity(ctx, userID, kind)
		return err
	}
}

// RecomputeProfile 从全部已完成答题重算画像并整体替换。
// 没有任何答题时不写入，返回 false。
func (s *ProgressService) RecomputeProfile(ctx context.Context, userID uint) (written bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "progress.recompute_profile", attribute.Int64("user.id", int64(userID)))
	defer func() { tracing.EndSpan(span, err) }()

	attempts, err := s.AttemptRepo.ListCompleted(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list attempts: %w", err)
	}
	if len(attempts) == 0 {
		return false, nil
	}

	enrollments, err := s.CourseRepo.ListEnrollments(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list enrollments: %w", err)
	}
	in := analytics.ProfileInput{
		UserID:      userID,
		Attempts:    attempts,
		Enrollments: make([]analytics.Enrollment, 0, len(enrollments)),
		HistorySize: s.HistorySize,
		Now:         s.Now().UTC(),
	}
	for _, e := range enrollments {
		title := ""
		if e.Course != nil {
			title = e.Course.Title
		}
		in.Enrollments = append(in.Enrollments, analytics.Enrollment{CourseID: e.CourseID, Title: title, Completed: e.Completed})
	}

	profile, ok := analytics.BuildProfile(in)
	if !ok {
		return false, nil
	}
	if err := s.ProfileRepo.Replace(ctx, profile); err != nil {
		return false, fmt.Errorf("replace profile: %w", err)
	}
	return true, nil
}

func (s *ProgressService) RecomputeJob(userID uint) worker.Job {
	return func(ctx context.Context) error {
		_, err := s.RecomputeProfile(ctx, userID)
		return err
	}
}

// GetProfile 画像不存在时返回零值画像而不是错误
func (s *ProgressService) GetProfile(ctx context.Context, userID uint) (*model.PerformanceProfile, error) {
	p, err := s.ProfileRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return model.EmptyProfile(userID), nil
	}
	return p, nil
}

type ActivitySummary struct {
	From        string                `json:"from"`
	To          string                `json:"to"`
	Days        []model.DailyActivity `json:"days"`
	TotalPoints int                   `json:"totalPoints"`
	Streak      int                   `json:"streak"`
}

// ListActivity 返回 [from, to] 内的每日活动；为空时默认最近 30 天
func (s *ProgressService) ListActivity(ctx context.Context, userID uint, from, to string) (*ActivitySummary, error) {
	now := s.Now().UTC()
	if to == "" {
		to = util.DayKey(now)
	}
	toDay, err := time.Parse(util.DateFormat, to)
	if err != nil {
		return nil, util.NewValidationError("to", "expected YYYY-MM-DD")
	}
	if from == "" {
		from = util.DayKey(toDay.AddDate(0, 0, -(defaultActivityDays - 1)))
	}
	fromDay, err := time.Parse(util.DateFormat, from)
	if err != nil {
		return nil, util.NewValidationError("from", "expected YYYY-MM-DD")
	}
	if fromDay.After(toDay) {
		return nil, util.NewValidationError("from", "must not be after to")
	}
	if toDay.Sub(fromDay) > maxActivityDays*24*time.Hour {
		return nil, util.NewValidationError("from", "range exceeds %d days", maxActivityDays)
	}

	days, err := s.ActivityRepo.ListRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	summary := &ActivitySummary{From: from, To: to, Days: days}
	for _, d := range days {
		summary.TotalPoints += d.PointsEarned
	}

	active, err := s.ActivityRepo.ActiveDays(ctx, userID, util.DayKey(now.AddDate(0, 0, -maxActivityDays)))
	if err != nil {
		return nil, err
	}
	summary.Streak = analytics.Streak(active, now)
	return summary, nil
}
