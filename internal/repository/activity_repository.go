package repository

import (
	"context"
	"fmt"
	"time"

	"learnpulse_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivityRepository struct {
	DB *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

// Increment 以 (user_id, day) 为键原子地累加当天计数器，并覆盖完成度快照。
// 单条 INSERT ... ON CONFLICT / ON DUPLICATE KEY UPDATE，并发下也只会有一条记录。
func (r *ActivityRepository) Increment(ctx context.Context, userID uint, day string, kind model.ActivityKind, snapshot int, now time.Time) (*model.DailyActivity, error) {
	row := model.DailyActivity{
		UserID:               userID,
		Day:                  day,
		PointsEarned:         kind.Points(),
		CompletionPercentage: snapshot,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	lessons, quizzes := 0, 0
	switch kind {
	case model.ActivityLesson:
		lessons = 1
	case model.ActivityQuiz:
		quizzes = 1
	default:
		return nil, fmt.Errorf("unknown activity kind %q", kind)
	}
	row.LessonsCompleted = lessons
	row.QuizzesTaken = quizzes

	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: append(
			clause.Assignments(map[string]interface{}{
				"lessons_completed": gorm.Expr("lessons_completed + ?", lessons),
				"quizzes_taken":     gorm.Expr("quizzes_taken + ?", quizzes),
				"points_earned":     gorm.Expr("points_earned + ?", kind.Points()),
			}),
			clause.AssignmentColumns([]string{"completion_percentage", "updated_at"})...,
		),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	return r.FindByDay(ctx, userID, day)
}

func (r *ActivityRepository) FindByDay(ctx context.Context, userID uint, day string) (*model.DailyActivity, error) {
	var a model.DailyActivity
	err := r.DB.WithContext(ctx).Where("user_id = ? AND day = ?", userID, day).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListRange 返回 [from, to] 区间（含）内的记录，day 为 YYYY-MM-DD
func (r *ActivityRepository) ListRange(ctx context.Context, userID uint, from, to string) ([]model.DailyActivity, error) {
	var list []model.DailyActivity
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND day >= ? AND day <= ?", userID, from, to).
		Order("day ASC").
		Find(&list).Error
	return list, err
}

// ActiveDays 返回 since 之后有活动的日期
func (r *ActivityRepository) ActiveDays(ctx context.Context, userID uint, since string) ([]string, error) {
	var days []string
	err := r.DB.WithContext(ctx).
		Model(&model.DailyActivity{}).
		Where("user_id = ? AND day >= ?", userID, since).
		Order("day DESC").
		Pluck("day", &days).Error
	return days, err
}

func (r *ActivityRepository) Count(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.DailyActivity{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
