package repository

import (
	"context"
	"errors"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/util"

	"gorm.io/gorm"
)

// AttemptRepository 答题记录只追加，不提供更新接口
type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.DB.WithContext(ctx).Omit("Quiz").Create(attempt).Error
}

// FindBySubmissionKey 返回同一用户同一幂等键下已有的记录；不存在时返回 (nil, nil)
func (r *AttemptRepository) FindBySubmissionKey(ctx context.Context, userID uint, key string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND submission_key = ?", userID, key).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) FindByID(ctx context.Context, userID uint, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Quiz").
		Where("id = ? AND user_id = ?", id, userID).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListByUser 分页返回用户的答题记录，按提交时间倒序
func (r *AttemptRepository) ListByUser(ctx context.Context, userID uint, page, limit int) ([]model.Attempt, int64, error) {
	var (
		attempts []model.Attempt
		total    int64
	)
	q := r.DB.WithContext(ctx).Model(&model.Attempt{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Quiz").
		Order("submitted_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&attempts).Error
	return attempts, total, err
}

// ListCompleted 返回用户全部已完成的答题（含测验，用于知识点与课程归属），按提交时间正序
func (r *AttemptRepository) ListCompleted(ctx context.Context, userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Quiz").
		Where("user_id = ? AND status = ?", userID, model.AttemptCompleted).
		Order("submitted_at ASC").
		Find(&attempts).Error
	return attempts, err
}

// Recent 返回最近 n 次已完成的答题，按提交时间倒序
func (r *AttemptRepository) Recent(ctx context.Context, userID uint, n int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Quiz").
		Where("user_id = ? AND status = ?", userID, model.AttemptCompleted).
		Order("submitted_at DESC").
		Limit(n).
		Find(&attempts).Error
	return attempts, err
}
