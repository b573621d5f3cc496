package repository

import (
	"context"
	"errors"

	"learnpulse_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository struct {
	DB *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{DB: db}
}

// Replace 整体替换用户的画像文档（user_id 唯一），不做字段级合并
func (r *ProfileRepository) Replace(ctx context.Context, p *model.PerformanceProfile) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(p).Error
}

// FindByUser 画像不存在时返回 (nil, nil)
func (r *ProfileRepository) FindByUser(ctx context.Context, userID uint) (*model.PerformanceProfile, error) {
	var p model.PerformanceProfile
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
