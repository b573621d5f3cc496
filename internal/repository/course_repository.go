package repository

import (
	"context"

	"learnpulse_backend/internal/model"

	"gorm.io/gorm"
)

// CourseRepository 课程与选课由内容管理模块维护，这里只读
type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) ListEnrollments(ctx context.Context, userID uint) ([]model.CourseEnrollment, error) {
	var list []model.CourseEnrollment
	err := r.DB.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *CourseRepository) Enroll(ctx context.Context, e *model.CourseEnrollment) error {
	return r.DB.WithContext(ctx).Create(e).Error
}
