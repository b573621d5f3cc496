package repository

import (
	"context"
	"errors"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoadmapRepository 聚合器只读；步骤完成状态由 RoadmapService 修改
type RoadmapRepository struct {
	DB *gorm.DB
}

func NewRoadmapRepository(db *gorm.DB) *RoadmapRepository {
	return &RoadmapRepository{DB: db}
}

func (r *RoadmapRepository) Create(ctx context.Context, roadmap *model.Roadmap) error {
	return r.DB.WithContext(ctx).Create(roadmap).Error
}

func (r *RoadmapRepository) ListByUser(ctx context.Context, userID uint) ([]model.Roadmap, error) {
	var list []model.Roadmap
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// SetStepCompleted 在行锁内读改写步骤列，并发切换不同步骤不会互相覆盖。
// changed 为 false 表示状态本就如此，未写库
func (r *RoadmapRepository) SetStepCompleted(ctx context.Context, userID, id uint, index int, done bool) (roadmap *model.Roadmap, changed bool, err error) {
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.Roadmap
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", id, userID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrRoadmapNotFound
		}
		if err != nil {
			return err
		}
		roadmap = &row

		if index < 0 || index >= len(row.Steps) {
			return util.NewValidationError("index", "must be between 0 and %d", len(row.Steps)-1)
		}
		if row.Steps[index].Completed == done {
			return nil
		}
		row.Steps[index].Completed = done
		changed = true
		return tx.Model(&row).Update("steps", row.Steps).Error
	})
	if err != nil {
		return nil, false, err
	}
	return roadmap, changed, nil
}

// CompletionSnapshot 汇总用户所有路线图的完成度：round(100 * 已完成 / 总步数)，无步骤时为 0
func (r *RoadmapRepository) CompletionSnapshot(ctx context.Context, userID uint) (int, error) {
	list, err := r.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	done, total := 0, 0
	for i := range list {
		d, t := list[i].StepCounts()
		done += d
		total += t
	}
	return util.Percent(float64(done), float64(total)), nil
}
