package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecommendationRepository 数据库是事实来源，Redis（可选）做读穿缓存。
// Redis 失败只记录日志，不影响读写结果。
type RecommendationRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewRecommendationRepository(db *gorm.DB, rdb *redis.Client) *RecommendationRepository {
	return &RecommendationRepository{DB: db, Redis: rdb}
}

func recommendationKey(userID uint) string {
	return fmt.Sprintf("rec:%d", userID)
}

// Find 返回用户的推荐缓存条目；不存在时返回 (nil, nil)。now 用于计算回填 Redis 的 TTL
func (r *RecommendationRepository) Find(ctx context.Context, userID uint, now time.Time) (*model.RecommendationCache, error) {
	if entry := r.getCached(ctx, userID); entry != nil {
		return entry, nil
	}

	var entry model.RecommendationCache
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.setCached(ctx, &entry, now)
	return &entry, nil
}

// Replace 整体替换推荐条目（后写覆盖先写），然后刷新 Redis
func (r *RecommendationRepository) Replace(ctx context.Context, entry *model.RecommendationCache, now time.Time) error {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(entry).Error
	if err != nil {
		return err
	}
	r.setCached(ctx, entry, now)
	return nil
}

func (r *RecommendationRepository) getCached(ctx context.Context, userID uint) *model.RecommendationCache {
	if r.Redis == nil {
		return nil
	}
	data, err := r.Redis.Get(ctx, recommendationKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("Redis get recommendation failed", zap.Uint("user_id", userID), zap.Error(err))
		}
		return nil
	}
	var entry model.RecommendationCache
	if err := json.Unmarshal(data, &entry); err != nil {
		logger.Log.Warn("Cached recommendation is corrupt", zap.Uint("user_id", userID), zap.Error(err))
		return nil
	}
	return &entry
}

// cacheTTL 是条目距 expiresAt 的剩余时间，按调用方时钟计算
func cacheTTL(entry *model.RecommendationCache, now time.Time) time.Duration {
	return entry.ExpiresAt.Sub(now)
}

// setCached 以 expiresAt 作为 Redis TTL；新鲜度仍由 generatedAt 判断
func (r *RecommendationRepository) setCached(ctx context.Context, entry *model.RecommendationCache, now time.Time) {
	if r.Redis == nil {
		return
	}
	ttl := cacheTTL(entry, now)
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.Redis.Set(ctx, recommendationKey(entry.UserID), data, ttl).Err(); err != nil {
		logger.Log.Warn("Redis set recommendation failed", zap.Uint("user_id", entry.UserID), zap.Error(err))
	}
}
