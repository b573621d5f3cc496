package model

import (
	"time"

	"gorm.io/datatypes"
)

type Weakness struct {
	Topic    string `json:"topic"`
	Reason   string `json:"reason"`
	Priority string `json:"priority,omitempty"`
}

type StudyDay struct {
	Day     int      `json:"day"`
	Focus   string   `json:"focus"`
	Tasks   []string `json:"tasks"`
	Minutes int      `json:"minutes,omitempty"`
}

type LearningResource struct {
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
	URL   string `json:"url,omitempty"`
	Topic string `json:"topic,omitempty"`
}

type ProgressMetrics struct {
	ImprovementPercent int     `json:"improvementPercent"`
	ConsistencyScore   int     `json:"consistencyScore"`
	AttemptsSampled    int     `json:"attemptsSampled"`
	RecentAverage      float64 `json:"recentAverage"`
}

// RecommendationCache 每个用户一条，重新生成时整体替换
// swagger:model RecommendationCache
type RecommendationCache struct {
	Singleton
	WeaknessAnalysis datatypes.JSONSlice[Weakness]         `json:"weaknessAnalysis"`
	StudyPlan        datatypes.JSONSlice[StudyDay]         `json:"studyPlan"`
	ProgressMetrics  datatypes.JSONType[ProgressMetrics]   `json:"progressMetrics"`
	Resources        datatypes.JSONSlice[LearningResource] `json:"resources"`
	// 解析层级：json / lines / fallback
	ParseTier   string    `gorm:"size:20" json:"parseTier"`
	GeneratedAt time.Time `gorm:"index" json:"generatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (RecommendationCache) TableName() string {
	return "recommendation_caches"
}

// FreshAt 判断在 now 时刻是否仍处于新鲜期
func (r *RecommendationCache) FreshAt(now time.Time, window time.Duration) bool {
	return now.Before(r.GeneratedAt.Add(window))
}
