package model

import (
	"time"

	"gorm.io/datatypes"
)

type MasteryTier string

const (
	MasteryStrong    MasteryTier = "Strong"
	MasteryImproving MasteryTier = "Improving"
	MasteryWeak      MasteryTier = "Weak"
)

type OverallStats struct {
	TotalAttempts    int     `json:"totalAttempts"`
	TotalScore       float64 `json:"totalScore"`
	AverageScore     int     `json:"averageScore"`
	OverallAccuracy  int     `json:"overallAccuracy"`
	TotalTimeSeconds int     `json:"totalTimeSeconds"`
}

type CoursePerformance struct {
	CourseID     uint   `json:"courseId"`
	Title        string `json:"title"`
	AverageScore int    `json:"averageScore"`
	Completion   int    `json:"completion"`
	Attempts     int    `json:"attempts"`
}

type TopicMastery struct {
	Topic    string      `json:"topic"`
	Correct  int         `json:"correct"`
	Total    int         `json:"total"`
	Attempts int         `json:"attempts"`
	Accuracy int         `json:"accuracy"`
	Tier     MasteryTier `json:"tier"`
}

type PerformancePoint struct {
	Date     time.Time `json:"date"`
	Score    float64   `json:"score"`
	Accuracy int       `json:"accuracy"`
}

// PerformanceProfile 每次重算整体替换，答题记录才是事实来源
// swagger:model PerformanceProfile
type PerformanceProfile struct {
	Singleton
	OverallStats       datatypes.JSONType[OverallStats]       `json:"overallStats"`
	CoursePerformance  datatypes.JSONSlice[CoursePerformance] `json:"coursePerformance"`
	TopicMastery       datatypes.JSONSlice[TopicMastery]      `json:"topicMastery"`
	PerformanceHistory datatypes.JSONSlice[PerformancePoint]  `json:"performanceHistory"`
	Suggestions        datatypes.JSONSlice[string]            `json:"suggestions"`
	ComputedAt         time.Time                              `json:"computedAt"`
}

func (PerformanceProfile) TableName() string {
	return "performance_profiles"
}

// EmptyProfile 没有任何已完成答题时返回的零值档案
func EmptyProfile(userID uint) *PerformanceProfile {
	p := &PerformanceProfile{
		OverallStats:       datatypes.NewJSONType(OverallStats{}),
		CoursePerformance:  datatypes.JSONSlice[CoursePerformance]{},
		TopicMastery:       datatypes.JSONSlice[TopicMastery]{},
		PerformanceHistory: datatypes.JSONSlice[PerformancePoint]{},
		Suggestions:        datatypes.JSONSlice[string]{},
	}
	p.UserID = userID
	return p
}
