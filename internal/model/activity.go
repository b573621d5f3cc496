package model

import "time"

type ActivityKind string

const (
	ActivityLesson ActivityKind = "lesson"
	ActivityQuiz   ActivityKind = "quiz"
)

// Points 每类活动的固定积分
func (k ActivityKind) Points() int {
	switch k {
	case ActivityLesson:
		return 10
	case ActivityQuiz:
		return 20
	}
	return 0
}

func (k ActivityKind) Valid() bool {
	return k == ActivityLesson || k == ActivityQuiz
}

// DailyActivity 每个用户每天（UTC）唯一一条，由唯一索引保证
// swagger:model DailyActivity
type DailyActivity struct {
	ID                   uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID               uint      `gorm:"uniqueIndex:idx_activity_user_day;not null" json:"userId"`
	Day                  string    `gorm:"size:10;uniqueIndex:idx_activity_user_day;not null" json:"day"`
	LessonsCompleted     int       `gorm:"not null;default:0" json:"lessonsCompleted"`
	QuizzesTaken         int       `gorm:"not null;default:0" json:"quizzesTaken"`
	PointsEarned         int       `gorm:"not null;default:0" json:"pointsEarned"`
	CompletionPercentage int       `gorm:"not null;default:0" json:"completionPercentage"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

func (DailyActivity) TableName() string {
	return "daily_activities"
}
