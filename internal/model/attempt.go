package model

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptOngoing   AttemptStatus = "ongoing"
	AttemptCompleted AttemptStatus = "completed"
)

// GradedAnswer 每道题一条，未作答的题 Given 为空
type GradedAnswer struct {
	QuestionID   uint     `json:"questionId"`
	Topic        string   `json:"topic,omitempty"`
	Given        *Variant `json:"given,omitempty"`
	IsCorrect    bool     `json:"isCorrect"`
	MarksAwarded float64  `json:"marksAwarded"`
}

// Attempt 一次测验提交。completed 之后只读，只追加不修改。
// swagger:model Attempt
type Attempt struct {
	UUIDBase
	UserID           uint                              `gorm:"index;uniqueIndex:idx_attempt_user_key;not null" json:"userId"`
	QuizID           uint                              `gorm:"index;not null" json:"quizId"`
	Quiz             *Quiz                             `gorm:"foreignKey:QuizID" json:"quiz,omitempty"`
	Answers          datatypes.JSONSlice[GradedAnswer] `json:"answers"`
	Score            float64                           `gorm:"not null;default:0" json:"score"`
	MaxScore         float64                           `gorm:"not null;default:0" json:"maxScore"`
	TotalQuestions   int                               `gorm:"not null;default:0" json:"totalQuestions"`
	Percentage       float64                           `gorm:"not null;default:0" json:"percentage"`
	Status           AttemptStatus                     `gorm:"size:20;index;default:'completed'" json:"status"`
	SubmittedAt      time.Time                         `gorm:"index" json:"submittedAt"`
	TimeTakenSeconds int                               `gorm:"default:0" json:"timeTakenSeconds"`
	// 可选幂等键，同一用户重复提交同一个键时返回已有记录
	SubmissionKey *string `gorm:"size:64;uniqueIndex:idx_attempt_user_key" json:"submissionKey,omitempty"`
}

func (Attempt) TableName() string {
	return "quiz_attempts"
}

func (a *Attempt) CorrectCount() int {
	n := 0
	for _, ans := range a.Answers {
		if ans.IsCorrect {
			n++
		}
	}
	return n
}

// MissedTopics 返回答错题目涉及的知识点（去重，保持出现顺序）
func (a *Attempt) MissedTopics() []string {
	seen := map[string]bool{}
	var topics []string
	for _, ans := range a.Answers {
		if ans.IsCorrect || ans.Topic == "" || seen[ans.Topic] {
			continue
		}
		seen[ans.Topic] = true
		topics = append(topics, ans.Topic)
	}
	return topics
}
