package model

import "gorm.io/datatypes"

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiSelect  QuestionType = "multi_select"
	Boolean      QuestionType = "boolean"
	FreeFormCode QuestionType = "free_form_code"
)

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiSelect, Boolean, FreeFormCode:
		return true
	}
	return false
}

const (
	QuizSourceManual   = "manual"
	QuizSourceAI       = "ai"
	QuizSourceFallback = "fallback"
)

// Quiz 创建后不可修改，编辑即生成新测验
// swagger:model Quiz
type Quiz struct {
	BaseModel
	Title            string         `gorm:"size:255;not null" json:"title"`
	Topic            string         `gorm:"size:100;index;not null" json:"topic"`
	Difficulty       string         `gorm:"size:30" json:"difficulty"`
	TimeLimitSeconds int            `gorm:"default:0" json:"timeLimitSeconds"`
	CourseID         *uint          `gorm:"index" json:"courseId,omitempty"`
	Source           string         `gorm:"size:20;default:'manual'" json:"source"`
	Questions        []QuizQuestion `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// swagger:model QuizQuestion
type QuizQuestion struct {
	BaseModel
	QuizID        uint                        `gorm:"index;not null" json:"quizId"`
	Type          QuestionType                `gorm:"size:30;not null" json:"type"`
	Prompt        string                      `gorm:"type:text;not null" json:"prompt"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectAnswer Variant                     `json:"correctAnswer"`
	Marks         float64                     `gorm:"default:1" json:"marks"`
	// 为空时沿用测验的 Topic
	Topic       string `gorm:"size:100" json:"topic,omitempty"`
	Explanation string `gorm:"type:text" json:"explanation,omitempty"`
	Order       int    `gorm:"default:0" json:"order"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// TopicOr 返回题目的知识点，缺省时使用测验知识点
func (q QuizQuestion) TopicOr(quizTopic string) string {
	if q.Topic != "" {
		return q.Topic
	}
	return quizTopic
}

// TotalMarks 为测验满分
func (q *Quiz) TotalMarks() float64 {
	total := 0.0
	for _, question := range q.Questions {
		total += question.Marks
	}
	return total
}
