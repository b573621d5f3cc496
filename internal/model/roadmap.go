package model

import "gorm.io/datatypes"

const (
	RoadmapSourceAI       = "ai"
	RoadmapSourceFallback = "fallback"
)

type RoadmapStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// swagger:model Roadmap
type Roadmap struct {
	BaseModel
	UserID uint                             `gorm:"index;not null" json:"userId"`
	Topic  string                           `gorm:"size:100;not null" json:"topic"`
	Level  string                           `gorm:"size:30" json:"level"`
	Source string                           `gorm:"size:20" json:"source"`
	Steps  datatypes.JSONSlice[RoadmapStep] `json:"steps"`
}

func (Roadmap) TableName() string {
	return "roadmaps"
}

// StepCounts 返回 (已完成步数, 总步数)
func (r *Roadmap) StepCounts() (int, int) {
	done := 0
	for _, s := range r.Steps {
		if s.Completed {
			done++
		}
	}
	return done, len(r.Steps)
}
