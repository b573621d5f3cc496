package service

import (
	"learnpulse_backend/internal/textparse"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/pkg/monitoring"
)

const (
	ShapeRoadmap   = "roadmap"
	ShapePlan      = "plan"
	ShapeQuestions = "questions"
)

type ParseRequest struct {
	Text       string   `json:"text"`
	Topic      string   `json:"topic" validate:"max=100"`
	Level      string   `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	WeakTopics []string `json:"weakTopics"`
	Count      int      `json:"count" validate:"omitempty,min=1,max=50"`
}

type ParseResult struct {
	Shape string      `json:"shape"`
	Tier  string      `json:"tier"`
	Value interface{} `json:"value"`
}

// ParseText 直接运行结构化文本解析器，用于排查生成结果
func ParseText(shape string, req ParseRequest) (*ParseResult, error) {
	if err := util.Validate(req); err != nil {
		return nil, err
	}

	var (
		value interface{}
		tier  textparse.Tier
	)
	switch shape {
	case ShapeRoadmap:
		res := textparse.Parse(req.Text, textparse.RoadmapShape(req.Topic))
		value, tier = res.Value, res.Tier
	case ShapePlan:
		res := textparse.Parse(req.Text, textparse.PlanShape(textparse.PlanInput{WeakTopics: req.WeakTopics, Level: req.Level}))
		value, tier = res.Value, res.Tier
	case ShapeQuestions:
		count := req.Count
		if count == 0 {
			count = 5
		}
		res := textparse.Parse(req.Text, textparse.QuestionsShape(textparse.QuestionsInput{Topic: req.Topic, Count: count}))
		value, tier = res.Value, res.Tier
	default:
		return nil, util.NewValidationError("shape", "unknown shape %q", shape)
	}

	monitoring.TextParseCounter.WithLabelValues(shape, string(tier)).Inc()
	return &ParseResult{Shape: shape, Tier: string(tier), Value: value}, nil
}
