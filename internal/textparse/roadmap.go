package textparse

import (
	"encoding/json"
	"fmt"

	"learnpulse_backend/internal/model"
)

const maxRoadmapSteps = 20

var roadmapSchema = mustCompile("roadmap", `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"}
		}
	}
}`)

// RoadmapShape parses a list of roadmap steps. The fallback is a fixed
// five-step roadmap for topic.
func RoadmapShape(topic string) Shape[[]model.RoadmapStep] {
	return Shape[[]model.RoadmapStep]{
		Name:      "roadmap",
		Open:      '[',
		Schema:    roadmapSchema,
		Decode:    decodeRoadmap,
		FromLines: roadmapFromLines,
		Fallback:  func() []model.RoadmapStep { return FallbackRoadmap(topic) },
	}
}

func decodeRoadmap(data []byte) ([]model.RoadmapStep, bool) {
	var items []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	steps := make([]model.RoadmapStep, 0, len(items))
	for _, it := range items {
		title := cleanText(it.Title)
		if title == "" {
			continue
		}
		steps = append(steps, model.RoadmapStep{Title: title, Description: cleanText(it.Description)})
		if len(steps) == maxRoadmapSteps {
			break
		}
	}
	return steps, len(steps) > 0
}

func roadmapFromLines(lines []Line) ([]model.RoadmapStep, bool) {
	steps := make([]model.RoadmapStep, 0, len(lines))
	for _, l := range lines {
		steps = append(steps, model.RoadmapStep{Title: l.Title, Description: l.Description})
		if len(steps) == maxRoadmapSteps {
			break
		}
	}
	return steps, len(steps) > 0
}

func FallbackRoadmap(topic string) []model.RoadmapStep {
	topic = orDefault(topic, "the subject")
	return []model.RoadmapStep{
		{Title: "Foundations of " + topic, Description: fmt.Sprintf("Learn the core vocabulary and basic concepts of %s.", topic)},
		{Title: "Guided practice", Description: fmt.Sprintf("Work through introductory exercises on %s and check each answer.", topic)},
		{Title: "Core techniques", Description: fmt.Sprintf("Study the most common patterns and techniques used in %s.", topic)},
		{Title: "Applied project", Description: fmt.Sprintf("Build a small project that applies %s end to end.", topic)},
		{Title: "Review and assess", Description: fmt.Sprintf("Take a quiz on %s and revisit any weak areas.", topic)},
	}
}
