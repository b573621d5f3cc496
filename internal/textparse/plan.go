package textparse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"learnpulse_backend/internal/model"
)

const (
	PlanDays           = 7
	defaultPlanMinutes = 30
)

// Plan is the AI-derived part of a recommendation.
type Plan struct {
	WeaknessAnalysis []model.Weakness         `json:"weaknessAnalysis"`
	StudyPlan        []model.StudyDay         `json:"studyPlan"`
	Resources        []model.LearningResource `json:"resources"`
}

// PlanInput drives the deterministic parts of a plan: padding of short study
// plans and the fallback.
type PlanInput struct {
	WeakTopics []string
	Goals      []string
	Level      string
}

var planSchema = mustCompile("plan", `{
	"type": "object",
	"required": ["studyPlan"],
	"properties": {
		"weaknessAnalysis": {"type": "array"},
		"studyPlan": {"type": "array", "minItems": 1, "items": {"type": "object"}},
		"resources": {"type": "array"}
	}
}`)

// PlanShape parses a recommendation plan. The study plan always has exactly
// seven days.
func PlanShape(in PlanInput) Shape[Plan] {
	return Shape[Plan]{
		Name:      "plan",
		Open:      '{',
		Schema:    planSchema,
		Decode:    func(data []byte) (Plan, bool) { return decodePlan(data, in) },
		FromLines: func(lines []Line) (Plan, bool) { return planFromLines(lines, in) },
		Fallback:  func() Plan { return FallbackPlan(in) },
	}
}

// flexStrings accepts either a JSON string or an array of strings.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexStrings{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		// 非字符串元素直接忽略
		*f = nil
		return nil
	}
	*f = ss
	return nil
}

func decodePlan(data []byte, in PlanInput) (Plan, bool) {
	var raw struct {
		WeaknessAnalysis []struct {
			Topic    string `json:"topic"`
			Reason   string `json:"reason"`
			Priority string `json:"priority"`
		} `json:"weaknessAnalysis"`
		StudyPlan []struct {
			Focus   string          `json:"focus"`
			Title   string          `json:"title"`
			Tasks   flexStrings     `json:"tasks"`
			Minutes json.RawMessage `json:"minutes"`
		} `json:"studyPlan"`
		Resources []model.LearningResource `json:"resources"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Plan{}, false
	}

	var p Plan
	for _, w := range raw.WeaknessAnalysis {
		if topic := cleanText(w.Topic); topic != "" {
			p.WeaknessAnalysis = append(p.WeaknessAnalysis, model.Weakness{
				Topic:    topic,
				Reason:   cleanText(w.Reason),
				Priority: cleanText(w.Priority),
			})
		}
	}

	for _, d := range raw.StudyPlan {
		focus := cleanText(orDefault(d.Focus, d.Title))
		tasks := cleanTasks(d.Tasks)
		if focus == "" && len(tasks) == 0 {
			continue
		}
		if focus == "" {
			focus = tasks[0]
		}
		p.StudyPlan = append(p.StudyPlan, model.StudyDay{
			Focus:   focus,
			Tasks:   tasks,
			Minutes: parseMinutes(d.Minutes),
		})
	}
	if len(p.StudyPlan) == 0 {
		return Plan{}, false
	}

	for _, r := range raw.Resources {
		r.Title = cleanText(r.Title)
		if r.Title != "" {
			p.Resources = append(p.Resources, r)
		}
	}

	return normalizePlan(p, in), true
}

var dayPrefixRe = regexp.MustCompile(`(?i)^(?:day\s*\d{1,2}|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b\s*(?:[:\-–—]\s*)?`)

func planFromLines(lines []Line, in PlanInput) (Plan, bool) {
	var p Plan
	for _, l := range lines {
		focus := strings.TrimSpace(dayPrefixRe.ReplaceAllString(l.Title, ""))
		desc := l.Description
		// "Day 1: Arrays" puts the day label in the title
		if focus == "" {
			if desc == "" {
				continue
			}
			if sub, ok := splitLine(desc); ok {
				focus, desc = sub.Title, sub.Description
			} else {
				focus, desc = desc, ""
			}
		}
		day := model.StudyDay{Focus: focus}
		if desc != "" {
			day.Tasks = []string{desc}
		}
		p.StudyPlan = append(p.StudyPlan, day)
	}
	if len(p.StudyPlan) == 0 {
		return Plan{}, false
	}
	fb := FallbackPlan(in)
	p.WeaknessAnalysis = fb.WeaknessAnalysis
	p.Resources = fb.Resources
	return normalizePlan(p, in), true
}

// normalizePlan truncates or pads the study plan to seven days, numbers them
// and fills defaults.
func normalizePlan(p Plan, in PlanInput) Plan {
	if len(p.StudyPlan) > PlanDays {
		p.StudyPlan = p.StudyPlan[:PlanDays]
	}
	if missing := PlanDays - len(p.StudyPlan); missing > 0 {
		pad := fallbackDays(in)
		p.StudyPlan = append(p.StudyPlan, pad[len(p.StudyPlan):]...)
	}
	for i := range p.StudyPlan {
		p.StudyPlan[i].Day = i + 1
		if p.StudyPlan[i].Minutes <= 0 {
			p.StudyPlan[i].Minutes = defaultPlanMinutes
		}
		if p.StudyPlan[i].Tasks == nil {
			p.StudyPlan[i].Tasks = []string{}
		}
	}
	if p.WeaknessAnalysis == nil {
		p.WeaknessAnalysis = []model.Weakness{}
	}
	if p.Resources == nil {
		p.Resources = []model.LearningResource{}
	}
	return p
}

// FallbackPlan is the deterministic plan built from the learner's weak
// topics, goals and level.
func FallbackPlan(in PlanInput) Plan {
	p := Plan{StudyPlan: fallbackDays(in)}

	for _, t := range in.WeakTopics {
		p.WeaknessAnalysis = append(p.WeaknessAnalysis, model.Weakness{
			Topic:    t,
			Reason:   "Accuracy in recent attempts is below the target level.",
			Priority: "high",
		})
	}
	for _, f := range focusList(in) {
		p.Resources = append(p.Resources, model.LearningResource{
			Title: fmt.Sprintf("%s practice set", f),
			Type:  "practice",
			Topic: f,
		})
	}
	return normalizePlan(p, in)
}

func focusList(in PlanInput) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range append(append([]string{}, in.WeakTopics...), in.Goals...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		out = []string{"General review"}
	}
	return out
}

func fallbackDays(in PlanInput) []model.StudyDay {
	focus := focusList(in)
	level := orDefault(in.Level, "beginner")
	minutes := defaultPlanMinutes
	switch strings.ToLower(level) {
	case "intermediate":
		minutes = 45
	case "advanced":
		minutes = 60
	}

	days := make([]model.StudyDay, 0, PlanDays)
	for i := 0; i < PlanDays-1; i++ {
		f := focus[i%len(focus)]
		days = append(days, model.StudyDay{
			Day:   i + 1,
			Focus: f,
			Tasks: []string{
				fmt.Sprintf("Review %s notes at %s level", f, level),
				fmt.Sprintf("Complete a short practice set on %s", f),
			},
			Minutes: minutes,
		})
	}
	days = append(days, model.StudyDay{
		Day:     PlanDays,
		Focus:   "Review and self-assessment",
		Tasks:   []string{"Retake a quiz covering this week's topics", "Note anything still unclear"},
		Minutes: minutes,
	})
	return days
}

func cleanTasks(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = cleanText(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseMinutes(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err == nil && v > 0 {
			return v
		}
	}
	return 0
}
