package textparse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"learnpulse_backend/internal/model"
)

const maxQuestions = 50

// QuestionsInput parameterises quiz generation parsing.
type QuestionsInput struct {
	Topic      string
	Difficulty string
	// Count caps the number of questions kept; zero means no cap.
	Count int
}

var questionsSchema = mustCompile("questions", `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"anyOf": [
			{"required": ["prompt"], "properties": {"prompt": {"type": "string", "minLength": 1}}},
			{"required": ["question"], "properties": {"question": {"type": "string", "minLength": 1}}}
		]
	}
}`)

// QuestionsShape parses a batch of quiz questions. Questions recovered from
// plain lines carry no answer key, so they become free-form questions that
// are never auto-graded.
func QuestionsShape(in QuestionsInput) Shape[[]model.QuizQuestion] {
	return Shape[[]model.QuizQuestion]{
		Name:      "questions",
		Open:      '[',
		Schema:    questionsSchema,
		Decode:    func(data []byte) ([]model.QuizQuestion, bool) { return decodeQuestions(data, in) },
		FromLines: func(lines []Line) ([]model.QuizQuestion, bool) { return questionsFromLines(lines, in) },
		Fallback:  func() []model.QuizQuestion { return FallbackQuestions(in) },
	}
}

type rawQuestion struct {
	Prompt        string          `json:"prompt"`
	Question      string          `json:"question"`
	Type          string          `json:"type"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Answer        json.RawMessage `json:"answer"`
	Marks         float64         `json:"marks"`
	Topic         string          `json:"topic"`
	Explanation   string          `json:"explanation"`
}

func decodeQuestions(data []byte, in QuestionsInput) ([]model.QuizQuestion, bool) {
	var items []rawQuestion
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	out := make([]model.QuizQuestion, 0, len(items))
	for _, it := range items {
		prompt := strings.TrimSpace(orDefault(it.Prompt, it.Question))
		if prompt == "" {
			continue
		}
		answer := it.CorrectAnswer
		if len(bytes.TrimSpace(answer)) == 0 {
			answer = it.Answer
		}
		options := cleanTasks(it.Options)
		qt := inferType(it.Type, options, answer)

		q := model.QuizQuestion{
			Type:        qt,
			Prompt:      prompt,
			Options:     options,
			Marks:       it.Marks,
			Topic:       cleanText(it.Topic),
			Explanation: strings.TrimSpace(it.Explanation),
		}
		if qt != model.FreeFormCode {
			q.CorrectAnswer = model.ResolveVariant(qt, answer)
			// 无法评分的选择题降级为开放题
			if q.CorrectAnswer.IsZero() {
				q.Type = model.FreeFormCode
				q.CorrectAnswer = model.Variant{}
			}
		}
		out = append(out, q)
	}
	out = finishQuestions(out, in)
	return out, len(out) > 0
}

func inferType(declared string, options []string, answer json.RawMessage) model.QuestionType {
	t := model.QuestionType(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(declared), "-", "_")))
	switch t {
	case "multiple_choice", "mcq":
		t = model.SingleChoice
	case "multiple_select", "multi_choice":
		t = model.MultiSelect
	case "true_false", "bool":
		t = model.Boolean
	case "code", "free_form", "open":
		t = model.FreeFormCode
	}
	if t.Valid() {
		return t
	}

	trimmed := bytes.TrimSpace(answer)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[' && len(options) > 0:
		return model.MultiSelect
	case len(options) > 0:
		return model.SingleChoice
	case bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")):
		return model.Boolean
	}
	return model.FreeFormCode
}

func questionsFromLines(lines []Line, in QuestionsInput) ([]model.QuizQuestion, bool) {
	out := make([]model.QuizQuestion, 0, len(lines))
	for _, l := range lines {
		prompt := l.Title
		if l.Description != "" {
			prompt = l.Title + ": " + l.Description
		}
		out = append(out, model.QuizQuestion{Type: model.FreeFormCode, Prompt: prompt})
	}
	out = finishQuestions(out, in)
	return out, len(out) > 0
}

func finishQuestions(qs []model.QuizQuestion, in QuestionsInput) []model.QuizQuestion {
	limit := maxQuestions
	if in.Count > 0 && in.Count < limit {
		limit = in.Count
	}
	if len(qs) > limit {
		qs = qs[:limit]
	}
	for i := range qs {
		qs[i].Order = i + 1
		if qs[i].Marks <= 0 {
			qs[i].Marks = 1
		}
	}
	return qs
}

var fallbackPrompts = []string{
	"Explain the core idea of %s in your own words.",
	"Write a short example that uses %s.",
	"Describe a common mistake when working with %s and how to avoid it.",
	"Compare %s with a related concept you already know.",
	"Outline how you would debug a problem involving %s.",
}

// FallbackQuestions returns up to five open questions about the topic.
func FallbackQuestions(in QuestionsInput) []model.QuizQuestion {
	topic := orDefault(in.Topic, "the subject")
	n := len(fallbackPrompts)
	if in.Count > 0 && in.Count < n {
		n = in.Count
	}
	out := make([]model.QuizQuestion, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.QuizQuestion{
			Type:   model.FreeFormCode,
			Prompt: fmt.Sprintf(fallbackPrompts[i], topic),
			Marks:  1,
			Order:  i + 1,
		})
	}
	return out
}
