// Package grading scores quiz submissions. It never fails: missing or
// malformed answers are graded as incorrect.
package grading

import (
	"encoding/json"
	"math"

	"learnpulse_backend/internal/model"
)

// CodeEvaluator is the extension point for free-form code questions.
type CodeEvaluator interface {
	Evaluate(q model.QuizQuestion, given model.Variant) bool
}

// NoCodeEvaluation marks every code answer incorrect. There is no sandbox.
type NoCodeEvaluation struct{}

func (NoCodeEvaluation) Evaluate(model.QuizQuestion, model.Variant) bool { return false }

type Grader struct {
	Code CodeEvaluator
}

func New() *Grader {
	return &Grader{Code: NoCodeEvaluation{}}
}

// Result is the graded outcome of one submission.
type Result struct {
	Answers        []model.GradedAnswer
	Score          float64
	MaxScore       float64
	TotalQuestions int
	Percentage     float64
}

// Grade scores submitted answers (keyed by question ID) against quiz.
func (g *Grader) Grade(quiz *model.Quiz, submitted map[uint]json.RawMessage) Result {
	res := Result{
		Answers:        make([]model.GradedAnswer, 0, len(quiz.Questions)),
		TotalQuestions: len(quiz.Questions),
	}

	for _, q := range quiz.Questions {
		marks := math.Max(0, q.Marks)
		res.MaxScore += marks

		ga := model.GradedAnswer{
			QuestionID: q.ID,
			Topic:      q.TopicOr(quiz.Topic),
		}

		if raw, ok := submitted[q.ID]; ok {
			given := model.ResolveVariant(q.Type, raw)
			if !given.IsZero() {
				ga.Given = &given
				ga.IsCorrect = g.isCorrect(q, given)
			}
		}

		if ga.IsCorrect {
			ga.MarksAwarded = marks
			res.Score += marks
		}
		res.Answers = append(res.Answers, ga)
	}

	res.Percentage = Percentage(res.Score, res.TotalQuestions)
	return res
}

func (g *Grader) isCorrect(q model.QuizQuestion, given model.Variant) bool {
	switch q.Type {
	case model.SingleChoice, model.Boolean, model.MultiSelect:
		want := model.NormalizeVariant(q.Type, q.CorrectAnswer)
		if want.IsZero() {
			return false
		}
		return want.Equal(given)
	case model.FreeFormCode:
		if g.Code == nil {
			return false
		}
		return g.Code.Evaluate(q, given)
	}
	return false
}

// Percentage is 100*score/max(1,totalQuestions), clamped to [0,100] and
// rounded to two decimals.
func Percentage(score float64, totalQuestions int) float64 {
	denom := float64(totalQuestions)
	if denom < 1 {
		denom = 1
	}
	p := 100 * score / denom
	p = math.Max(0, math.Min(100, p))
	return math.Round(p*100) / 100
}
