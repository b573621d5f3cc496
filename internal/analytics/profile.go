// Package analytics derives learner performance profiles and trend metrics
// from the attempt log. Everything here is a pure function of its inputs.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/util"

	"gorm.io/datatypes"
)

const (
	StrongThreshold = 85
	WeakThreshold   = 60

	// 低于该整体正确率时给出复习习惯建议
	RevisionThreshold = 70
	// 少于该次数时给出坚持练习建议
	ConsistencyMinAttempts = 5

	DefaultHistorySize = 10
)

// Classify maps a topic accuracy (0-100) to its mastery tier.
func Classify(accuracy int) model.MasteryTier {
	switch {
	case accuracy >= StrongThreshold:
		return model.MasteryStrong
	case accuracy < WeakThreshold:
		return model.MasteryWeak
	}
	return model.MasteryImproving
}

// Enrollment is the course view needed for course-level averages.
type Enrollment struct {
	CourseID  uint
	Title     string
	Completed bool
}

// ProfileInput holds everything a recompute reads.
type ProfileInput struct {
	UserID uint
	// Attempts must be completed attempts with Quiz preloaded (for CourseID).
	Attempts    []model.Attempt
	Enrollments []Enrollment
	HistorySize int
	Now         time.Time
}

type topicAcc struct {
	correct, total, attempts int
	order                    int
}

// BuildProfile recomputes a full profile from history. ok is false when there
// are no attempts, in which case nothing should be written.
func BuildProfile(in ProfileInput) (*model.PerformanceProfile, bool) {
	if len(in.Attempts) == 0 {
		return nil, false
	}

	attempts := append([]model.Attempt(nil), in.Attempts...)
	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].SubmittedAt.Before(attempts[j].SubmittedAt)
	})

	var (
		stats      model.OverallStats
		correctSum int
		totalSum   int
		history    = make([]model.PerformancePoint, 0, len(attempts))
		topics     = map[string]*topicAcc{}
		courseSum  = map[uint]float64{}
		courseN    = map[uint]int{}
	)

	for i := range attempts {
		a := &attempts[i]
		stats.TotalAttempts++
		// 平均分按百分比计，不同满分的测验可比
		stats.TotalScore += a.Percentage
		stats.TotalTimeSeconds += a.TimeTakenSeconds

		// 未作答的题按答错计入
		correct, total := a.CorrectCount(), len(a.Answers)
		correctSum += correct
		totalSum += total

		history = append(history, model.PerformancePoint{
			Date:     a.SubmittedAt,
			Score:    a.Percentage,
			Accuracy: util.Percent(float64(correct), float64(total)),
		})

		quizTopic := ""
		if a.Quiz != nil {
			quizTopic = a.Quiz.Topic
			if a.Quiz.CourseID != nil {
				courseSum[*a.Quiz.CourseID] += a.Percentage
				courseN[*a.Quiz.CourseID]++
			}
		}

		touched := map[string]bool{}
		for _, ans := range a.Answers {
			topic := strings.TrimSpace(ans.Topic)
			if topic == "" {
				topic = quizTopic
			}
			if topic == "" {
				continue
			}
			acc, ok := topics[topic]
			if !ok {
				acc = &topicAcc{order: len(topics)}
				topics[topic] = acc
			}
			acc.total++
			if ans.IsCorrect {
				acc.correct++
			}
			if !touched[topic] {
				touched[topic] = true
				acc.attempts++
			}
		}
	}

	stats.AverageScore = util.RoundInt(stats.TotalScore / float64(stats.TotalAttempts))
	stats.OverallAccuracy = util.Percent(float64(correctSum), float64(totalSum))

	mastery := make([]model.TopicMastery, 0, len(topics))
	for name, acc := range topics {
		accuracy := util.Percent(float64(acc.correct), float64(acc.total))
		mastery = append(mastery, model.TopicMastery{
			Topic:    name,
			Correct:  acc.correct,
			Total:    acc.total,
			Attempts: acc.attempts,
			Accuracy: accuracy,
			Tier:     Classify(accuracy),
		})
	}
	sort.Slice(mastery, func(i, j int) bool {
		return topics[mastery[i].Topic].order < topics[mastery[j].Topic].order
	})

	courses := make([]model.CoursePerformance, 0, len(in.Enrollments))
	for _, e := range in.Enrollments {
		cp := model.CoursePerformance{CourseID: e.CourseID, Title: e.Title, Attempts: courseN[e.CourseID]}
		if n := courseN[e.CourseID]; n > 0 {
			cp.AverageScore = util.RoundInt(courseSum[e.CourseID] / float64(n))
		}
		if e.Completed {
			cp.Completion = 100
		}
		courses = append(courses, cp)
	}

	size := in.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	if len(history) > size {
		history = history[len(history)-size:]
	}

	p := &model.PerformanceProfile{
		OverallStats:       datatypes.NewJSONType(stats),
		CoursePerformance:  courses,
		TopicMastery:       mastery,
		PerformanceHistory: history,
		Suggestions:        Suggestions(stats, mastery),
		ComputedAt:         in.Now,
	}
	p.UserID = in.UserID
	return p, true
}

// Suggestions applies the independent suggestion rules in order.
func Suggestions(stats model.OverallStats, mastery []model.TopicMastery) []string {
	out := []string{}

	if weak := WeakTopics(mastery); len(weak) > 0 {
		out = append(out, fmt.Sprintf("Focus your next sessions on your weakest topics: %s.", strings.Join(weak, ", ")))
	}
	if stats.OverallAccuracy < RevisionThreshold {
		out = append(out, "Your overall accuracy is below 70%. Review explanations for missed questions before moving on.")
	}
	if stats.TotalAttempts < ConsistencyMinAttempts {
		out = append(out, "Take a few more quizzes to build a consistent practice habit.")
	}
	return out
}

// WeakTopics lists the Weak-tier topics in profile order.
func WeakTopics(mastery []model.TopicMastery) []string {
	var weak []string
	for _, m := range mastery {
		if m.Tier == model.MasteryWeak {
			weak = append(weak, m.Topic)
		}
	}
	return weak
}
