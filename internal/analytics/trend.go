package analytics

import (
	"math"
	"time"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/util"
)

const (
	ConsistencyWindow = 7 * 24 * time.Hour
	pointsPerAttempt  = 20
)

// Trend computes deterministic progress metrics over recent attempts.
// attempts may come in any order.
func Trend(attempts []model.Attempt, now time.Time) model.ProgressMetrics {
	m := model.ProgressMetrics{AttemptsSampled: len(attempts)}
	if len(attempts) == 0 {
		return m
	}

	oldest, newest := attempts[0], attempts[0]
	sum := 0.0
	recent := 0
	cutoff := now.Add(-ConsistencyWindow)
	for _, a := range attempts {
		sum += a.Percentage
		if a.SubmittedAt.Before(oldest.SubmittedAt) {
			oldest = a
		}
		if a.SubmittedAt.After(newest.SubmittedAt) {
			newest = a
		}
		if !a.SubmittedAt.Before(cutoff) && !a.SubmittedAt.After(now) {
			recent++
		}
	}

	m.RecentAverage = math.Round(sum/float64(len(attempts))*100) / 100
	// 进步幅度同样基于百分比
	m.ImprovementPercent = ImprovementPercent(newest.Percentage, oldest.Percentage, len(attempts))
	m.ConsistencyScore = ConsistencyScore(recent)
	return m
}

// ImprovementPercent is round(100*(recent-oldest)/max(1,oldest)), or 0 with
// fewer than two samples.
func ImprovementPercent(recent, oldest float64, samples int) int {
	if samples < 2 {
		return 0
	}
	return util.RoundInt(100 * (recent - oldest) / math.Max(1, oldest))
}

// ConsistencyScore is min(100, 20 per attempt in the trailing seven days).
func ConsistencyScore(attemptsInWindow int) int {
	return min(100, pointsPerAttempt*attemptsInWindow)
}

// Streak counts consecutive active days ending today or yesterday (UTC).
// days are "YYYY-MM-DD" keys.
func Streak(days []string, now time.Time) int {
	active := make(map[string]bool, len(days))
	for _, d := range days {
		active[d] = true
	}
	day := now.UTC()
	if !active[util.DayKey(day)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for active[util.DayKey(day)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}
