package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"learnpulse_backend/internal/analytics"
	"learnpulse_backend/internal/config"
	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/textparse"
	"learnpulse_backend/pkg/logger"
	"learnpulse_backend/pkg/monitoring"
	"learnpulse_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const (
	SourceCache = "cache"
	SourceAI    = "ai"
)

type RecommendationResult struct {
	Source  string                     `json:"source"`
	Payload *model.RecommendationCache `json:"payload"`
}

// RecommendationService 按新鲜期提供缓存的学习建议，过期或强制刷新时重新生成
type RecommendationService struct {
	UserRepo           *repository.UserRepository
	AttemptRepo        *repository.AttemptRepository
	RoadmapRepo        *repository.RoadmapRepository
	ProfileRepo        *repository.ProfileRepository
	RecommendationRepo *repository.RecommendationRepository
	AI                 *Generation
	Now                func() time.Time

	mu  sync.RWMutex
	cfg config.RecommendationConfig
}

func NewRecommendationService(
	userRepo *repository.UserRepository,
	attemptRepo *repository.AttemptRepository,
	roadmapRepo *repository.RoadmapRepository,
	profileRepo *repository.ProfileRepository,
	recommendationRepo *repository.RecommendationRepository,
	ai *Generation,
	cfg config.RecommendationConfig,
) *RecommendationService {
	return &RecommendationService{
		UserRepo:           userRepo,
		AttemptRepo:        attemptRepo,
		RoadmapRepo:        roadmapRepo,
		ProfileRepo:        profileRepo,
		RecommendationRepo: recommendationRepo,
		AI:                 ai,
		Now:                time.Now,
		cfg:                cfg,
	}
}

// UpdateConfig 热更新新鲜期与过期时间
func (s *RecommendationService) UpdateConfig(cfg config.RecommendationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *RecommendationService) settings() config.RecommendationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

type recommendationContext struct {
	user     *model.User
	recent   []model.Attempt
	roadmaps []model.Roadmap
	profile  *model.PerformanceProfile
}

// GetRecommendations 总能返回一份学习计划：缓存、新生成或兜底计划
func (s *RecommendationService) GetRecommendations(ctx context.Context, userID uint, forceRefresh bool) (res *RecommendationResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.get",
		attribute.Int64("user.id", int64(userID)),
		attribute.Bool("force_refresh", forceRefresh))
	defer func() { tracing.EndSpan(span, err) }()

	cfg := s.settings()
	now := s.Now().UTC()

	if !forceRefresh {
		cached, err := s.RecommendationRepo.Find(ctx, userID, now)
		if err != nil {
			logger.Log.Warn("读取推荐缓存失败", zap.Uint("user_id", userID), zap.Error(err))
		} else if cached != nil && cached.FreshAt(now, cfg.FreshFor()) {
			monitoring.RecommendationRequests.WithLabelValues(SourceCache).Inc()
			return &RecommendationResult{Source: SourceCache, Payload: cached}, nil
		}
	}

	rc, err := s.gather(ctx, userID, cfg.HistorySize)
	if err != nil {
		return nil, err
	}

	metrics := analytics.Trend(rc.recent, now)
	in := textparse.PlanInput{WeakTopics: weakTopics(rc), Goals: rc.user.Goals, Level: rc.user.Level}
	parsed := generate(ctx, s.AI, "recommendation", userID, planPrompt(rc, metrics, in), textparse.PlanShape(in))

	entry := &model.RecommendationCache{
		WeaknessAnalysis: parsed.Value.WeaknessAnalysis,
		StudyPlan:        parsed.Value.StudyPlan,
		ProgressMetrics:  datatypes.NewJSONType(metrics),
		Resources:        parsed.Value.Resources,
		ParseTier:        string(parsed.Tier),
		GeneratedAt:      now,
		ExpiresAt:        now.Add(cfg.ExpireAfter()),
	}
	entry.UserID = userID

	if err := s.RecommendationRepo.Replace(ctx, entry, now); err != nil {
		logger.Log.Warn("保存推荐缓存失败", zap.Uint("user_id", userID), zap.Error(err))
	}

	monitoring.RecommendationRequests.WithLabelValues(SourceAI).Inc()
	return &RecommendationResult{Source: SourceAI, Payload: entry}, nil
}

// gather 并发读取用户、最近答题、路线图与画像
func (s *RecommendationService) gather(ctx context.Context, userID uint, historySize int) (*recommendationContext, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if historySize <= 0 {
		historySize = analytics.DefaultHistorySize
	}

	rc := &recommendationContext{user: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent, err := s.AttemptRepo.Recent(gctx, userID, historySize)
		if err != nil {
			return fmt.Errorf("recent attempts: %w", err)
		}
		rc.recent = recent
		return nil
	})
	g.Go(func() error {
		roadmaps, err := s.RoadmapRepo.ListByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("roadmaps: %w", err)
		}
		rc.roadmaps = roadmaps
		return nil
	})
	g.Go(func() error {
		profile, err := s.ProfileRepo.FindByUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		rc.profile = profile
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rc, nil
}

// weakTopics 优先使用画像中的 Weak 知识点，没有画像时取最近答错的知识点
func weakTopics(rc *recommendationContext) []string {
	if rc.profile != nil {
		if weak := analytics.WeakTopics(rc.profile.TopicMastery); len(weak) > 0 {
			return weak
		}
	}
	seen := map[string]bool{}
	var out []string
	for i := range rc.recent {
		for _, t := range missedTopics(&rc.recent[i]) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// missedTopics 答错题目的知识点，题目未标注时使用测验知识点
func missedTopics(a *model.Attempt) []string {
	topics := a.MissedTopics()
	if len(topics) > 0 || a.Quiz == nil || a.Quiz.Topic == "" {
		return topics
	}
	for _, ans := range a.Answers {
		if !ans.IsCorrect {
			return []string{a.Quiz.Topic}
		}
	}
	return nil
}

func planPrompt(rc *recommendationContext, metrics model.ProgressMetrics, in textparse.PlanInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a personalised %d-day study plan for a %s learner.\n", textparse.PlanDays, orLevel(in.Level))
	if len(in.Goals) > 0 {
		fmt.Fprintf(&b, "Learner goals: %s.\n", strings.Join(in.Goals, "; "))
	}
	if len(in.WeakTopics) > 0 {
		fmt.Fprintf(&b, "Weak topics: %s.\n", strings.Join(in.WeakTopics, ", "))
	}
	if rc.profile != nil {
		stats := rc.profile.OverallStats.Data()
		fmt.Fprintf(&b, "Overall: %d attempts, average score %d, accuracy %d%%.\n",
			stats.TotalAttempts, stats.AverageScore, stats.OverallAccuracy)
	}
	fmt.Fprintf(&b, "Trend: improvement %d%%, consistency %d/100 over the last %d attempts.\n",
		metrics.ImprovementPercent, metrics.ConsistencyScore, metrics.AttemptsSampled)

	if len(rc.recent) > 0 {
		b.WriteString("Recent attempts (newest first):\n")
		for i := range rc.recent {
			a := &rc.recent[i]
			topic := ""
			if a.Quiz != nil {
				topic = a.Quiz.Topic
			}
			fmt.Fprintf(&b, "- %s %s: %.0f%%", a.SubmittedAt.Format("2006-01-02"), topic, a.Percentage)
			if missed := missedTopics(a); len(missed) > 0 {
				fmt.Fprintf(&b, ", missed %s", strings.Join(missed, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(rc.roadmaps) > 0 {
		b.WriteString("Roadmaps:\n")
		for i := range rc.roadmaps {
			done, total := rc.roadmaps[i].StepCounts()
			fmt.Fprintf(&b, "- %s: %d/%d steps done\n", rc.roadmaps[i].Topic, done, total)
		}
	}

	b.WriteString("Respond with a JSON object with keys weaknessAnalysis (array of {topic, reason, priority}), ")
	fmt.Fprintf(&b, "studyPlan (exactly %d items of {day, focus, tasks, minutes}) and resources (array of {title, type, url, topic}).", textparse.PlanDays)
	return b.String()
}

func orLevel(level string) string {
	if strings.TrimSpace(level) == "" {
		return "beginner"
	}
	return level
}
