package service

import (
	"context"
	"fmt"
	"strings"

	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/textparse"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/internal/worker"
)

type GenerateRoadmapRequest struct {
	Topic string `json:"topic" validate:"required,max=100"`
	Level string `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
}

type RoadmapService struct {
	RoadmapRepo *repository.RoadmapRepository
	Progress    *ProgressService
	Runner      worker.Runner
	AI          *Generation
}

func NewRoadmapService(roadmapRepo *repository.RoadmapRepository, progress *ProgressService, runner worker.Runner, ai *Generation) *RoadmapService {
	return &RoadmapService{
		RoadmapRepo: roadmapRepo,
		Progress:    progress,
		Runner:      runner,
		AI:          ai,
	}
}

// GenerateRoadmap 生成学习路线；解析失败时使用固定的 5 步路线
func (s *RoadmapService) GenerateRoadmap(ctx context.Context, userID uint, req GenerateRoadmapRequest) (*model.Roadmap, error) {
	if err := util.Validate(req); err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(req.Topic)
	level := req.Level
	if level == "" {
		level = "beginner"
	}

	res := generate(ctx, s.AI, "roadmap", userID, roadmapPrompt(topic, level), textparse.RoadmapShape(topic))

	source := model.RoadmapSourceAI
	if res.Tier == textparse.TierFallback {
		source = model.RoadmapSourceFallback
	}
	roadmap := &model.Roadmap{
		UserID: userID,
		Topic:  topic,
		Level:  level,
		Source: source,
		Steps:  res.Value,
	}
	if err := s.RoadmapRepo.Create(ctx, roadmap); err != nil {
		return nil, fmt.Errorf("create roadmap: %w", err)
	}
	return roadmap, nil
}

func roadmapPrompt(topic, level string) string {
	return fmt.Sprintf("Create a step-by-step learning roadmap on %q for a %s learner. "+
		"Return a JSON array of 5 to 10 items, each with title and description.", topic, level)
}

func (s *RoadmapService) List(ctx context.Context, userID uint) ([]model.Roadmap, error) {
	return s.RoadmapRepo.ListByUser(ctx, userID)
}

// SetStepCompleted 更新步骤状态；新完成的步骤记一次 lesson 活动
func (s *RoadmapService) SetStepCompleted(ctx context.Context, userID, roadmapID uint, index int, done bool) (*model.Roadmap, error) {
	roadmap, changed, err := s.RoadmapRepo.SetStepCompleted(ctx, userID, roadmapID, index, done)
	if err != nil {
		return nil, err
	}
	if !changed {
		return roadmap, nil
	}
	if done {
		s.Runner.Submit(JobRecordActivity, s.Progress.ActivityJob(userID, model.ActivityLesson))
	}
	return roadmap, nil
}
