package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"learnpulse_backend/internal/config"
	"learnpulse_backend/internal/textparse"
	"learnpulse_backend/internal/worker"
	"learnpulse_backend/pkg/logger"
	"learnpulse_backend/pkg/monitoring"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Generator 是生成式服务的边界：给定提示词返回原始文本
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var ErrAIDisabled = errors.New("ai generation is not configured")

const systemPrompt = "You are a tutoring assistant for a programming education platform. " +
	"When asked for structured output, reply with JSON only, without prose or code fences."

// AIService 通过 OpenAI 兼容接口生成文本，超时与限流都在这里处理
type AIService struct {
	mu      sync.RWMutex
	config  config.AIConfig
	client  *openai.Client
	limiter *rate.Limiter
}

func NewAIService(cfg config.AIConfig) *AIService {
	s := &AIService{}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig 在配置热更新时替换客户端与限流器
func (s *AIService) UpdateConfig(cfg config.AIConfig) {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
		burst = cfg.RequestsPerMinute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.client = openai.NewClientWithConfig(clientCfg)
	s.limiter = rate.NewLimiter(limit, burst)
}

func (s *AIService) snapshot() (config.AIConfig, *openai.Client, *rate.Limiter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.client, s.limiter
}

// Generate 超时与解析失败等价，调用方应当走兜底逻辑
func (s *AIService) Generate(ctx context.Context, prompt string) (string, error) {
	cfg, client, limiter := s.snapshot()
	if cfg.APIKey == "" {
		monitoring.AICalls.WithLabelValues("disabled").Inc()
		return "", ErrAIDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	if err := limiter.Wait(ctx); err != nil {
		monitoring.AICalls.WithLabelValues("throttled").Inc()
		return "", fmt.Errorf("ai rate limit: %w", err)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		monitoring.AICalls.WithLabelValues(status).Inc()
		return "", fmt.Errorf("ai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		monitoring.AICalls.WithLabelValues("empty").Inc()
		return "", errors.New("ai returned no choices")
	}

	monitoring.AICalls.WithLabelValues("ok").Inc()
	return resp.Choices[0].Message.Content, nil
}

// Generation 把生成、解析、归档串成一次调用
type Generation struct {
	Generator   Generator
	Transcripts TranscriptStore
	Runner      worker.Runner
}

// generate 永不失败：生成出错时以空文本进入解析器，得到兜底结果
func generate[T any](ctx context.Context, g *Generation, kind string, userID uint, prompt string, shape textparse.Shape[T]) textparse.Result[T] {
	raw, err := g.Generator.Generate(ctx, prompt)
	if err != nil {
		logger.Log.Warn("AI生成失败，使用兜底结果",
			zap.String("kind", kind),
			zap.Uint("user_id", userID),
			zap.Error(err))
		raw = ""
	}

	res := textparse.Parse(raw, shape)
	monitoring.TextParseCounter.WithLabelValues(shape.Name, string(res.Tier)).Inc()

	if raw != "" && g.Transcripts != nil && g.Runner != nil {
		t := Transcript{Kind: kind, UserID: userID, Prompt: prompt, Response: raw, Tier: string(res.Tier), CreatedAt: time.Now().UTC()}
		g.Runner.Submit("archive_transcript", func(ctx context.Context) error {
			return g.Transcripts.Save(ctx, t)
		})
	}
	return res
}
