package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"learnpulse_backend/internal/grading"
	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/textparse"
	"learnpulse_backend/internal/util"
	"learnpulse_backend/internal/worker"
	"learnpulse_backend/pkg/logger"

	"go.uber.org/zap"
)

// SubmitQuizRequest 提交答案，键为题目 ID；未出现的题目按未作答处理
type SubmitQuizRequest struct {
	Answers          map[uint]json.RawMessage `json:"answers"`
	TimeTakenSeconds int                      `json:"timeTakenSeconds" validate:"gte=0"`
	SubmissionKey    string                   `json:"submissionKey" validate:"omitempty,max=64"`
}

type SubmitResult struct {
	Attempt *model.Attempt `json:"attempt"`
	// Replayed 为 true 表示命中幂等键，返回的是已有记录
	Replayed bool `json:"replayed"`
}

type GenerateQuizRequest struct {
	Topic      string `json:"topic" validate:"required,max=100"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Count      int    `json:"count" validate:"omitempty,min=1,max=50"`
	CourseID   *uint  `json:"courseId"`
}

type QuestionInput struct {
	Type          model.QuestionType `json:"type" validate:"required"`
	Prompt        string             `json:"prompt" validate:"required"`
	Options       []string           `json:"options"`
	CorrectAnswer json.RawMessage    `json:"correctAnswer"`
	Marks         float64            `json:"marks" validate:"gte=0"`
	Topic         string             `json:"topic" validate:"max=100"`
	Explanation   string             `json:"explanation"`
}

type CreateQuizRequest struct {
	Title            string          `json:"title" validate:"required,max=255"`
	Topic            string          `json:"topic" validate:"required,max=100"`
	Difficulty       string          `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	TimeLimitSeconds int             `json:"timeLimitSeconds" validate:"gte=0"`
	CourseID         *uint           `json:"courseId"`
	Questions        []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

// PublicQuestion 是发给答题者的题目视图，不含答案与解析
type PublicQuestion struct {
	ID     uint               `json:"id"`
	Type   model.QuestionType `json:"type"`
	Prompt string             `json:"prompt"`
	// 选项保持原始顺序
	Options []string `json:"options,omitempty"`
	Marks   float64  `json:"marks"`
	Topic   string   `json:"topic,omitempty"`
	Order   int      `json:"order"`
}

type PublicQuiz struct {
	ID               uint             `json:"id"`
	Title            string           `json:"title"`
	Topic            string           `json:"topic"`
	Difficulty       string           `json:"difficulty"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	CourseID         *uint            `json:"courseId,omitempty"`
	Source           string           `json:"source"`
	Questions        []PublicQuestion `json:"questions"`
}

type QuizService struct {
	QuizRepo    *repository.QuizRepository
	AttemptRepo *repository.AttemptRepository
	Progress    *ProgressService
	Runner      worker.Runner
	Grader      *grading.Grader
	AI          *Generation
	Now         func() time.Time
}

func NewQuizService(
	quizRepo *repository.QuizRepository,
	attemptRepo *repository.AttemptRepository,
	progress *ProgressService,
	runner worker.Runner,
	ai *Generation,
) *QuizService {
	return &QuizService{
		QuizRepo:    quizRepo,
		AttemptRepo: attemptRepo,
		Progress:    progress,
		Runner:      runner,
		Grader:      grading.New(),
		AI:          ai,
		Now:         time.Now,
	}
}

// SubmitQuiz 同步评分并持久化答题记录；活动记录与画像重算交给后台队列
func (s *QuizService) SubmitQuiz(ctx context.Context, userID, quizID uint, req SubmitQuizRequest) (*SubmitResult, error) {
	if userID == 0 {
		return nil, util.NewValidationError("userId", "is required")
	}
	if quizID == 0 {
		return nil, util.NewValidationError("quizId", "is required")
	}
	if err := util.Validate(req); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.SubmissionKey)
	if key != "" {
		existing, err := s.AttemptRepo.FindBySubmissionKey(ctx, userID, key)
		if err != nil {
			return nil, fmt.Errorf("find attempt by key: %w", err)
		}
		if existing != nil {
			if existing.QuizID != quizID {
				return nil, util.NewValidationError("submissionKey", "already used for another quiz")
			}
			return &SubmitResult{Attempt: existing, Replayed: true}, nil
		}
	}

	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, err
	}

	known := make(map[uint]bool, len(quiz.Questions))
	for _, q := range quiz.Questions {
		known[q.ID] = true
	}
	for id := range req.Answers {
		if !known[id] {
			return nil, util.NewValidationError("answers", "question %d does not belong to quiz %d", id, quizID)
		}
	}

	result := s.Grader.Grade(quiz, req.Answers)
	attempt := &model.Attempt{
		UserID:           userID,
		QuizID:           quizID,
		Answers:          result.Answers,
		Score:            result.Score,
		MaxScore:         result.MaxScore,
		TotalQuestions:   result.TotalQuestions,
		Percentage:       result.Percentage,
		Status:           model.AttemptCompleted,
		SubmittedAt:      s.Now().UTC(),
		TimeTakenSeconds: req.TimeTakenSeconds,
	}
	if key != "" {
		attempt.SubmissionKey = &key
	}

	if err := s.AttemptRepo.Create(ctx, attempt); err != nil {
		// 并发的同键提交只有一条能写入，另一条返回已写入的记录
		if key != "" {
			if existing, findErr := s.AttemptRepo.FindBySubmissionKey(ctx, userID, key); findErr == nil && existing != nil {
				return &SubmitResult{Attempt: existing, Replayed: true}, nil
			}
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.Runner.Submit(JobRecordActivity, s.Progress.ActivityJob(userID, model.ActivityQuiz))
	s.Runner.Submit(JobRecomputeProfile, s.Progress.RecomputeJob(userID))

	logger.Log.Info("Quiz graded",
		zap.Uint("user_id", userID),
		zap.Uint("quiz_id", quizID),
		zap.String("attempt_id", attempt.ID),
		zap.Float64("percentage", attempt.Percentage))
	return &SubmitResult{Attempt: attempt}, nil
}

// GetQuiz 返回去掉答案键的测验
func (s *QuizService) GetQuiz(ctx context.Context, quizID uint) (*PublicQuiz, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return publicQuiz(quiz), nil
}

func publicQuiz(quiz *model.Quiz) *PublicQuiz {
	out := &PublicQuiz{
		ID:               quiz.ID,
		Title:            quiz.Title,
		Topic:            quiz.Topic,
		Difficulty:       quiz.Difficulty,
		TimeLimitSeconds: quiz.TimeLimitSeconds,
		CourseID:         quiz.CourseID,
		Source:           quiz.Source,
		Questions:        make([]PublicQuestion, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		out.Questions = append(out.Questions, PublicQuestion{
			ID:      q.ID,
			Type:    q.Type,
			Prompt:  q.Prompt,
			Options: q.Options,
			Marks:   q.Marks,
			Topic:   q.TopicOr(quiz.Topic),
			Order:   q.Order,
		})
	}
	return out
}

// CreateQuiz 保存教师手工编写的测验
func (s *QuizService) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*model.Quiz, error) {
	if err := util.Validate(req); err != nil {
		return nil, err
	}
	quiz := &model.Quiz{
		Title:            strings.TrimSpace(req.Title),
		Topic:            strings.TrimSpace(req.Topic),
		Difficulty:       req.Difficulty,
		TimeLimitSeconds: req.TimeLimitSeconds,
		CourseID:         req.CourseID,
		Source:           model.QuizSourceManual,
	}
	for i, in := range req.Questions {
		q := model.QuizQuestion{
			Type:          in.Type,
			Prompt:        strings.TrimSpace(in.Prompt),
			Options:       in.Options,
			CorrectAnswer: model.ResolveVariant(in.Type, in.CorrectAnswer),
			Marks:         in.Marks,
			Topic:         strings.TrimSpace(in.Topic),
			Explanation:   in.Explanation,
			Order:         i + 1,
		}
		if q.Marks == 0 {
			q.Marks = 1
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := ValidateQuiz(quiz); err != nil {
		return nil, err
	}
	if err := s.QuizRepo.Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// ValidateQuiz 检查测验定义的结构：自动评分题型必须带可用的答案键
func ValidateQuiz(quiz *model.Quiz) error {
	if strings.TrimSpace(quiz.Title) == "" {
		return util.NewValidationError("title", "is required")
	}
	if strings.TrimSpace(quiz.Topic) == "" {
		return util.NewValidationError("topic", "is required")
	}
	if len(quiz.Questions) == 0 {
		return util.NewValidationError("questions", "at least one question is required")
	}
	for i, q := range quiz.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if !q.Type.Valid() {
			return util.NewValidationError(field+".type", "unknown question type %q", q.Type)
		}
		if strings.TrimSpace(q.Prompt) == "" {
			return util.NewValidationError(field+".prompt", "is required")
		}
		if q.Marks < 0 {
			return util.NewValidationError(field+".marks", "must not be negative")
		}
		switch q.Type {
		case model.SingleChoice, model.MultiSelect:
			if len(q.Options) < 2 {
				return util.NewValidationError(field+".options", "needs at least two options")
			}
			if q.CorrectAnswer.IsZero() {
				return util.NewValidationError(field+".correctAnswer", "is required")
			}
		case model.Boolean:
			if q.CorrectAnswer.IsZero() {
				return util.NewValidationError(field+".correctAnswer", "is required")
			}
		}
	}
	return nil
}

// GenerateQuiz 通过生成服务出题并保存；解析失败时使用固定题目
func (s *QuizService) GenerateQuiz(ctx context.Context, userID uint, req GenerateQuizRequest) (*model.Quiz, textparse.Tier, error) {
	if err := util.Validate(req); err != nil {
		return nil, "", err
	}
	if req.Count == 0 {
		req.Count = 5
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	in := textparse.QuestionsInput{Topic: strings.TrimSpace(req.Topic), Difficulty: req.Difficulty, Count: req.Count}

	res := generate(ctx, s.AI, "quiz", userID, quizPrompt(in), textparse.QuestionsShape(in))

	source := model.QuizSourceAI
	if res.Tier == textparse.TierFallback {
		source = model.QuizSourceFallback
	}
	quiz := &model.Quiz{
		Title:      fmt.Sprintf("%s practice quiz", in.Topic),
		Topic:      in.Topic,
		Difficulty: in.Difficulty,
		CourseID:   req.CourseID,
		Source:     source,
		Questions:  res.Value,
	}
	if err := ValidateQuiz(quiz); err != nil {
		logger.Log.Warn("生成的题目不合法，使用固定题目", zap.String("topic", in.Topic), zap.Error(err))
		quiz.Questions = textparse.FallbackQuestions(in)
		quiz.Source = model.QuizSourceFallback
		res.Tier = textparse.TierFallback
	}
	if err := s.QuizRepo.Create(ctx, quiz); err != nil {
		return nil, "", fmt.Errorf("create quiz: %w", err)
	}
	return quiz, res.Tier, nil
}

func quizPrompt(in textparse.QuestionsInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d %s-difficulty quiz questions about %q.\n", in.Count, in.Difficulty, in.Topic)
	b.WriteString("Return a JSON array. Each item has: type (single_choice, multi_select, boolean or free_form_code), ")
	b.WriteString("prompt, options (array of strings, for choice types), correctAnswer (a string, an array of strings for multi_select, ")
	b.WriteString("or true/false), marks (number), topic and explanation.")
	return b.String()
}

// ListAttempts 分页返回用户的答题记录，按提交时间倒序
func (s *QuizService) ListAttempts(ctx context.Context, userID uint, page, limit int) (*util.PageResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	list, total, err := s.AttemptRepo.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	return &util.PageResponse{List: list, Total: total, Page: page, Limit: limit}, nil
}

func (s *QuizService) GetAttempt(ctx context.Context, userID uint, attemptID string) (*model.Attempt, error) {
	return s.AttemptRepo.FindByID(ctx, userID, attemptID)
}
