package controller

import (
	"net/http"
	"strconv"

	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// @Summary 获取测验
// @Description 返回测验题目，不包含答案与解析
// @Tags 测验
// @Security BearerAuth
// @Produce json
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.PublicQuiz}
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	id, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	quiz, err := c.QuizService.GetQuiz(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// @Summary 教师创建测验
// @Tags 测验
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param quiz body service.CreateQuizRequest true "测验定义"
// @Success 201 {object} util.Response{data=model.Quiz}
// @Failure 400 {object} util.Response
// @Router /api/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	var req service.CreateQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, err := c.QuizService.CreateQuiz(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// @Summary 生成测验
// @Description 由生成服务出题；生成失败时返回固定的开放题
// @Tags 测验
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body service.GenerateQuizRequest true "出题参数"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/quizzes/generate [post]
func (c *QuizController) GenerateQuiz(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req service.GenerateQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, tier, err := c.QuizService.GenerateQuiz(ctx.Request.Context(), userID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"quiz": quiz, "tier": tier})
}

// @Summary 提交测验
// @Description 同步评分；Idempotency-Key 请求头或 submissionKey 字段可避免重复提交
// @Tags 测验
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "测验ID"
// @Param Idempotency-Key header string false "幂等键"
// @Param request body service.SubmitQuizRequest true "答案"
// @Success 201 {object} util.Response{data=service.SubmitResult}
// @Success 200 {object} util.Response{data=service.SubmitResult} "重复提交，返回已有记录"
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/submit [post]
func (c *QuizController) SubmitQuiz(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	quizID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}

	var req service.SubmitQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if key := ctx.GetHeader("Idempotency-Key"); key != "" && req.SubmissionKey == "" {
		req.SubmissionKey = key
	}

	res, err := c.QuizService.SubmitQuiz(ctx.Request.Context(), userID, quizID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if res.Replayed {
		util.Success(ctx, res)
		return
	}
	util.Created(ctx, res)
}

// @Summary 答题记录列表
// @Tags 测验
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/attempts [get]
func (c *QuizController) ListAttempts(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	res, err := c.QuizService.ListAttempts(ctx.Request.Context(), userID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 答题记录详情
// @Tags 测验
// @Security BearerAuth
// @Produce json
// @Param id path string true "答题记录ID"
// @Success 200 {object} util.Response{data=model.Attempt}
// @Failure 404 {object} util.Response
// @Router /api/attempts/{id} [get]
func (c *QuizController) GetAttempt(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	id := ctx.Param("id")
	if len(id) == 0 || len(id) > 36 {
		util.Error(ctx, http.StatusBadRequest, "invalid id")
		return
	}
	attempt, err := c.QuizService.GetAttempt(ctx.Request.Context(), userID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
