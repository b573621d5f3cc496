package controller

import (
	"learnpulse_backend/internal/model"
	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

type RecordActivityRequest struct {
	Kind model.ActivityKind `json:"kind" binding:"required,oneof=lesson quiz"`
}

// @Summary 记录学习活动
// @Description 当天（UTC）的活动记录累加计数并刷新路线图完成度快照；失败时不影响调用方
// @Tags 学习进度
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body RecordActivityRequest true "活动类型"
// @Success 200 {object} util.Response{data=model.DailyActivity}
// @Failure 400 {object} util.Response
// @Router /api/activity [post]
func (c *ProgressController) RecordActivity(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req RecordActivityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	// 记录失败时返回空数据，不报错
	row := c.ProgressService.RecordActivity(ctx.Request.Context(), userID, req.Kind)
	util.Success(ctx, row)
}

// @Summary 学习活动列表
// @Tags 学习进度
// @Security BearerAuth
// @Produce json
// @Param from query string false "开始日期 YYYY-MM-DD"
// @Param to query string false "结束日期 YYYY-MM-DD"
// @Success 200 {object} util.Response{data=service.ActivitySummary}
// @Failure 400 {object} util.Response
// @Router /api/activity [get]
func (c *ProgressController) ListActivity(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	summary, err := c.ProgressService.ListActivity(ctx.Request.Context(), userID, ctx.Query("from"), ctx.Query("to"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// @Summary 学习画像
// @Description 尚无答题记录时返回零值画像
// @Tags 学习进度
// @Security BearerAuth
// @Produce json
// @Success 200 {object} util.Response{data=model.PerformanceProfile}
// @Router /api/performance [get]
func (c *ProgressController) GetProfile(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	profile, err := c.ProgressService.GetProfile(ctx.Request.Context(), userID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// @Summary 重算学习画像
// @Tags 学习进度
// @Security BearerAuth
// @Produce json
// @Success 200 {object} util.Response{data=model.PerformanceProfile}
// @Router /api/performance/recompute [post]
func (c *ProgressController) RecomputeProfile(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	if _, err := c.ProgressService.RecomputeProfile(ctx.Request.Context(), userID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	profile, err := c.ProgressService.GetProfile(ctx.Request.Context(), userID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}
