package controller

import (
	"strconv"

	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RoadmapController struct {
	RoadmapService *service.RoadmapService
}

func NewRoadmapController(roadmapService *service.RoadmapService) *RoadmapController {
	return &RoadmapController{RoadmapService: roadmapService}
}

type SetStepRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

// @Summary 生成学习路线
// @Tags 学习路线
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body service.GenerateRoadmapRequest true "主题与水平"
// @Success 201 {object} util.Response{data=model.Roadmap}
// @Failure 400 {object} util.Response
// @Router /api/roadmaps/generate [post]
func (c *RoadmapController) GenerateRoadmap(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var req service.GenerateRoadmapRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	roadmap, err := c.RoadmapService.GenerateRoadmap(ctx.Request.Context(), userID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, roadmap)
}

// @Summary 学习路线列表
// @Tags 学习路线
// @Security BearerAuth
// @Produce json
// @Success 200 {object} util.Response{data=[]model.Roadmap}
// @Router /api/roadmaps [get]
func (c *RoadmapController) ListRoadmaps(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	list, err := c.RoadmapService.List(ctx.Request.Context(), userID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 更新路线步骤状态
// @Description 新完成的步骤会记一次 lesson 活动
// @Tags 学习路线
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "路线ID"
// @Param index path int true "步骤下标（从 0 开始）"
// @Param request body SetStepRequest true "是否完成"
// @Success 200 {object} util.Response{data=model.Roadmap}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/roadmaps/{id}/steps/{index} [patch]
func (c *RoadmapController) SetStepCompleted(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	roadmapID, ok := uintParam(ctx, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		util.BadRequest(ctx, "invalid index")
		return
	}
	var req SetStepRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	roadmap, err := c.RoadmapService.SetStepCompleted(ctx.Request.Context(), userID, roadmapID, index, *req.Completed)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, roadmap)
}
