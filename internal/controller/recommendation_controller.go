package controller

import (
	"strconv"

	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RecommendationController struct {
	RecommendationService *service.RecommendationService
}

func NewRecommendationController(recommendationService *service.RecommendationService) *RecommendationController {
	return &RecommendationController{RecommendationService: recommendationService}
}

// @Summary 个性化学习建议
// @Description 12 小时内返回缓存（source=cache），否则重新生成（source=ai）；生成失败时返回兜底计划
// @Tags 学习建议
// @Security BearerAuth
// @Produce json
// @Param refresh query bool false "强制刷新"
// @Success 200 {object} util.Response{data=service.RecommendationResult}
// @Failure 404 {object} util.Response
// @Router /api/recommendations [get]
func (c *RecommendationController) GetRecommendations(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(ctx.DefaultQuery("refresh", "false"))

	res, err := c.RecommendationService.GetRecommendations(ctx.Request.Context(), userID, refresh)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
