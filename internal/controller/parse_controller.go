package controller

import (
	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ParseController struct{}

func NewParseController() *ParseController {
	return &ParseController{}
}

// @Summary 结构化文本解析
// @Description 按 roadmap / plan / questions 结构解析任意文本，返回结果与命中的解析层级
// @Tags 工具
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param shape path string true "结构" Enums(roadmap, plan, questions)
// @Param request body service.ParseRequest true "待解析文本"
// @Success 200 {object} util.Response{data=service.ParseResult}
// @Failure 400 {object} util.Response
// @Router /api/parse/{shape} [post]
func (c *ParseController) Parse(ctx *gin.Context) {
	var req service.ParseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := service.ParseText(ctx.Param("shape"), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
