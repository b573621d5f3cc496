package app

import (
	"learnpulse_backend/docs"
	"learnpulse_backend/internal/middleware"
	"learnpulse_backend/internal/model"
	"learnpulse_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(a.secret))
	{
		a.registerQuizRoutes(authGroup, c)
		a.registerProgressRoutes(authGroup, c)
		a.registerRoadmapRoutes(authGroup, c)

		authGroup.GET("/recommendations", c.recommendation.GetRecommendations)
		authGroup.POST("/parse/:shape", c.parse.Parse)
	}
}

func (a *App) registerQuizRoutes(group *gin.RouterGroup, c *controllers) {
	quizzes := group.Group("/quizzes")
	{
		quizzes.POST("", middleware.RoleMiddleware(model.Teacher), c.quiz.CreateQuiz)
		quizzes.POST("/generate", c.quiz.GenerateQuiz)
		quizzes.GET("/:id", c.quiz.GetQuiz)
		quizzes.POST("/:id/submit", c.quiz.SubmitQuiz)
	}

	attempts := group.Group("/attempts")
	{
		attempts.GET("", c.quiz.ListAttempts)
		attempts.GET("/:id", c.quiz.GetAttempt)
	}
}

func (a *App) registerProgressRoutes(group *gin.RouterGroup, c *controllers) {
	group.POST("/activity", c.progress.RecordActivity)
	group.GET("/activity", c.progress.ListActivity)

	performance := group.Group("/performance")
	{
		performance.GET("", c.progress.GetProfile)
		performance.POST("/recompute", c.progress.RecomputeProfile)
	}
}

func (a *App) registerRoadmapRoutes(group *gin.RouterGroup, c *controllers) {
	roadmaps := group.Group("/roadmaps")
	{
		roadmaps.GET("", c.roadmap.ListRoadmaps)
		roadmaps.POST("/generate", c.roadmap.GenerateRoadmap)
		roadmaps.PATCH("/:id/steps/:index", c.roadmap.SetStepCompleted)
	}
}
