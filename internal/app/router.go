package app

import (
	"exam_proctor_backend/docs"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/middleware"
	"exam_proctor_backend/pkg/monitoring"
	"exam_proctor_backend/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 候选人接口（启用 JWT 时校验令牌）
	api := router.Group("/api")
	api.Use(middleware.CandidateAuthMiddleware(cfg.JWT))
	{
		a.registerExamRoutes(api, c)
		a.registerProctoringRoutes(api, c, cfg)
	}
}

func (a *App) registerExamRoutes(api *gin.RouterGroup, c *controllers) {
	exam := api.Group("/exam")
	{
		exam.GET("/generate", c.exam.Generate)
		exam.POST("/submit", c.exam.Submit)
		exam.GET("/result", c.exam.Result)
	}
}

func (a *App) registerProctoringRoutes(api *gin.RouterGroup, c *controllers, cfg *config.Config) {
	proctoring := api.Group("/proctoring")
	{
		// 帧分析调用外部识别服务，单独限流
		proctoring.POST("/analyze",
			security.RateLimiterBy(cfg.RateLimit.AnalyzePerMinute, time.Minute, security.ByClientIP),
			c.proctoring.Analyze,
		)
		proctoring.GET("/session", c.proctoring.Session)
	}
}
