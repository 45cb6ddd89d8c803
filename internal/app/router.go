package app

import (
	"virtualtest_backend/docs"
	"virtualtest_backend/internal/config"
	"virtualtest_backend/internal/middleware"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)

		auth := public.Group("/auth")
		{
			auth.POST("/register", c.auth.Register)
			auth.POST("/verify-email", c.auth.VerifyEmail)
			auth.POST("/resend-code", c.auth.ResendCode)
			auth.POST("/login", c.auth.Login)
			auth.POST("/forgot-password", c.auth.ForgotPassword)
			auth.POST("/reset-password", c.auth.ResetPassword)
		}
	}

	// 2. 需要登录且账号处于 active 状态的路由
	authGroup := router.Group("/api")
	authGroup.Use(
		middleware.AuthMiddleware(cfg),
		middleware.AccountStatusMiddleware(repos.user),
		middleware.ActivityMiddleware(repos.user),
	)
	{
		authGroup.POST("/auth/logout", c.auth.Logout)

		authGroup.GET("/profile", c.auth.GetProfile)
		authGroup.PUT("/profile", c.user.UpdateProfile)
		authGroup.PUT("/profile/password", c.user.ChangePassword)

		test := authGroup.Group("/test")
		{
			test.POST("/sessions", c.test.StartSession)
			test.GET("/sessions", c.test.ListSessions)
			test.GET("/sessions/:id", c.test.GetProgress)
			test.GET("/sessions/:id/results", c.test.GetResults)
			test.GET("/sessions/:id/modules/:module", c.test.GetModuleContent)
			test.POST("/sessions/:id/modules/:module/submit", c.test.SubmitModule)
			test.POST("/sessions/:id/modules/:module/upload", c.test.SubmitSpeaking)
		}
	}

	// 3. 管理员接口
	admin := router.Group("/api/admin")
	admin.Use(
		middleware.AuthMiddleware(cfg),
		middleware.AccountStatusMiddleware(repos.user),
		middleware.RoleMiddleware(model.Admin),
	)
	{
		admin.GET("/stats", c.user.Stats)
		admin.GET("/users", c.user.ListUsers)
		admin.POST("/users", c.user.CreateUser)
		admin.PUT("/users/:id", c.user.UpdateUser)
		admin.PUT("/users/:id/status", c.user.SetUserStatus)

		admin.GET("/configs", c.admin.ListConfigs)
		admin.GET("/configs/active", c.admin.GetActiveConfig)
		admin.POST("/configs", c.admin.CreateConfig)
		admin.PUT("/configs/:id", c.admin.UpdateConfig)
		admin.DELETE("/configs/:id", c.admin.DeleteConfig)
		admin.POST("/configs/:id/activate", c.admin.ActivateConfig)
	}
}
