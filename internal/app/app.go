package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"virtualtest_backend/internal/config"
	"virtualtest_backend/internal/controller"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/repository"
	"virtualtest_backend/internal/service"
	"virtualtest_backend/pkg/cache"
	"virtualtest_backend/pkg/database"
	"virtualtest_backend/pkg/logger"
	"virtualtest_backend/pkg/monitoring"
	"virtualtest_backend/pkg/security"
	"virtualtest_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Cache           cache.Store
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	test       *repository.TestRepository
	testConfig *repository.TestConfigRepository
}

type services struct {
	storage    *service.StorageService
	mail       *service.MailService
	otp        *service.OTPService
	auth       *service.AuthService
	user       *service.UserService
	ai         *service.AIService
	tts        *service.TTSService
	test       *service.TestService
	testConfig *service.TestConfigService
}

type controllers struct {
	auth   *controller.AuthController
	user   *controller.UserController
	test   *controller.TestController
	admin  *controller.AdminController
	health *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置文件热更新入口，通知所有注册的回调
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
	logger.Log.Info("Configuration reloaded")
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		test:       repository.NewTestRepository(db),
		testConfig: repository.NewTestConfigRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, store cache.Store) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.mail = service.NewMailService(&cfg.Mail)
	s.otp = service.NewOTPService(store, s.mail)
	s.auth = service.NewAuthService(repos.user, s.otp, cfg)
	s.user = service.NewUserService(repos.user)
	s.ai = service.NewAIService(cfg.AI)
	s.tts = service.NewTTSService(s.ai, s.storage)
	s.testConfig = service.NewTestConfigService(repos.testConfig)
	s.test = service.NewTestService(repos.test, repos.testConfig, s.ai, s.tts, store, model.DefaultModuleOrder)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:   controller.NewAuthController(s.auth),
		user:   controller.NewUserController(s.user),
		test:   controller.NewTestController(s.test, s.storage),
		admin:  controller.NewAdminController(s.testConfig),
		health: controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 600
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}

	// 验证码和内容快照的存储后端。memory 仅适合单实例部署
	if cfg.Cache.Type == "memory" {
		app.Cache = cache.NewMemoryStore()
		logger.Log.Warn("Using in-memory cache store, pending OTP codes are lost on restart")
	} else {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
			log.Fatalf("Failed to initialize redis: %v", err)
		}
		app.Redis = rdb
		app.Cache = cache.NewRedisStore(rdb)
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, app.Cache)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("virtualtest-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
