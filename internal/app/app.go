package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"learnpulse_backend/internal/config"
	"learnpulse_backend/internal/controller"
	"learnpulse_backend/internal/repository"
	"learnpulse_backend/internal/service"
	"learnpulse_backend/internal/worker"
	"learnpulse_backend/pkg/configwatcher"
	"learnpulse_backend/pkg/database"
	"learnpulse_backend/pkg/logger"
	"learnpulse_backend/pkg/monitoring"
	"learnpulse_backend/pkg/security"
	"learnpulse_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config     *config.Config
	ConfigFile string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client
	Runner     worker.Runner

	queue           *worker.Queue
	tracer          *sdktrace.TracerProvider
	limiter         *security.IPLimiter
	services        *services
	configCallbacks []func(*config.Config)

	mu        sync.RWMutex
	jwtSecret string
}

type repositories struct {
	user           *repository.UserRepository
	course         *repository.CourseRepository
	quiz           *repository.QuizRepository
	attempt        *repository.AttemptRepository
	activity       *repository.ActivityRepository
	profile        *repository.ProfileRepository
	recommendation *repository.RecommendationRepository
	roadmap        *repository.RoadmapRepository
}

type services struct {
	ai             *service.AIService
	generation     *service.Generation
	progress       *service.ProgressService
	quiz           *service.QuizService
	recommendation *service.RecommendationService
	roadmap        *service.RoadmapService
}

type controllers struct {
	health         *controller.HealthController
	quiz           *controller.QuizController
	progress       *controller.ProgressController
	recommendation *controller.RecommendationController
	roadmap        *controller.RoadmapController
	parse          *controller.ParseController
}

// RegisterConfigCallback 注册配置热更新回调
func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 依次执行已注册的回调
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
	a.Config = cfg
}

func (a *App) secret() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.jwtSecret
}

func (a *App) setSecret(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jwtSecret = s
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:           repository.NewUserRepository(db),
		course:         repository.NewCourseRepository(db),
		quiz:           repository.NewQuizRepository(db),
		attempt:        repository.NewAttemptRepository(db),
		activity:       repository.NewActivityRepository(db),
		profile:        repository.NewProfileRepository(db),
		recommendation: repository.NewRecommendationRepository(db, rdb),
		roadmap:        repository.NewRoadmapRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, generator service.Generator) *services {
	s := &services{}

	if generator == nil {
		s.ai = service.NewAIService(cfg.AI)
		generator = s.ai
	}
	s.generation = &service.Generation{
		Generator:   generator,
		Transcripts: service.NewTranscriptStore(&cfg.Storage),
		Runner:      a.Runner,
	}

	s.progress = service.NewProgressService(
		repos.attempt,
		repos.activity,
		repos.profile,
		repos.roadmap,
		repos.course,
		cfg.Recommendation.HistorySize,
	)
	s.quiz = service.NewQuizService(repos.quiz, repos.attempt, s.progress, a.Runner, s.generation)
	s.recommendation = service.NewRecommendationService(
		repos.user,
		repos.attempt,
		repos.roadmap,
		repos.profile,
		repos.recommendation,
		s.generation,
		cfg.Recommendation,
	)
	s.roadmap = service.NewRoadmapService(repos.roadmap, s.progress, a.Runner, s.generation)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		health:         controller.NewHealthController(a.DB, a.Redis),
		quiz:           controller.NewQuizController(s.quiz),
		progress:       controller.NewProgressController(s.progress),
		recommendation: controller.NewRecommendationController(s.recommendation),
		roadmap:        controller.NewRoadmapController(s.roadmap),
		parse:          controller.NewParseController(),
	}
}

func (a *App) registerConfigCallbacks() {
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.setSecret(cfg.JWT.Secret)
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.services.recommendation.UpdateConfig(cfg.Recommendation)
	})
	if a.services.ai != nil {
		a.RegisterConfigCallback(func(cfg *config.Config) {
			a.services.ai.UpdateConfig(cfg.AI)
		})
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	a.limiter = security.NewIPLimiter(cfg.RateLimit.MaxRequests, window)
	router.Use(security.RateLimiter(a.limiter))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// Options 允许替换生成服务与后台执行器，测试使用
type Options struct {
	Generator service.Generator
	Runner    worker.Runner
}

// New 在已建立的存储连接上装配整个应用
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, opts Options) *App {
	app := &App{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Runner:    opts.Runner,
		jwtSecret: cfg.JWT.Secret,
	}
	if app.Runner == nil {
		app.queue = worker.NewQueue(cfg.Worker.Workers, cfg.Worker.QueueSize,
			time.Duration(cfg.Worker.TimeoutSeconds)*time.Second)
		app.Runner = app.queue
	}

	repos := app.initRepositories(db, rdb)
	app.services = app.initServices(repos, cfg, opts.Generator)
	controllers := app.initControllers(app.services)
	app.registerConfigCallbacks()

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers)

	return app
}

// NewApp 按配置初始化日志、数据库、Redis 与追踪
func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, err
	}

	// release 模式默认不自动迁移
	if cfg.ForceMigrate || cfg.Server.Mode != gin.ReleaseMode {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			// Redis 只做推荐缓存，连不上时降级为仅数据库
			logger.Log.Warn("Redis unavailable, recommendation cache falls back to database", zap.Error(err))
			rdb = nil
		}
	}

	app := New(cfg, db, rdb, Options{})

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("learnpulse", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	return app, nil
}

// Run 启动 HTTP 服务与后台任务，收到退出信号后依次优雅关闭
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.queue != nil {
		a.queue.Start()
	}
	go a.limiter.Run(ctx)

	if a.ConfigFile != "" {
		if err := configwatcher.Watch(ctx, a.ConfigFile, a.ApplyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Log.Info("Shutting down server...")

	// 先停止接收请求，再排空后台队列
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	if a.queue != nil {
		if err := a.queue.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("Background queue not drained", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Log.Info("Server exiting")
	_ = logger.Log.Sync()
	return nil
}
