package app

import (
	"context"
	"errors"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/controller"
	"exam_proctor_backend/internal/repository"
	"exam_proctor_backend/internal/service"
	"exam_proctor_backend/internal/util"
	"exam_proctor_backend/pkg/database"
	"exam_proctor_backend/pkg/logger"
	"exam_proctor_backend/pkg/monitoring"
	"exam_proctor_backend/pkg/security"
	"exam_proctor_backend/pkg/tracing"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
	tracer   *sdktrace.TracerProvider
	// 后台任务（策略文件监听）
	cancel context.CancelFunc
}

type repositories struct {
	examSession *repository.ExamSessionRepository
	candidate   *repository.CandidateRepository
	incident    *repository.ProctorIncidentRepository
	genLock     *repository.GenerationLock
}

type services struct {
	storage    *service.StorageService
	generator  *service.ExamGenerator
	publisher  service.EventPublisher
	policy     *service.PolicyStore
	exam       *service.ExamService
	proctoring *service.ProctoringService
	hub        *service.ProctorHub
}

type controllers struct {
	exam       *controller.ExamController
	proctoring *controller.ProctoringController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		examSession: repository.NewExamSessionRepository(db),
		candidate:   repository.NewCandidateRepository(db),
		incident:    repository.NewProctorIncidentRepository(db),
		genLock:     repository.NewGenerationLock(rdb, cfg.Exam.GenerationLockTTL()),
	}
}

func (a *App) initPublisher(cfg *config.Config) service.EventPublisher {
	if !cfg.MQ.Enabled {
		return service.NoopPublisher{}
	}
	p, err := service.NewRabbitPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		// 事件通知不是交卷的前置条件
		logger.Log.Warn("RabbitMQ unavailable, exam events disabled", zap.Error(err))
		return service.NoopPublisher{}
	}
	return p
}

func (a *App) initPolicy(ctx context.Context, cfg *config.Config) *service.PolicyStore {
	path := cfg.Proctoring.PolicyFile
	if path == "" {
		return service.NewPolicyStore(service.DefaultFraudPolicy())
	}

	policy, err := service.LoadFraudPolicy(path)
	if err != nil {
		logger.Log.Warn("Fraud policy file not loaded, using defaults", zap.String("path", path), zap.Error(err))
		policy = service.DefaultFraudPolicy()
	}
	store := service.NewPolicyStore(policy)

	go func() {
		if err := store.Watch(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Warn("Fraud policy watcher stopped", zap.String("path", path), zap.Error(err))
		}
	}()
	return store
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config) (*services, error) {
	s := &services{}

	llm, err := service.NewLLMProvider(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	classifier, err := service.NewFrameClassifier(ctx, cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("init frame classifier: %w", err)
	}

	s.storage = service.NewStorageService(cfg)
	s.generator = service.NewExamGenerator(llm, cfg.Exam)
	s.publisher = a.initPublisher(cfg)
	s.policy = a.initPolicy(ctx, cfg)

	s.exam = service.NewExamService(
		repos.examSession,
		repos.candidate,
		s.generator,
		repos.genLock,
		s.publisher,
		cfg.Exam,
	)
	s.proctoring = service.NewProctoringService(
		classifier,
		s.policy,
		s.storage,
		repos.incident,
		cfg.Proctoring,
	)
	s.hub = service.NewProctorHub(s.exam, s.proctoring, cfg.Proctoring, security.CheckOrigin(cfg.CORS.AllowedOrigins))

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		exam:       controller.NewExamController(s.exam),
		proctoring: controller.NewProctoringController(s.proctoring, s.hub),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

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

	// release 模式下默认跳过迁移，需显式 --migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app, err := newApp(cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-proctor", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	return app
}

// newApp 组装各层，不负责连接外部基础设施
func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		cancel: cancel,
	}

	repos := app.initRepositories(db, rdb, cfg)
	svcs, err := app.initServices(ctx, repos, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	app.services = svcs
	controllers := app.initControllers(svcs, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app, nil
}

// Close 释放后台任务与外部连接
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		if a.services.hub != nil {
			a.services.hub.Stop()
		}
		if err := a.services.publisher.Close(); err != nil {
			logger.Log.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// 先断开监考连接，已开始的提交不受影响
	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Info("Server exiting")
}
