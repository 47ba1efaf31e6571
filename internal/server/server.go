package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studypool-backend/internal/auth"
	"studypool-backend/internal/cache"
	"studypool-backend/internal/config"
	"studypool-backend/internal/handler"
	"studypool-backend/internal/middleware"
	"studypool-backend/internal/service"
	"studypool-backend/internal/storage"
)

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	log           *zap.Logger
	redis         *cache.RedisClient
	jwtManager    *auth.JWTManager
	poolMW        *middleware.PoolMiddleware
	hub           *handler.PoolHub
	authHandler   *handler.AuthHandler
	userHandler   *handler.UserHandler
	poolHandler   *handler.PoolHandler
	canvasHandler *handler.CanvasHandler
	fileHandler   *handler.FileHandler
	healthHandler *handler.HealthHandler
}

// New 새 서버 인스턴스 생성. S3 와 Redis 는 설정되어 있을 때만 사용한다
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Study Pool API",
		ServerHeader:          "Fiber",
		StrictRouting:         false,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket 허브가 프로세스 메모리에 있음
		BodyLimit:             cfg.Server.BodyLimit,
		ErrorHandler:          handler.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	var google handler.IDTokenVerifier
	if cfg.Auth.GoogleClientID != "" {
		google = auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)
	} else {
		log.Info("google login not configured")
	}
	var github handler.CodeExchanger
	if cfg.Auth.GitHubEnabled() {
		github = auth.NewGitHubAuthenticator(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubRedirectURL)
	} else {
		log.Info("github login not configured")
	}

	// S3 서비스 초기화 (선택적)
	var store service.ObjectStore
	if cfg.S3.Enabled() {
		s3Service, err := storage.NewS3Service(ctx, cfg.S3)
		if err != nil {
			log.Warn("s3 service initialization failed, file upload disabled", zap.Error(err))
		} else {
			store = s3Service
			log.Info("s3 service initialized", zap.String("bucket", cfg.S3.BucketName))
		}
	} else {
		log.Info("s3 service not configured, file upload disabled")
	}

	// Redis 캔버스 캐시 (선택적)
	var redisClient *cache.RedisClient
	var canvasCache service.CanvasCache
	var redisHealth handler.HealthChecker
	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisClient(ctx, cfg.Redis, log.Named("redis"))
		if err != nil {
			log.Warn("redis unavailable, canvas cache disabled", zap.Error(err))
		} else {
			redisClient = rc
			canvasCache = rc
			redisHealth = rc
		}
	}

	hub := handler.NewPoolHub(cfg.WebSocket, log.Named("ws"))
	members := service.NewMemberService(db)
	users := service.NewUserService(db, log)
	pools := service.NewPoolService(db, members, store, canvasCache, hub, log)
	canvas := service.NewCanvasService(db, members, canvasCache, hub, log)
	files := service.NewFileService(db, members, store, service.UploadLimits{
		MaxBytes:     cfg.Upload.MaxBytes,
		AllowedTypes: cfg.Upload.AllowedTypes,
	}, log)

	return &Server{
		app:           app,
		cfg:           cfg,
		log:           log,
		redis:         redisClient,
		jwtManager:    jwtManager,
		poolMW:        middleware.NewPoolMiddleware(members, log),
		hub:           hub,
		authHandler:   handler.NewAuthHandler(users, jwtManager, google, github, cfg.Auth.FrontendURL, cfg.Auth.SecureCookie, log),
		userHandler:   handler.NewUserHandler(users, log),
		poolHandler:   handler.NewPoolHandler(pools, log),
		canvasHandler: handler.NewCanvasHandler(canvas, log),
		fileHandler:   handler.NewFileHandler(files, log),
		healthHandler: handler.NewHealthHandler(db, redisHealth),
	}
}

// App 내부 fiber.App (테스트용)
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 / 지표
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})
	requireAuth := auth.AuthMiddleware(s.jwtManager)

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Get("/github/login", authLimiter, s.authHandler.GitHubLogin)
	authGroup.Get("/github/callback", authLimiter, s.authHandler.GitHubCallback)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", requireAuth, s.authHandler.Logout)
	authGroup.Get("/me", requireAuth, s.authHandler.GetMe)

	api := s.app.Group("/api", requireAuth)

	// User 라우트
	api.Get("/users/search", s.userHandler.SearchUsers)

	// Pool 라우트
	pools := api.Group("/pools")
	pools.Get("/", s.poolHandler.ListPools)
	pools.Post("/", s.poolHandler.CreatePool)
	pools.Get("/:id", s.poolHandler.GetPool)
	pools.Delete("/:id", s.poolHandler.DeletePool)
	pools.Patch("/:id", s.poolHandler.UpdatePool)
	pools.Get("/:id/access", s.poolHandler.CheckAccess)
	pools.Get("/:id/members", s.poolHandler.ListMembers)
	pools.Post("/:id/members", s.poolHandler.AddMember)

	// Canvas 라우트
	pools.Get("/:id/canvas", s.canvasHandler.GetCanvas)
	pools.Put("/:id/canvas", s.canvasHandler.SaveCanvas)

	// File 라우트
	pools.Post("/:id/files/presign", s.fileHandler.PresignUpload)
	pools.Post("/:id/files", s.fileHandler.ConfirmUpload)
	pools.Get("/:id/files", s.fileHandler.ListFiles)
	api.Post("/uploads/delete", s.fileHandler.DeleteUpload)

	// WebSocket 풀 이벤트 (쿠키 또는 헤더 토큰, 멤버만)
	s.app.Get("/ws/pools/:id", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, requireAuth, s.poolMW.RequireMembership(), websocket.New(s.hub.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.log.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.log.Info("study pool api starting", zap.String("addr", s.cfg.Server.Port))
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil {
			s.log.Warn("redis close failed", zap.Error(cerr))
		}
	}
	return err
}
