// Package server contains the HTTP handlers and routing for the BearcatBoard API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bearcatboard/internal/auth"
	"bearcatboard/internal/cache"
	"bearcatboard/internal/config"
	"bearcatboard/internal/database"
	"bearcatboard/internal/middleware"
	"bearcatboard/internal/models"
	"bearcatboard/internal/repository"
	"bearcatboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const serviceName = "bearcatboard-api"

// Server holds all dependencies and provides handlers
type Server struct {
	config      *config.Config
	db          *gorm.DB
	redis       *redis.Client
	app         *fiber.App
	metrics     *middleware.Metrics
	tokens      *auth.TokenManager
	authService *service.AuthService
	postService *service.PostService
}

// NewServer creates a new server instance, connecting to the database and Redis.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	metrics := middleware.InitMetrics(serviceName)
	redisClient := cache.Connect(ctx, cfg.RedisURL, metrics.RedisHook())

	return newServer(cfg, db, redisClient, metrics), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	return newServer(cfg, db, redisClient, middleware.InitMetrics(serviceName))
}

func newServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, metrics *middleware.Metrics) *Server {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	authService := service.NewAuthService(
		repository.NewUserRepository(db),
		repository.NewSessionRepository(db),
		tokens,
		cache.New(redisClient),
		service.AuthConfig{
			LoginIdentifier:    cfg.LoginIdentifier,
			AlwaysIssueRefresh: cfg.AlwaysIssueRefreshToken,
			SiteURL:            cfg.SiteURL,
			BcryptCost:         cfg.BcryptCost,
		},
	)

	return &Server{
		config:      cfg,
		db:          db,
		redis:       redisClient,
		metrics:     metrics,
		tokens:      tokens,
		authService: authService,
		postService: service.NewPostService(repository.NewPostRepository(db)),
	}
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:      "BearcatBoard API",
		BodyLimit:    1024 * 1024,
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// errorHandler answers errors no handler turned into a response.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		code := models.CodeValidation
		switch fe.Code {
		case fiber.StatusNotFound:
			code = models.CodeNotFound
		case fiber.StatusUnauthorized:
			code = models.CodeUnauthorized
		case fiber.StatusForbidden:
			code = models.CodeForbidden
		}
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message, Code: code})
	}

	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Propagates request and trace ids into the user context for logging.
	app.Use(middleware.ContextMiddleware())

	if s.metrics != nil {
		app.Use(middleware.MetricsMiddleware(s.metrics))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit so error responses keep CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || middleware.RateLimitBypassed(s.config.Env)
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.metrics != nil {
		app.Get("/metrics", s.metrics.Handler())
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", s.rateLimit(5, 10*time.Minute, "register"), s.Register)
	authGroup.Post("/login", s.rateLimit(10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/refresh-token", s.rateLimit(60, time.Minute, "refresh"), s.RefreshToken)
	authGroup.Post("/logout", s.Logout)
	authGroup.Post("/logout-all", middleware.AuthRequired(s.authService), s.LogoutAll)
	authGroup.Get("/me", middleware.AuthRequired(s.authService), s.Me)
	authGroup.Get("/profile/:username", s.Profile)

	api := app.Group("/api", middleware.AuthRequired(s.authService))
	api.Post("/post", s.rateLimit(10, time.Minute, "create_post"), s.CreatePost)
	api.Get("/posts", s.GetPosts)
	api.Get("/user/posts", s.GetUserPosts)
	api.Post("/like", s.ToggleLike)
	api.Put("/deletepost", s.DeletePost)
}

// rateLimit is the Redis limiter for one route, switched off with the global
// limiter in test and development.
func (s *Server) rateLimit(limit int, window time.Duration, name string) fiber.Handler {
	if middleware.RateLimitBypassed(s.config.Env) {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.redis, limit, window, name)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: when it
// is not configured the check reports "disabled" and does not fail.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
