// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "giftpool/docs" // swagger docs
	"giftpool/internal/bootstrap"
	"giftpool/internal/cache"
	"giftpool/internal/config"
	"giftpool/internal/featureflags"
	"giftpool/internal/ledger"
	"giftpool/internal/middleware"
	"giftpool/internal/models"
	"giftpool/internal/notifications"
	"giftpool/internal/repository"
	"giftpool/internal/service"
	"giftpool/internal/storage"
	"giftpool/internal/tasks"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	store        repository.Store
	objects      storage.ObjectStore
	taskClient   *asynq.Client
	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager
	limiter      *middleware.Limiter

	authService         *service.AuthService
	giftService         *service.GiftService
	contributionService *service.ContributionService
	statementService    *service.StatementService
	imageService        *service.GiftImageService
}

var (
	registerRule     = middleware.Rule{Name: "register", Limit: 3, Window: 10 * time.Minute}
	loginRule        = middleware.Rule{Name: "login", Limit: 10, Window: 5 * time.Minute}
	contributionRule = middleware.Rule{Name: "add_contribution", Limit: 20, Window: time.Minute}
)

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{SeedPreset: cfg.SeedPreset})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil: locks, notifications and tickets then stay in-process.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	objects, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	store := repository.NewStore(db)

	var locker ledger.Locker = ledger.NewLocalLocker()
	if redisClient != nil {
		locker = ledger.NewRedisLocker(redisClient, 2*cfg.LedgerLockTimeout())
	}

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("giftpool-api"),
		store:          store,
		objects:        objects,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		limiter:        middleware.NewLimiter(redisClient, cfg.Env),
	}

	s.hub = notifications.NewHub(redisClient)
	s.notifier = notifications.NewNotifier(redisClient, s.hub)

	s.authService = service.NewAuthService(store.Users())
	s.giftService = service.NewGiftService(store, locker, cfg.LedgerLockTimeout())
	s.contributionService = service.NewContributionService(store, locker, cfg.LedgerLockTimeout(),
		notifications.NewRealtimeObserver(s.notifier))
	s.statementService = service.NewStatementService(s.contributionService)
	s.imageService = service.NewGiftImageService(store, locker, objects, cfg)

	if redisClient != nil {
		opt, err := tasks.RedisConnOpt(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.taskClient = asynq.NewClient(opt)
		s.contributionService.AddObserver(tasks.NewEmailEnqueuer(s.taskClient, s.featureFlags, s.hub))
	}

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:          globalRequestsPerMinute,
		Expiration:   time.Minute,
		Next:         s.skipGlobalLimit,
		KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		},
	}))
}

// globalRequestsPerMinute is the per-instance ceiling for one client IP. The named
// Redis rules on register, login and contributions are stricter.
const globalRequestsPerMinute = 300

// skipGlobalLimit exempts CORS preflights, probes and the metrics scrape.
func (s *Server) skipGlobalLimit(c *fiber.Ctx) bool {
	if c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), "/health/") || c.Path() == "/metrics" {
		return true
	}
	return s.config.Env == "test"
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Giftpool Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	if local, ok := s.objects.(*storage.LocalStore); ok {
		app.Static(storage.LocalURLPrefix, local.Dir(), fiber.Static{
			MaxAge: 86400,
		})
	}

	auth := api.Group("/auth")
	auth.Post("/register", s.limiter.Handler(registerRule), s.Register)
	auth.Post("/login", s.limiter.Handler(loginRule), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	api.Get("/categories", s.GetCategories)

	// Registered ahead of the protected group so the ticket is consumed only once.
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws", s.AuthRequired(), s.WebsocketHandler())

	protected := api.Group("", s.AuthRequired())

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)

	gifts := protected.Group("/gifts")
	gifts.Get("/", s.BrowseGifts)
	// Specific routes before generic /:id
	gifts.Get("/mine", s.GetMyGifts)
	gifts.Post("/", s.CreateGift)
	gifts.Get("/:id/progress", s.GetGiftProgress)
	gifts.Get("/:id/contributions", s.GetGiftContributions)
	gifts.Post("/:id/contributions", s.limiter.Handler(contributionRule), s.AddContribution)
	gifts.Post("/:id/images", s.UploadGiftImage)
	gifts.Get("/:id", s.GetGift)
	gifts.Put("/:id", s.UpdateGift)
	gifts.Delete("/:id", s.DeleteGift)

	contributions := protected.Group("/contributions")
	contributions.Get("/me", s.GetMyContributions)
	contributions.Get("/me/statement.xlsx", s.ExportStatement)
	contributions.Get("/:id/certificate", s.GetCertificate)
	contributions.Put("/:id", s.UpdateContribution)
	contributions.Delete("/:id", s.DeleteContribution)

	protected.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck pings the database and Redis in parallel.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	redisStatus := "unavailable"

	// Probe failures are reported as statuses, never returned, so Wait cannot fail.
	var g errgroup.Group
	g.Go(func() error {
		sqlDB, err := s.db.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "unhealthy"
		}
		return nil
	})
	if s.redis != nil {
		g.Go(func() error {
			redisStatus = "healthy"
			if err := s.redis.Ping(ctx).Err(); err != nil {
				redisStatus = "unhealthy"
			}
			return nil
		})
	}
	_ = g.Wait()

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus != "healthy" || redisStatus == "unhealthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus == "unavailable":
		overallStatus = "degraded"
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

// AuthRequired returns the authentication middleware. Websocket paths take a
// single-use ticket; everything else takes a Bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws") && c.Path() != "/api/ws/ticket"

		if ticket := c.Query("ticket"); ticket != "" && isWSPath {
			userID, ok := s.consumeWSTicket(c.UserContext(), ticket)
			if !ok {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
			s.setUser(c, userID)
			return c.Next()
		}

		tokenString, err := middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		claims, err := middleware.ParseUserToken(s.config.JWTSecret, tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		if claims.JTI != "" && s.redis != nil {
			revoked, err := s.redis.Exists(c.UserContext(), cache.RevokedTokenKey(claims.JTI)).Result()
			if err == nil && revoked > 0 {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals("claims", claims)
		s.setUser(c, claims.UserID)
		return c.Next()
	}
}

func (s *Server) setUser(c *fiber.Ctx, userID string) {
	c.Locals("userID", userID)
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}

// newApp builds the Fiber app with middleware and routes.
func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Giftpool API",
		BodyLimit: int(s.config.ImageMaxUploadBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			slog.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// startRealtime wires the notification hub to Redis pub/sub.
func (s *Server) startRealtime(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.hub.StartWiring(ctx, s.notifier)
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.newApp()

	if err := s.startRealtime(s.shutdownCtx); err != nil {
		slog.Error("failed to start notification wiring", "error", err)
	}

	slog.Info("Server starting", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			slog.Error("error shutting down HTTP server", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		slog.Error("error shutting down notification hub", "error", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			slog.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.taskClient != nil {
		if err := s.taskClient.Close(); err != nil {
			slog.Error("error closing task client", "error", err)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			slog.Error("error closing redis", "error", rerr)
		}
	}

	slog.Info("Server shutdown complete")
	return nil
}
