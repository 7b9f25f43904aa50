package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatkeeper/internal/requestid"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
}

// Server is the management API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a new management API server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	handlers := NewHandlers(deps, logger)

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "api_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, logger)
	s.setupRoutes(handlers)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit every non-probe request.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("role", roleOf(c).String()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Str("request_id", requestid.FromFiber(c)).
			Msg("api request")
		return err
	})
}

func (s *Server) setupRoutes(h *Handlers) {
	// Probe endpoints (no auth required, handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if h.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(h.metrics.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/health", h.HealthDetail)

	// Users
	v1.Get("/users", h.ListPresent)
	v1.Get("/users/:name", h.GetUser)
	v1.Get("/users/:name/rank", h.GetRank)
	v1.Post("/users/:name/currency", requireRole(RoleOperator), h.AdjustCurrency)
	v1.Get("/top", h.ListTop)
	v1.Get("/active", h.ListActive)

	// Commands
	v1.Get("/commands", h.ListCommands)
	v1.Post("/commands", requireRole(RoleOperator), h.CreateCommand)
	v1.Delete("/commands/:name", requireRole(RoleOperator), h.DeleteCommand)
	v1.Post("/invoke", requireRole(RoleOperator), h.Invoke)

	// Moderation
	v1.Get("/blacklist", h.GetBlacklist)
	v1.Post("/blacklist", requireRole(RoleOperator), h.AddBlacklist)
	v1.Delete("/blacklist/:word", requireRole(RoleOperator), h.DeleteBlacklist)
	v1.Post("/pardons/:name", requireRole(RoleOperator), h.Pardon)
	v1.Delete("/users/:name/strikes", requireRole(RoleOperator), h.ResetStrikes)
	v1.Get("/modlog", h.ListModLog)

	// Policy
	v1.Get("/config", h.GetConfig)
	v1.Patch("/config", requireRole(RoleAdmin), h.PatchConfig)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("management API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		title := "Internal Server Error"
		if code == fiber.StatusInternalServerError {
			// Don't leak internal details.
			detail = "An internal error occurred"
		} else {
			title = statusTitle(code)
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    title,
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}

func statusTitle(code int) string {
	if msg := utils.StatusMessage(code); msg != "" {
		return msg
	}
	return "Error"
}
