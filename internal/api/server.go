// Package api serves the habit list of each user over HTTP under /api/v1.
package api

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/julianstephens/beaver/internal/auth"
	"github.com/julianstephens/beaver/internal/completion"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/storage"
)

type Config struct {
	// FirstDayOfWeek is used for weekly periods when a list has no override.
	FirstDayOfWeek time.Weekday
	// AccessLog receives one line per request; nil disables it.
	AccessLog io.Writer
}

type Server struct {
	provider storage.Provider
	engine   *completion.Engine
	issuer   *auth.Issuer
	cfg      Config
	app      *fiber.App
}

func New(provider storage.Provider, engine *completion.Engine, issuer *auth.Issuer, cfg Config) *Server {
	s := &Server{
		provider: provider,
		engine:   engine,
		issuer:   issuer,
		cfg:      cfg,
	}

	app := fiber.New(fiber.Config{
		AppName:               "beaver",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	if cfg.AccessLog != nil {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Output: cfg.AccessLog,
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	s.app = app
	s.routes()
	return s
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	logger.Info("API listening", "addr", addr, "backend", s.provider.Backend())
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "backend": s.provider.Backend()})
	})

	v1 := s.app.Group("/api/v1", s.authMiddleware())

	// /habits/meta must be registered before /habits/:id
	v1.Get("/habits/meta", s.getHabitsMeta)
	v1.Put("/habits/meta", s.putHabitsMeta)

	v1.Get("/habits", s.listHabits)
	v1.Post("/habits", s.createHabit)
	v1.Get("/habits/:id", s.getHabit)
	v1.Put("/habits/:id", s.updateHabit)
	v1.Delete("/habits/:id", s.deleteHabit)

	v1.Get("/habits/:id/completions", s.getCompletions)
	v1.Post("/habits/:id/completions", s.postCompletion)
	v1.Post("/habits/:id/batch-completions", s.postBatchCompletions)

	v1.Get("/lists", s.listLists)
	v1.Get("/export", s.export)
	v1.Post("/import", s.importList)
}

// errorHandler maps the error taxonomy to status codes. Unexpected errors
// are logged and reported without detail.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code, msg = fe.Code, fe.Message
	case errors.Is(err, beavererrors.ErrNotFound):
		code, msg = fiber.StatusNotFound, err.Error()
	case errors.Is(err, beavererrors.ErrValidation), errors.Is(err, beavererrors.ErrImportFailed):
		code, msg = fiber.StatusBadRequest, err.Error()
	default:
		logger.With("request_id", c.Locals("requestid")).
			Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
