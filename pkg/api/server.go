package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ServerConfig carries the HTTP surface settings.
type ServerConfig struct {
	Addr          string
	PublicBaseURL string
	JWTSecret     []byte
	RateLimit     RateLimitConfig
}

// Deps are the collaborators the HTTP surface is wired to.
type Deps struct {
	Commands  CommandOperations
	Vehicles  VehicleOperations
	Responses ResponseOperations
	Waker     Waker
	Verifier  TokenVerifier
	Streamer  Streamer
	DB        DBPinger
	Pool      PoolStats
}

// Server is the assembled echo application.
type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(cfg ServerConfig, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(securityHeaders())
	e.Use(requestLogger())

	NewHealthHandler(deps.DB, deps.Pool).Register(e)
	NewStreamHandler(deps.Verifier, deps.Commands, deps.Streamer).Register(e)

	v1 := e.Group("/api/v1")
	v1.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  cfg.JWTSecret,
		TokenLookup: "header:Authorization:Bearer ",
	}))
	v1.Use(rateLimiter(cfg.RateLimit))

	NewCommandHandler(deps.Commands, deps.Responses, deps.Waker, cfg.PublicBaseURL).Register(v1)
	NewVehicleHandler(deps.Vehicles).Register(v1)

	return &Server{echo: e, addr: cfg.Addr}
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger emits one structured line per request.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency.Round(time.Millisecond)),
				slog.String("correlation_id", correlationID(c)),
			)
			return nil
		},
	})
}
