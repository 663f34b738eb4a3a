package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const correlationHeader = "X-Correlation-ID"

// contextKeyCorrelation is the echo context key for the request correlation
// id.
const contextKeyCorrelation = "correlation_id"

// correlationMiddleware accepts a caller-supplied X-Correlation-ID or mints
// one, stores it on the context, and echoes it on the response.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(correlationHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(contextKeyCorrelation, id)
			c.Response().Header().Set(correlationHeader, id)
			return next(c)
		}
	}
}

func correlationID(c echo.Context) string {
	if id, ok := c.Get(contextKeyCorrelation).(string); ok {
		return id
	}
	return ""
}

// securityHeaders sets the response hardening headers on every route.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			return next(c)
		}
	}
}

// RateLimitConfig tunes the per-user request limiter.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// rateLimiter builds the echo rate limiter keyed by authenticated user id,
// falling back to the client IP before authentication. Admin callers are
// exempt.
func rateLimiter(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		Burst:     cfg.Burst,
		ExpiresIn: 3 * time.Minute,
	})

	retryAfter := strconv.Itoa(int(time.Minute.Seconds()))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		Skipper: func(c echo.Context) bool {
			id, err := callerIdentity(c)
			return err == nil && id.IsAdmin()
		},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if id, err := callerIdentity(c); err == nil {
				return id.UserID, nil
			}
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
			c.Response().Header().Set("X-RateLimit-Remaining", "0")
			return apiError(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded")
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return apiError(http.StatusInternalServerError, CodeInternal, "Internal server error")
		},
	})
}
