package utility

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Translator resolves a localized string; see internal/i18n.
type Translator interface {
	T(lang, key string, placeholders map[string]string) string
}

// LanguageResolver picks the response language for a request. A non-empty
// override from the request body wins over the stored settings.
type LanguageResolver interface {
	Language(c echo.Context, override string) string
}

// GetRealIP is a helper function to get the user's real IP address
// It checks proxy headers first.
func GetRealIP(c echo.Context) string {
	// This header can be a list: "client, proxy1, proxy2"
	xForwardedFor := c.Request().Header.Get("X-Forwarded-For")
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	xRealIP := c.Request().Header.Get("X-Real-IP")
	if xRealIP != "" {
		return xRealIP
	}

	return c.RealIP()
}

// GetLogger returns the request-scoped logger set by the logger middleware,
// or the global logger outside a request.
func GetLogger(c echo.Context) *zerolog.Logger {
	if logger, ok := c.Get("logger").(*zerolog.Logger); ok && logger != nil {
		return logger
	}
	return &log.Logger
}

// ErrorJSON writes the {"error": msg} body every handler uses.
func ErrorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// BindAndValidate binds the request body and runs the echo validator on it.
func BindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// RequestValidator adapts go-playground/validator to echo.Validator.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

/* ====================================================================
                   		Per-client rate limiting
==================================================================== */

// IPRateLimiter hands out one token bucket per client IP. Buckets idle for
// longer than ttl are dropped by Cleanup.
type IPRateLimiter struct {
	limiters sync.Map // ip -> *ipLimiter
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type ipLimiter struct {
	limiter *rate.Limiter
	mu      sync.Mutex
	seen    time.Time
}

// NewIPRateLimiter allows perMinute requests per IP with the given burst.
func NewIPRateLimiter(perMinute float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limit: rate.Limit(perMinute / 60),
		burst: burst,
		ttl:   15 * time.Minute,
	}
}

// Allow reports whether ip may make another request now.
func (l *IPRateLimiter) Allow(ip string) bool {
	val, _ := l.limiters.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)})
	entry := val.(*ipLimiter)

	entry.mu.Lock()
	entry.seen = time.Now()
	entry.mu.Unlock()

	return entry.limiter.Allow()
}

// Cleanup forgets IPs that have not been seen within the ttl.
func (l *IPRateLimiter) Cleanup() {
	cutoff := time.Now().Add(-l.ttl)
	l.limiters.Range(func(key, val interface{}) bool {
		entry := val.(*ipLimiter)
		entry.mu.Lock()
		stale := entry.seen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			l.limiters.Delete(key)
		}
		return true
	})
}

// Middleware rejects clients over their budget with 429.
func (l *IPRateLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ip := GetRealIP(c)
		if !l.Allow(ip) {
			GetLogger(c).Warn().Str("ip", ip).Msg("Rate limit exceeded")
			return ErrorJSON(c, http.StatusTooManyRequests, "too many requests, please try again later")
		}
		return next(c)
	}
}
