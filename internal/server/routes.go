package server

import (
	"fmt"
	"net/http"
	"time"

	"HealthAI/internal/utility"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Validator = utility.NewRequestValidator()

	e.Use(middleware.Recover())
	e.Use(LoggerMiddleware)
	e.Use(requestLogger())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Content-Type", "Accept-Language", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(s.settings.Middleware)

	e.GET("/health", s.healthHandler)
	e.GET("/i18n/:lang/:key", s.translateHandler)

	// Settings
	e.GET("/settings", s.settings.GetHandler)
	e.PUT("/settings", s.settings.PutHandler)

	// Symptom checker. Every route that can reach the model shares the
	// per-client budget.
	symptoms := e.Group("/symptoms")
	s.symptoms.Register(symptoms, s.limiter.Middleware)
	symptoms.GET("/flows/:flow_id/dictation", s.dictation.ServeWS)

	// Health log calendar
	logs := e.Group("/health/logs")
	s.logs.Register(logs, s.limiter.Middleware)

	return e
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Response().Header().Set("X-Request-ID", requestID)

		logger := log.With().Str("request_id", requestID).Logger()

		c.Set("logger", &logger)

		return next(c)
	}
}

// requestLogger writes one access line per request through the request's logger.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger := utility.GetLogger(c)
			event := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				event = logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

/* ====================================================================
                   		Health & Locale
==================================================================== */

// healthHandler reports store health, the model breaker and host stats.
// A store that is down turns the response into a 503.
func (s *Server) healthHandler(c echo.Context) error {
	stats := s.store.Health(c.Request().Context())

	if s.breaker != nil {
		stats["gemini_breaker"] = s.breaker.BreakerState()
	}
	stats["uptime"] = time.Since(s.started).Round(time.Second).String()

	if v, err := mem.VirtualMemory(); err == nil {
		stats["memory_used_percent"] = fmt.Sprintf("%.1f", v.UsedPercent)
	}
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats["cpu_percent"] = fmt.Sprintf("%.1f", cpuPercent[0])
	}
	if d, err := disk.Usage("/"); err == nil {
		stats["disk_used_percent"] = fmt.Sprintf("%.1f", d.UsedPercent)
	}
	if hInfo, err := host.Info(); err == nil {
		stats["host_uptime"] = (time.Duration(hInfo.Uptime) * time.Second).String()
		stats["os"] = hInfo.OS
	}

	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, stats)
}

// translateHandler handles GET /i18n/:lang/:key. Query parameters fill the
// {placeholders}.
func (s *Server) translateHandler(c echo.Context) error {
	lang := s.tr.Match(c.Param("lang"))
	key := c.Param("key")

	placeholders := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			placeholders[name] = values[0]
		}
	}

	_, found := s.tr.Lookup(lang, key)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"language": lang,
		"key":      key,
		"value":    s.tr.T(lang, key, placeholders),
		"found":    found,
	})
}
