/*
Package server implements the application's network transport layer.
It initializes the HTTP server, configures timeouts, and wires the
symptom checker, health log, settings and speech handlers onto the router.
*/
package server

import (
	"fmt"
	"net/http"
	"time"

	"HealthAI/internal/config"
	"HealthAI/internal/geminiservice"
	"HealthAI/internal/healthlog"
	"HealthAI/internal/i18n"
	"HealthAI/internal/settings"
	"HealthAI/internal/speech"
	"HealthAI/internal/symptom"
	"HealthAI/internal/utility"
)

// BreakerReporter exposes the model circuit breaker to /health.
type BreakerReporter interface {
	BreakerState() string
}

// Deps are the services built in main.
type Deps struct {
	Store      healthlog.Store
	Gateway    *geminiservice.Gateway
	Breaker    BreakerReporter
	Logs       *healthlog.Service
	Flows      *symptom.Service
	Hub        *utility.Hub
	Settings   *settings.Manager
	Translator *i18n.Translator
	Limiter    *utility.IPRateLimiter
}

// Server defines the configuration and dependencies for the HTTP service.
type Server struct {
	cfg *config.Config

	store    healthlog.Store
	breaker  BreakerReporter
	tr       *i18n.Translator
	settings *settings.Manager
	limiter  *utility.IPRateLimiter

	symptoms  *symptom.Handler
	logs      *healthlog.Handler
	dictation *speech.DictationHandler

	started time.Time
}

func newServer(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		store:     deps.Store,
		breaker:   deps.Breaker,
		tr:        deps.Translator,
		settings:  deps.Settings,
		limiter:   deps.Limiter,
		symptoms:  symptom.NewHandler(deps.Flows, deps.Gateway, deps.Translator, deps.Settings),
		logs:      healthlog.NewHandler(deps.Logs, deps.Translator, deps.Settings),
		dictation: speech.NewDictationHandler(deps.Hub, deps.Flows, deps.Translator, deps.Settings),
		started:   time.Now(),
	}
}

// NewServer returns a configured *http.Server for the application.
func NewServer(cfg *config.Config, deps Deps) *http.Server {
	app := newServer(cfg, deps)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.RegisterRoutes(),
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
