package healthlog

import (
	"errors"
	"net/http"

	"HealthAI/internal/geminiservice"
	"HealthAI/internal/utility"

	"github.com/labstack/echo/v4"
)

// Handler exposes the calendar over HTTP.
type Handler struct {
	svc  *Service
	tr   utility.Translator
	lang utility.LanguageResolver
}

func NewHandler(svc *Service, tr utility.Translator, lang utility.LanguageResolver) *Handler {
	return &Handler{svc: svc, tr: tr, lang: lang}
}

// Register mounts the routes on g (normally /health/logs). aiLimit guards
// the analysis route.
func (h *Handler) Register(g *echo.Group, aiLimit echo.MiddlewareFunc) {
	g.GET("", h.ListHandler)
	g.GET("/trend", h.TrendHandler)
	g.POST("/analyze", h.AnalyzeHandler, aiLimit)
	g.GET("/:date", h.GetHandler)
	g.PUT("/:date", h.SaveHandler)
	g.DELETE("/:date", h.DeleteHandler)
}

type SaveLogRequest struct {
	Log      string `json:"log"`
	Severity int    `json:"symptom_severity"`
	Language string `json:"language"`
}

type AnalyzeRequest struct {
	Language string `json:"language"`
}

// ListHandler handles GET /health/logs
func (h *Handler) ListHandler(c echo.Context) error {
	entries, err := h.svc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "")
	}
	return c.JSON(http.StatusOK, entries)
}

// GetHandler handles GET /health/logs/:date
func (h *Handler) GetHandler(c echo.Context) error {
	entry, err := h.svc.Get(c.Request().Context(), c.Param("date"))
	if err != nil {
		return h.fail(c, err, "")
	}
	return c.JSON(http.StatusOK, entry)
}

// SaveHandler handles PUT /health/logs/:date
func (h *Handler) SaveHandler(c echo.Context) error {
	var req SaveLogRequest
	if err := c.Bind(&req); err != nil {
		return utility.ErrorJSON(c, http.StatusBadRequest, h.tr.T(h.lang.Language(c, ""), "calendar.invalidRequest", nil))
	}
	lang := h.lang.Language(c, req.Language)

	// Field errors are reported through the domain errors below so the
	// message can be localized.
	entry, err := h.svc.Save(c.Request().Context(), SaveRequest{
		Date:     c.Param("date"),
		Log:      req.Log,
		Severity: req.Severity,
		Language: lang,
	})
	if err != nil {
		return h.fail(c, err, lang)
	}
	return c.JSON(http.StatusOK, entry)
}

// DeleteHandler handles DELETE /health/logs/:date
func (h *Handler) DeleteHandler(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("date")); err != nil {
		return h.fail(c, err, "")
	}
	return c.NoContent(http.StatusNoContent)
}

// TrendHandler handles GET /health/logs/trend
func (h *Handler) TrendHandler(c echo.Context) error {
	points, err := h.svc.Trend(c.Request().Context())
	if err != nil {
		return h.fail(c, err, "")
	}
	if len(points) == 0 {
		lang := h.lang.Language(c, "")
		return c.JSON(http.StatusOK, map[string]interface{}{
			"points":  points,
			"message": h.tr.T(lang, "healthTracker.noData", nil),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"points": points})
}

// AnalyzeHandler handles POST /health/logs/analyze
func (h *Handler) AnalyzeHandler(c echo.Context) error {
	var req AnalyzeRequest
	// An empty body is fine; the language then comes from settings.
	if err := c.Bind(&req); err != nil {
		return utility.ErrorJSON(c, http.StatusBadRequest, h.tr.T(h.lang.Language(c, ""), "calendar.invalidRequest", nil))
	}
	lang := h.lang.Language(c, req.Language)

	analysis, err := h.svc.Analyze(c.Request().Context(), lang)
	if err != nil {
		return h.fail(c, err, lang)
	}
	return c.JSON(http.StatusOK, map[string]string{"analysis": analysis})
}

func (h *Handler) fail(c echo.Context, err error, lang string) error {
	if lang == "" {
		lang = h.lang.Language(c, "")
	}
	logger := utility.GetLogger(c)

	switch {
	case errors.Is(err, ErrInvalidDate):
		return utility.ErrorJSON(c, http.StatusBadRequest, h.tr.T(lang, "calendar.invalidDate", nil))
	case errors.Is(err, ErrInvalidSeverity):
		return utility.ErrorJSON(c, http.StatusBadRequest, h.tr.T(lang, "calendar.invalidSeverity", nil))
	case errors.Is(err, ErrEmptyLog):
		return utility.ErrorJSON(c, http.StatusBadRequest, h.tr.T(lang, "calendar.emptyLog", nil))
	case errors.Is(err, ErrNotFound):
		return utility.ErrorJSON(c, http.StatusNotFound, h.tr.T(lang, "calendar.notFound", map[string]string{"date": c.Param("date")}))
	case errors.Is(err, geminiservice.ErrNoLogs):
		return utility.ErrorJSON(c, http.StatusUnprocessableEntity, h.tr.T(lang, "healthTracker.error.noLogs", nil))
	case errors.Is(err, geminiservice.ErrMalformedResponse):
		logger.Error().Err(err).Msg("Health analysis response rejected")
		return utility.ErrorJSON(c, http.StatusBadGateway, h.tr.T(lang, "healthTracker.error.fetch", nil))
	case errors.Is(err, geminiservice.ErrAnalysisUnavailable), errors.Is(err, geminiservice.ErrUnavailable):
		logger.Error().Err(err).Msg("Health analysis unavailable")
		return utility.ErrorJSON(c, http.StatusServiceUnavailable, h.tr.T(lang, "healthTracker.error.fetch", nil))
	default:
		logger.Error().Err(err).Msg("Health log request failed")
		return utility.ErrorJSON(c, http.StatusInternalServerError, h.tr.T(lang, "calendar.error", nil))
	}
}
