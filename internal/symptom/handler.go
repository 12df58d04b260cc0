package symptom

import (
	"errors"
	"net/http"
	"strings"

	"HealthAI/internal/geminiservice"
	"HealthAI/internal/healthlog"
	"HealthAI/internal/speech"
	"HealthAI/internal/utility"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc  *Service
	ai   AI
	tr   utility.Translator
	lang utility.LanguageResolver
}

func NewHandler(svc *Service, ai AI, tr utility.Translator, lang utility.LanguageResolver) *Handler {
	return &Handler{svc: svc, ai: ai, tr: tr, lang: lang}
}

// Register mounts the routes on g (normally /symptoms). aiLimit guards every
// route that can reach the model.
func (h *Handler) Register(g *echo.Group, aiLimit echo.MiddlewareFunc) {
	g.GET("/tags", h.TagsHandler)
	g.POST("/questions", h.QuestionsHandler, aiLimit)
	g.POST("/diagnosis", h.DiagnosisHandler, aiLimit)

	g.POST("/flows", h.CreateFlowHandler)
	g.GET("/flows/:flow_id", h.GetFlowHandler)
	g.POST("/flows/:flow_id/submit", h.SubmitHandler, aiLimit)
	g.POST("/flows/:flow_id/answers", h.AnswerHandler, aiLimit)
	g.POST("/flows/:flow_id/skip", h.SkipHandler, aiLimit)
	g.POST("/flows/:flow_id/reset", h.ResetHandler)
	g.POST("/flows/:flow_id/tags", h.AddTagHandler)
	g.GET("/flows/:flow_id/narration", h.NarrationHandler)
	g.POST("/flows/:flow_id/tracker", h.TrackerHandler)
}

/* ====================================================================
                        Stateless model calls
==================================================================== */

type QuestionsRequest struct {
	Symptoms string `json:"symptoms" validate:"required,max=4000"`
	Language string `json:"language"`
}

type DiagnosisRequest struct {
	Symptoms     string                     `json:"symptoms" validate:"required,max=4000"`
	Answers      map[string]string          `json:"answers"`
	Location     *geminiservice.Coordinate  `json:"location"`
	Demographics geminiservice.Demographics `json:"demographics"`
	Language     string                     `json:"language"`
}

type DiagnosisResponse struct {
	*geminiservice.DiagnosisResult
	HighConfidenceCauses []geminiservice.PossibleCause `json:"high_confidence_causes"`
}

// QuestionsHandler handles POST /symptoms/questions
func (h *Handler) QuestionsHandler(c echo.Context) error {
	var req QuestionsRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, req.Language)
	}
	lang := h.lang.Language(c, req.Language)
	if strings.TrimSpace(req.Symptoms) == "" {
		return h.fail(c, geminiservice.ErrEmptySymptoms, lang, nil)
	}
	if err := c.Validate(&req); err != nil {
		return h.invalid(c, lang)
	}

	questions := h.ai.FollowUpQuestions(c.Request().Context(), req.Symptoms, lang)
	return c.JSON(http.StatusOK, map[string]interface{}{"questions": questions})
}

// DiagnosisHandler handles POST /symptoms/diagnosis
func (h *Handler) DiagnosisHandler(c echo.Context) error {
	var req DiagnosisRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, req.Language)
	}
	lang := h.lang.Language(c, req.Language)
	if strings.TrimSpace(req.Symptoms) == "" {
		return h.fail(c, geminiservice.ErrEmptySymptoms, lang, nil)
	}
	if err := c.Validate(&req); err != nil {
		return h.invalid(c, lang)
	}

	result, err := h.ai.Diagnose(c.Request().Context(), geminiservice.DiagnosisRequest{
		Symptoms:     req.Symptoms,
		Answers:      req.Answers,
		Location:     req.Location,
		Demographics: req.Demographics,
		Language:     lang,
	})
	if err != nil {
		return h.fail(c, err, lang, nil)
	}
	return c.JSON(http.StatusOK, DiagnosisResponse{
		DiagnosisResult:      result,
		HighConfidenceCauses: result.HighConfidenceCauses(),
	})
}

/* ====================================================================
                        Flow routes
==================================================================== */

type AnswerRequest struct {
	Answers map[string]string `json:"answers"`
}

type TagRequest struct {
	Tag string `json:"tag" validate:"required"`
}

type TrackerRequest struct {
	Date string `json:"date"`
}

type TagOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// TagsHandler handles GET /symptoms/tags
func (h *Handler) TagsHandler(c echo.Context) error {
	lang := h.lang.Language(c, c.QueryParam("language"))
	tags := make([]TagOption, 0, len(CommonTags))
	for _, key := range CommonTags {
		tags = append(tags, TagOption{Key: key, Label: h.tr.T(lang, "symptomChecker.tags."+key, nil)})
	}
	return c.JSON(http.StatusOK, tags)
}

// CreateFlowHandler handles POST /symptoms/flows
func (h *Handler) CreateFlowHandler(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, req.Language)
	}
	if err := c.Validate(&req); err != nil {
		return h.invalid(c, req.Language)
	}
	req.Language = h.lang.Language(c, req.Language)

	flow := h.svc.Create(req)
	utility.GetLogger(c).Info().Str("flow_id", flow.ID).Msg("Symptom check started")
	return c.JSON(http.StatusCreated, flow)
}

// GetFlowHandler handles GET /symptoms/flows/:flow_id
func (h *Handler) GetFlowHandler(c echo.Context) error {
	flow, err := h.svc.Get(c.Param("flow_id"))
	if err != nil {
		return h.fail(c, err, "", nil)
	}
	return c.JSON(http.StatusOK, flow)
}

// SubmitHandler handles POST /symptoms/flows/:flow_id/submit
func (h *Handler) SubmitHandler(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, req.Language)
	}
	if err := c.Validate(&req); err != nil {
		return h.invalid(c, req.Language)
	}
	if req.Language != "" {
		req.Language = h.lang.Language(c, req.Language)
	}

	flow, err := h.svc.Submit(c.Request().Context(), c.Param("flow_id"), req)
	if err != nil {
		return h.fail(c, err, req.Language, &flow)
	}
	return c.JSON(http.StatusOK, flow)
}

// AnswerHandler handles POST /symptoms/flows/:flow_id/answers
func (h *Handler) AnswerHandler(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, "")
	}

	flow, err := h.svc.Answer(c.Request().Context(), c.Param("flow_id"), req.Answers)
	if err != nil {
		return h.fail(c, err, "", &flow)
	}
	return c.JSON(http.StatusOK, flow)
}

// SkipHandler handles POST /symptoms/flows/:flow_id/skip
func (h *Handler) SkipHandler(c echo.Context) error {
	flow, err := h.svc.Skip(c.Request().Context(), c.Param("flow_id"))
	if err != nil {
		return h.fail(c, err, "", &flow)
	}
	return c.JSON(http.StatusOK, flow)
}

// ResetHandler handles POST /symptoms/flows/:flow_id/reset
func (h *Handler) ResetHandler(c echo.Context) error {
	flow, err := h.svc.Reset(c.Param("flow_id"))
	if err != nil {
		return h.fail(c, err, "", nil)
	}
	return c.JSON(http.StatusOK, flow)
}

// AddTagHandler handles POST /symptoms/flows/:flow_id/tags
func (h *Handler) AddTagHandler(c echo.Context) error {
	var req TagRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, "")
	}

	flow, err := h.svc.AddTag(c.Param("flow_id"), req.Tag)
	if err != nil {
		return h.fail(c, err, "", nil)
	}
	return c.JSON(http.StatusOK, flow)
}

// NarrationHandler handles GET /symptoms/flows/:flow_id/narration
func (h *Handler) NarrationHandler(c echo.Context) error {
	flow, err := h.svc.Get(c.Param("flow_id"))
	if err != nil {
		return h.fail(c, err, "", nil)
	}
	if flow.Diagnosis == nil {
		return h.fail(c, ErrNoDiagnosis, flow.Language, nil)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"language": flow.Language,
		"text":     speech.Narrate(flow.Diagnosis, flow.Language, h.tr),
	})
}

// TrackerHandler handles POST /symptoms/flows/:flow_id/tracker
func (h *Handler) TrackerHandler(c echo.Context) error {
	var req TrackerRequest
	// An empty body binds to nothing and means today.
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, "")
	}

	entry, err := h.svc.SaveToTracker(c.Request().Context(), c.Param("flow_id"), req.Date)
	if err != nil {
		return h.fail(c, err, "", nil)
	}
	return c.JSON(http.StatusCreated, entry)
}

/* ====================================================================
                        Errors
==================================================================== */

func (h *Handler) invalid(c echo.Context, lang string) error {
	lang = h.lang.Language(c, lang)
	return utility.ErrorJSON(c, http.StatusBadRequest, h.tr.T(lang, "symptomChecker.error.invalid", nil))
}

// fail maps err to a status and a localized message. A flow that came back
// with the error (a failed diagnosis) is returned alongside it.
func (h *Handler) fail(c echo.Context, err error, lang string, flow *Flow) error {
	if flow != nil && flow.Language != "" && lang == "" {
		lang = flow.Language
	}
	lang = h.lang.Language(c, lang)
	logger := utility.GetLogger(c)

	status, key := http.StatusInternalServerError, "symptomChecker.error.unknown"
	switch {
	case errors.Is(err, ErrFlowNotFound):
		status, key = http.StatusNotFound, "symptomChecker.error.notFound"
	case errors.Is(err, ErrBusy):
		status, key = http.StatusConflict, "symptomChecker.error.busy"
	case errors.Is(err, ErrInvalidStage), errors.Is(err, ErrNoDiagnosis):
		status, key = http.StatusConflict, "symptomChecker.error.stage"
	case errors.Is(err, ErrUnknownTag):
		status, key = http.StatusBadRequest, "symptomChecker.error.unknownTag"
	case errors.Is(err, geminiservice.ErrEmptySymptoms):
		status, key = http.StatusBadRequest, "symptomChecker.error.empty"
	case errors.Is(err, healthlog.ErrInvalidDate):
		status, key = http.StatusBadRequest, "calendar.invalidDate"
	case errors.Is(err, geminiservice.ErrMalformedResponse):
		status, key = http.StatusBadGateway, "symptomChecker.error.fetch"
		logger.Error().Err(err).Msg("Diagnosis response rejected")
	case errors.Is(err, geminiservice.ErrDiagnosisUnavailable), errors.Is(err, geminiservice.ErrUnavailable):
		status, key = http.StatusServiceUnavailable, "symptomChecker.error.fetch"
		logger.Error().Err(err).Msg("Diagnosis unavailable")
	default:
		logger.Error().Err(err).Msg("Symptom check request failed")
	}

	msg := h.tr.T(lang, key, nil)
	if flow != nil && flow.ID != "" {
		return c.JSON(status, map[string]interface{}{"error": msg, "flow": flow})
	}
	return utility.ErrorJSON(c, status, msg)
}
