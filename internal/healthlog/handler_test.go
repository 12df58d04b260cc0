package healthlog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"HealthAI/internal/geminiservice"
	"HealthAI/internal/i18n"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLanguage string

func (f fixedLanguage) Language(_ echo.Context, override string) string {
	if override != "" {
		return override
	}
	return string(f)
}

func newTestHandler(t *testing.T, ai *fakeAI, lang string) (*echo.Echo, *Service) {
	t.Helper()
	tr, err := i18n.New("en")
	require.NoError(t, err)

	svc, _ := newTestService(ai)
	e := echo.New()
	NewHandler(svc, tr, fixedLanguage(lang)).Register(e.Group("/health/logs"), func(next echo.HandlerFunc) echo.HandlerFunc { return next })
	return e, svc
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHandler_SaveAndGet(t *testing.T) {
	ai := &fakeAI{summary: "🤕 Headache."}
	e, _ := newTestHandler(t, ai, "en")

	rec := serve(e, http.MethodPut, "/health/logs/2024-05-01", `{"log":"headache","symptom_severity":6,"language":"es"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "2024-05-01", entry.Date)
	assert.Equal(t, "🤕 Headache.", entry.Summary)
	assert.Equal(t, []string{"es:headache"}, ai.summaryCalls)

	rec = serve(e, http.MethodGet, "/health/logs/2024-05-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"symptom_severity":6`)

	rec = serve(e, http.MethodGet, "/health/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHandler_ValidationErrors(t *testing.T) {
	e, _ := newTestHandler(t, &fakeAI{}, "en")

	tests := []struct {
		name    string
		target  string
		body    string
		wantMsg string
	}{
		{"bad date", "/health/logs/2024-13-01", `{"log":"x","symptom_severity":3}`, "Dates must use the YYYY-MM-DD format."},
		{"severity", "/health/logs/2024-05-01", `{"log":"x","symptom_severity":0}`, "Symptom severity must be between 1 and 10."},
		{"empty", "/health/logs/2024-05-01", `{"log":"","symptom_severity":3}`, "Please describe how you are feeling."},
		{"malformed body", "/health/logs/2024-05-01", `{"log":"x",`, "Invalid request."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, http.MethodPut, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, errorBody(t, rec))
		})
	}
}

func TestHandler_NotFound(t *testing.T) {
	e, _ := newTestHandler(t, &fakeAI{}, "en")

	rec := serve(e, http.MethodGet, "/health/logs/2024-05-09", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorBody(t, rec), "2024-05-09")

	rec = serve(e, http.MethodDelete, "/health/logs/2024-05-09", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Delete(t *testing.T) {
	e, svc := newTestHandler(t, &fakeAI{summary: "ok"}, "en")
	_, err := svc.Save(t.Context(), SaveRequest{Date: "2024-05-01", Log: "x", Severity: 2})
	require.NoError(t, err)

	rec := serve(e, http.MethodDelete, "/health/logs/2024-05-01", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandler_Trend(t *testing.T) {
	e, svc := newTestHandler(t, &fakeAI{summary: "ok"}, "es")

	rec := serve(e, http.MethodGet, "/health/logs/trend", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty struct {
		Points  []TrendPoint `json:"points"`
		Message string       `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Empty(t, empty.Points)
	assert.NotEmpty(t, empty.Message)

	_, err := svc.Save(t.Context(), SaveRequest{Date: "2024-05-01", Log: "x", Severity: 7})
	require.NoError(t, err)

	rec = serve(e, http.MethodGet, "/health/logs/trend", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"points":[{"date":"2024-05-01","severity":7}]}`, rec.Body.String())
}

func TestHandler_Analyze(t *testing.T) {
	t.Run("no logs", func(t *testing.T) {
		ai := &fakeAI{}
		e, _ := newTestHandler(t, ai, "en")

		rec := serve(e, http.MethodPost, "/health/logs/analyze", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Zero(t, ai.analysisCalls)
	})

	t.Run("success", func(t *testing.T) {
		ai := &fakeAI{summary: "ok", analysis: "Steady improvement."}
		e, svc := newTestHandler(t, ai, "en")
		_, err := svc.Save(t.Context(), SaveRequest{Date: "2024-05-01", Log: "x", Severity: 7})
		require.NoError(t, err)

		rec := serve(e, http.MethodPost, "/health/logs/analyze", `{"language":"fr"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"analysis":"Steady improvement."}`, rec.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		ai := &fakeAI{summary: "ok", analysis: "Steady improvement."}
		e, svc := newTestHandler(t, ai, "en")
		_, err := svc.Save(t.Context(), SaveRequest{Date: "2024-05-01", Log: "x", Severity: 7})
		require.NoError(t, err)

		rec := serve(e, http.MethodPost, "/health/logs/analyze", `{"language":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request.", errorBody(t, rec))
		assert.Zero(t, ai.analysisCalls)
	})

	t.Run("model errors", func(t *testing.T) {
		tests := []struct {
			err  error
			want int
		}{
			{fmt.Errorf("%w: %w", geminiservice.ErrAnalysisUnavailable, geminiservice.ErrUnavailable), http.StatusServiceUnavailable},
			{fmt.Errorf("%w: %w", geminiservice.ErrAnalysisUnavailable, geminiservice.ErrMalformedResponse), http.StatusBadGateway},
		}
		for _, tt := range tests {
			ai := &fakeAI{summary: "ok", analysisErr: tt.err}
			e, svc := newTestHandler(t, ai, "en")
			_, err := svc.Save(t.Context(), SaveRequest{Date: "2024-05-01", Log: "x", Severity: 7})
			require.NoError(t, err)

			rec := serve(e, http.MethodPost, "/health/logs/analyze", "")
			assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		}
	})
}
