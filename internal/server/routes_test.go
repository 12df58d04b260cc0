package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"HealthAI/internal/config"
	"HealthAI/internal/geminiservice"
	"HealthAI/internal/healthlog"
	"HealthAI/internal/i18n"
	"HealthAI/internal/settings"
	"HealthAI/internal/symptom"
	"HealthAI/internal/utility"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu      sync.Mutex
	replies map[geminiservice.Operation]string
	calls   int
}

func (m *fakeModel) Generate(_ context.Context, req geminiservice.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.replies[req.Operation], nil
}

func (m *fakeModel) BreakerState() string { return "closed" }

type downStore struct {
	*healthlog.MemoryStore
}

func (downStore) Health(context.Context) map[string]string {
	return map[string]string{"status": "down", "driver": "memory"}
}

const diagnosisReply = `{"possible_causes":[{"cause":"Viral pharyngitis","confidence":70,"suggested_treatment":"Rest","description":"Throat infection","when_to_seek_medical_attention":"Trouble swallowing"}],"home_care_tips":["Stay hydrated"],"local_healthcare_options":[]}`

type testEnv struct {
	handler http.Handler
	model   *fakeModel
	logs    *healthlog.Service
}

func newTestEnv(t *testing.T, store healthlog.Store, burst int) *testEnv {
	t.Helper()
	nop := zerolog.Nop()

	cfg := &config.Config{
		Server: config.ServerConfig{AllowOrigins: []string{"http://localhost:3000"}},
	}

	tr, err := i18n.New("en")
	require.NoError(t, err)

	model := &fakeModel{replies: map[geminiservice.Operation]string{
		geminiservice.OpFollowUpQuestions: `{"questions":["How long?"]}`,
		geminiservice.OpDiagnosis:         diagnosisReply,
		geminiservice.OpLogSummary:        "🤒 Sore throat",
		geminiservice.OpLogAnalysis:       "Your symptoms are improving.",
	}}
	gateway := geminiservice.NewGateway(model, &nop)
	logs := healthlog.NewService(store, gateway, &nop)
	hub := utility.NewHub()

	s := newServer(cfg, Deps{
		Store:      store,
		Gateway:    gateway,
		Breaker:    model,
		Logs:       logs,
		Flows:      symptom.NewService(gateway, logs, tr, &nop, 10, time.Hour, symptom.WithNotifier(hub)),
		Hub:        hub,
		Settings:   settings.NewManager(config.SessionConfig{Secret: "server-test-secret-0123456789abc", MaxAge: 3600}, tr, "en"),
		Translator: tr,
		Limiter:    utility.NewIPRateLimiter(1, burst),
	})
	return &testEnv{handler: s.RegisterRoutes(), model: model, logs: logs}
}

func (env *testEnv) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 5)

	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "up", body["status"])
	assert.Equal(t, "memory", body["driver"])
	assert.Equal(t, "closed", body["gemini_breaker"])
	assert.Contains(t, body, "uptime")
}

func TestHealthHandler_StoreDown(t *testing.T) {
	env := newTestEnv(t, downStore{healthlog.NewMemoryStore()}, 5)

	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decode(t, rec)["status"])
}

func TestTranslateHandler(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 5)

	tests := []struct {
		name      string
		target    string
		wantLang  string
		wantValue string
		wantFound bool
	}{
		{"regional tag", "/i18n/es-MX/symptomChecker.tags.fever", "es", "Fiebre", true},
		{"unsupported language", "/i18n/xx/symptomChecker.tags.fever", "en", "Fever", true},
		{"unknown key", "/i18n/en/no.such.key", "en", "no.such.key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantLang, body["language"])
			assert.Equal(t, tt.wantValue, body["value"])
			assert.Equal(t, tt.wantFound, body["found"])
		})
	}
}

func TestLoggerMiddleware_RequestID(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 5)

	rec := env.do(http.MethodGet, "/settings", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRoutes_SettingsLanguageReachesSymptoms(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 5)

	rec := env.do(http.MethodPut, "/settings", `{"language":"es"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()

	rec = env.do(http.MethodGet, "/symptoms/tags", "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Fiebre"`)
}

func TestRoutes_SymptomCheckToCalendar(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 10)

	rec := env.do(http.MethodPost, "/symptoms/flows", `{"symptoms":"sore throat and mild fever"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	flowID, _ := decode(t, rec)["id"].(string)
	require.NotEmpty(t, flowID)
	base := "/symptoms/flows/" + flowID

	rec = env.do(http.MethodPost, base+"/submit", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "questions", decode(t, rec)["stage"])

	rec = env.do(http.MethodPost, base+"/skip", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "results", decode(t, rec)["stage"])

	rec = env.do(http.MethodPost, base+"/tracker", `{"date":"2024-05-04"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/health/logs/2024-05-04", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode(t, rec)
	assert.Equal(t, "Check: Viral pharyngitis", entry["summary"])
	assert.EqualValues(t, 5, entry["symptom_severity"])

	rec = env.do(http.MethodPost, "/health/logs/analyze", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "improving")
}

func TestRoutes_AIRoutesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 1)

	rec := env.do(http.MethodPost, "/symptoms/questions", `{"symptoms":"headache"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/symptoms/diagnosis", `{"symptoms":"headache"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(http.MethodPost, "/health/logs/analyze", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Routes that never reach the model are not counted.
	rec = env.do(http.MethodGet, "/symptoms/tags", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.model.calls)
}

func TestRoutes_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 5)

	req := httptest.NewRequest(http.MethodOptions, "/settings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRoutes_CORSRejectsUnlistedOrigin(t *testing.T) {
	env := newTestEnv(t, healthlog.NewMemoryStore(), 5)

	req := httptest.NewRequest(http.MethodOptions, "/settings", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
