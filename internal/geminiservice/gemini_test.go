package geminiservice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"HealthAI/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testGeminiConfig(baseURL string) config.GeminiConfig {
	return config.GeminiConfig{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		StructuredModel: "pro-model",
		TextModel:       "flash-model",
		Timeout:         5 * time.Second,
		MaxAttempts:     1,
		InitialBackoff:  time.Millisecond,
	}
}

func geminiReply(text string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(body)
}

func TestClient_Generate_StructuredRequest(t *testing.T) {
	var got GeminiPayload
	var path, key string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(geminiReply(`{"questions":["How long?"]}`)))
	}))
	defer srv.Close()

	client := NewClient(testGeminiConfig(srv.URL), nopLogger())
	text, err := client.Generate(context.Background(), GenerateRequest{
		Operation:    OpFollowUpQuestions,
		SystemPrompt: "system",
		UserPrompt:   "user",
		Schema:       FollowUpSchema,
		Language:     "es",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"questions":["How long?"]}`, text)
	assert.Equal(t, "/models/pro-model:generateContent", path)
	assert.Equal(t, "test-key", key)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "system", got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "user", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.Equal(t, "OBJECT", got.GenerationConfig.ResponseSchema.Type)
}

func TestClient_Generate_SummaryUsesTextModel(t *testing.T) {
	var path string
	var got GeminiPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(geminiReply("🤒 Mild fever.")))
	}))
	defer srv.Close()

	client := NewClient(testGeminiConfig(srv.URL), nopLogger())
	text, err := client.Generate(context.Background(), GenerateRequest{Operation: OpLogSummary, UserPrompt: "log"})

	require.NoError(t, err)
	assert.Equal(t, "🤒 Mild fever.", text)
	assert.Equal(t, "/models/flash-model:generateContent", path)
	assert.Nil(t, got.GenerationConfig)
	assert.Nil(t, got.SystemInstruction)
}

func TestClient_Generate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad", http.StatusBadRequest)
			},
			wantErr: ErrUnavailable,
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[]}`))
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "blocked prompt",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
			},
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(testGeminiConfig(srv.URL), nopLogger())
			_, err := client.Generate(context.Background(), GenerateRequest{Operation: OpDiagnosis, UserPrompt: "x"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), err.Error())
		})
	}
}

func TestClient_Generate_MissingAPIKey(t *testing.T) {
	cfg := testGeminiConfig("http://127.0.0.1:0")
	cfg.APIKey = ""

	_, err := NewClient(cfg, nopLogger()).Generate(context.Background(), GenerateRequest{Operation: OpDiagnosis})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Generate_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(geminiReply("ok")))
	}))
	defer srv.Close()

	cfg := testGeminiConfig(srv.URL)
	cfg.MaxAttempts = 3

	text, err := NewClient(cfg, nopLogger()).Generate(context.Background(), GenerateRequest{Operation: OpLogAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestClient_Generate_DoesNotRetryByDefault(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(testGeminiConfig(srv.URL), nopLogger()).Generate(context.Background(), GenerateRequest{Operation: OpDiagnosis})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_Generate_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(testGeminiConfig(srv.URL), nopLogger()).Generate(ctx, GenerateRequest{Operation: OpDiagnosis})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Generate_BreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testGeminiConfig(srv.URL)
	cfg.Breaker = config.BreakerConfig{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
	client := NewClient(cfg, nopLogger())
	assert.Equal(t, "closed", client.BreakerState())

	for i := 0; i < 2; i++ {
		_, err := client.Generate(context.Background(), GenerateRequest{Operation: OpDiagnosis})
		require.ErrorIs(t, err, ErrUnavailable)
	}

	_, err := client.Generate(context.Background(), GenerateRequest{Operation: OpDiagnosis})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "open breaker must not reach the server")
	assert.Equal(t, "open", client.BreakerState())
}

func TestClient_Generate_MalformedDoesNotTripBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	cfg := testGeminiConfig(srv.URL)
	cfg.Breaker = config.BreakerConfig{MinRequests: 1, FailureRatio: 0.1, Timeout: time.Minute}
	client := NewClient(cfg, nopLogger())

	for i := 0; i < 3; i++ {
		_, err := client.Generate(context.Background(), GenerateRequest{Operation: OpDiagnosis})
		require.ErrorIs(t, err, ErrMalformedResponse)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
