package geminiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"HealthAI/internal/config"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	structuredMimeType = "application/json"
	maxErrorBody       = 2048
)

// Operation names one logical model call; it picks the model and labels logs.
type Operation string

const (
	OpFollowUpQuestions Operation = "follow_up_questions"
	OpDiagnosis         Operation = "diagnosis"
	OpLogSummary        Operation = "log_summary"
	OpLogAnalysis       Operation = "log_analysis"
)

// GenerateRequest is everything a single generateContent call needs.
// A nil Schema asks for plain text.
type GenerateRequest struct {
	Operation    Operation
	SystemPrompt string
	UserPrompt   string
	Schema       *GeminiSchema
	// Language is the output language code; it is already embedded in the
	// prompts and is carried here for logging and test doubles.
	Language string
}

// Generator is the seam between prompt construction and the model transport.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// --- Structs for Gemini API Request/Response ---

type GeminiPayload struct {
	Contents          []GeminiContent   `json:"contents"`
	SystemInstruction *GeminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text,omitempty"`
}

type GenerationConfig struct {
	ResponseMimeType string        `json:"responseMimeType,omitempty"`
	ResponseSchema   *GeminiSchema `json:"responseSchema,omitempty"`
}

type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Client calls the Gemini REST API. It is safe for concurrent use.
type Client struct {
	apiKey          string
	baseURL         string
	structuredModel string
	textModel       string
	maxAttempts     int
	initialBackoff  time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *zerolog.Logger
}

// NewClient builds a client from configuration. The HTTP client carries no
// timeout of its own; callers bound every call through the context.
func NewClient(cfg config.GeminiConfig, log *zerolog.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	c := &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		structuredModel: cfg.StructuredModel,
		textModel:       cfg.TextModel,
		maxAttempts:     attempts,
		initialBackoff:  cfg.InitialBackoff,
		httpClient:      &http.Client{},
		limiter:         rate.NewLimiter(limit, burst),
		log:             log,
	}

	minRequests := cfg.Breaker.MinRequests
	failureRatio := cfg.Breaker.FailureRatio
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests || failureRatio <= 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= failureRatio
		},
		// A reachable model that answered badly, or a caller that gave up,
		// says nothing about the health of the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMalformedResponse) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return c
}

// BreakerState reports the circuit breaker state for the health endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) modelFor(op Operation) string {
	if op == OpLogSummary {
		return c.textModel
	}
	return c.structuredModel
}

// Generate sends one request and returns the text of the first candidate.
// Failures wrap ErrUnavailable or ErrMalformedResponse.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.apiKey == "" {
		c.log.Error().Msg("GEMINI_API_KEY is not set")
		return "", fmt.Errorf("%w: server is not configured for AI requests", ErrUnavailable)
	}

	payload := GeminiPayload{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: req.UserPrompt}}},
		},
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: req.SystemPrompt}}}
	}
	if req.Schema != nil {
		payload.GenerationConfig = &GenerationConfig{
			ResponseMimeType: structuredMimeType,
			ResponseSchema:   req.Schema,
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	model := c.modelFor(req.Operation)
	logger := c.log.With().Str("operation", string(req.Operation)).Str("model", model).Str("language", req.Language).Logger()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callWithRetry(ctx, &logger, model, payloadBytes)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	return out.(string), nil
}

func (c *Client) callWithRetry(ctx context.Context, logger *zerolog.Logger, model string, payload []byte) (string, error) {
	var lastErr error

	for i := 0; i < c.maxAttempts; i++ {
		if i > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(i-1)))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
		}

		logger.Debug().Int("attempt", i+1).Msg("Calling Gemini API")

		text, retryable, err := c.call(ctx, model, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", i+1).Msg("Gemini call failed")

		if !retryable || ctx.Err() != nil {
			break
		}
	}

	return "", lastErr
}

// call performs a single HTTP round trip. retryable reports whether another
// attempt could plausibly succeed.
func (c *Client) call(ctx context.Context, model string, payload []byte) (text string, retryable bool, err error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("%w: request failed: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, fmt.Errorf("%w: API returned non-200 status: %s, Body: %s", ErrUnavailable, resp.Status, string(body))
	}

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", true, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}

	if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
		return "", false, fmt.Errorf("%w: prompt blocked: %s", ErrMalformedResponse, geminiResp.PromptFeedback.BlockReason)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", false, fmt.Errorf("%w: no content found in Gemini response", ErrMalformedResponse)
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), false, nil
}
