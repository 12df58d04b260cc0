package geminiservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"HealthAI/internal/i18n"

	"github.com/rs/zerolog"
)

const (
	// FollowUpQuestionCount is how many clarifying questions are kept.
	FollowUpQuestionCount = 3

	// FallbackSummary is stored when the model cannot summarize a log.
	FallbackSummary = "📄 Logged"

	defaultCallTimeout = 60 * time.Second
)

// DiagnosisRequest carries every piece of context the diagnosis prompt can use.
// Only Symptoms is required.
type DiagnosisRequest struct {
	Symptoms     string
	Answers      map[string]string
	Location     *Coordinate
	Demographics Demographics
	Language     string
}

// Gateway turns domain requests into model calls and model replies into
// domain values. It holds no per-user state.
type Gateway struct {
	gen             Generator
	log             *zerolog.Logger
	timeout         time.Duration
	fallbackSummary func(lang string) string
}

type Option func(*Gateway)

// WithTimeout bounds every model call made by the gateway.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithSummaryFallback localizes the fallback summary.
func WithSummaryFallback(fn func(lang string) string) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.fallbackSummary = fn
		}
	}
}

func NewGateway(gen Generator, log *zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		gen:             gen,
		log:             log,
		timeout:         defaultCallTimeout,
		fallbackSummary: func(string) string { return FallbackSummary },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) call(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.gen.Generate(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	return raw, nil
}

// classify makes sure every failure carries one of the two transport kinds.
// A deadline or an unknown error means the model could not be reached.
func classify(err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedResponse) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// FollowUpQuestions asks for up to three clarifying questions. Failures are
// absorbed: the caller gets an empty list and goes straight to diagnosis.
func (g *Gateway) FollowUpQuestions(ctx context.Context, symptoms, lang string) []string {
	if strings.TrimSpace(symptoms) == "" {
		return []string{}
	}

	raw, err := g.call(ctx, GenerateRequest{
		Operation:    OpFollowUpQuestions,
		SystemPrompt: MedicalSystemPrompt,
		UserPrompt:   BuildFollowUpPrompt(symptoms, lang),
		Schema:       FollowUpSchema,
		Language:     lang,
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("Follow-up questions unavailable, continuing without them")
		return []string{}
	}

	questions, err := ParseFollowUpQuestions(raw, FollowUpQuestionCount)
	if err != nil {
		g.log.Warn().Err(err).Msg("Follow-up questions could not be parsed, continuing without them")
		return []string{}
	}
	return questions
}

// Diagnose runs the diagnosis call. Errors wrap ErrDiagnosisUnavailable and
// one of ErrUnavailable or ErrMalformedResponse.
func (g *Gateway) Diagnose(ctx context.Context, req DiagnosisRequest) (*DiagnosisResult, error) {
	if strings.TrimSpace(req.Symptoms) == "" {
		return nil, ErrEmptySymptoms
	}

	raw, err := g.call(ctx, GenerateRequest{
		Operation:    OpDiagnosis,
		SystemPrompt: MedicalSystemPrompt,
		UserPrompt:   BuildDiagnosisPrompt(req),
		Schema:       DiagnosisSchema,
		Language:     req.Language,
	})
	if err != nil {
		g.log.Error().Err(err).Msg("Diagnosis call failed")
		return nil, fmt.Errorf("%w: %w", ErrDiagnosisUnavailable, err)
	}

	result, err := ParseDiagnosis(raw)
	if err != nil {
		g.log.Error().Err(err).Msg("Diagnosis response rejected")
		return nil, fmt.Errorf("%w: %w", ErrDiagnosisUnavailable, err)
	}

	g.log.Info().Int("causes", len(result.PossibleCauses)).Int("high_confidence", len(result.HighConfidenceCauses())).Msg("Diagnosis generated")
	return result, nil
}

// SummarizeLog returns a one-line, emoji-prefixed summary. It never fails:
// any error yields the fallback summary.
func (g *Gateway) SummarizeLog(ctx context.Context, text, lang string) string {
	if strings.TrimSpace(text) == "" {
		return g.fallbackSummary(lang)
	}

	raw, err := g.call(ctx, GenerateRequest{
		Operation:  OpLogSummary,
		UserPrompt: BuildSummaryPrompt(text, lang),
		Language:   lang,
	})
	if err == nil {
		var summary string
		if summary, err = cleanText(raw); err == nil {
			// Models occasionally add a second line of commentary.
			if i := strings.IndexByte(summary, '\n'); i >= 0 {
				summary = strings.TrimSpace(summary[:i])
			}
			return summary
		}
	}

	g.log.Warn().Err(err).Msg("Log summary unavailable, using fallback")
	return g.fallbackSummary(lang)
}

// AnalyzeLogs asks for a narrative over the given logs. It refuses an empty
// slice with ErrNoLogs without calling the model.
func (g *Gateway) AnalyzeLogs(ctx context.Context, logs []LogRecord, lang string) (string, error) {
	if len(logs) == 0 {
		return "", ErrNoLogs
	}

	raw, err := g.call(ctx, GenerateRequest{
		Operation:  OpLogAnalysis,
		UserPrompt: BuildAnalysisPrompt(logs, lang),
		Language:   lang,
	})
	if err != nil {
		g.log.Error().Err(err).Int("logs", len(logs)).Msg("Health analysis call failed")
		return "", fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}

	text, err := cleanText(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}
	return text, nil
}

/*=================================================================================
								PROMPT BUILDERS
=================================================================================*/

// BuildFollowUpPrompt fills FollowUpPromptTemplate.
func BuildFollowUpPrompt(symptoms, lang string) string {
	return fmt.Sprintf(FollowUpPromptTemplate, strings.TrimSpace(symptoms), i18n.LanguageName(lang))
}

// BuildDiagnosisPrompt fills DiagnosisPromptTemplate. Answers are listed in
// question order so the same request always yields the same prompt.
func BuildDiagnosisPrompt(req DiagnosisRequest) string {
	return fmt.Sprintf(
		DiagnosisPromptTemplate,
		strings.TrimSpace(req.Symptoms),
		formatAnswers(req.Answers),
		formatDemographics(req.Demographics),
		formatLocation(req.Location),
		i18n.LanguageName(req.Language),
	)
}

// BuildSummaryPrompt fills SummaryPromptTemplate.
func BuildSummaryPrompt(text, lang string) string {
	return fmt.Sprintf(SummaryPromptTemplate, strings.TrimSpace(text), i18n.LanguageName(lang))
}

// BuildAnalysisPrompt fills AnalysisPromptTemplate, one line per log.
func BuildAnalysisPrompt(logs []LogRecord, lang string) string {
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		lines = append(lines, fmt.Sprintf("Date: %s, Log: %s, Severity: %d/10", l.Date, l.Log, l.Severity))
	}
	return fmt.Sprintf(AnalysisPromptTemplate, strings.Join(lines, "\n"), i18n.LanguageName(lang))
}

func formatAnswers(answers map[string]string) string {
	questions := make([]string, 0, len(answers))
	for q, a := range answers {
		if strings.TrimSpace(q) != "" && strings.TrimSpace(a) != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return "The user did not answer any follow-up questions."
	}
	sort.Strings(questions)

	var b strings.Builder
	b.WriteString("The user answered the following follow-up questions:")
	for _, q := range questions {
		b.WriteString(fmt.Sprintf("\n- Q: %s A: %s", strings.TrimSpace(q), strings.TrimSpace(answers[q])))
	}
	return b.String()
}

func formatDemographics(d Demographics) string {
	var parts []string
	if d.Age != nil {
		parts = append(parts, fmt.Sprintf("Age: %d", *d.Age))
	}
	if disclosed(d.SexAtBirth) {
		parts = append(parts, fmt.Sprintf("Sex at birth: %s", strings.TrimSpace(d.SexAtBirth)))
	}
	if disclosed(d.Ethnicity) {
		parts = append(parts, fmt.Sprintf("Ethnicity: %s", strings.TrimSpace(d.Ethnicity)))
	}

	if len(parts) == 0 {
		return "The user has not provided demographic information."
	}
	return fmt.Sprintf("The user's demographic profile is: %s. Certain conditions can be more prevalent in specific demographic groups, so consider this information in your analysis.", strings.Join(parts, ", "))
}

func formatLocation(loc *Coordinate) string {
	if loc == nil {
		return "The user's location is not available."
	}
	return fmt.Sprintf("The user is currently near latitude %.4f and longitude %.4f.", loc.Latitude, loc.Longitude)
}
