package geminiservice

import "errors"

// Transport-level kinds. Every gateway failure wraps exactly one of these.
var (
	ErrUnavailable       = errors.New("ai model unavailable")
	ErrMalformedResponse = errors.New("malformed ai model response")
)

// Operation-level kinds.
var (
	ErrDiagnosisUnavailable = errors.New("diagnosis unavailable")
	ErrAnalysisUnavailable  = errors.New("health analysis unavailable")
	ErrEmptySymptoms        = errors.New("symptom text is empty")
	ErrNoLogs               = errors.New("no health logs to analyze")
)
