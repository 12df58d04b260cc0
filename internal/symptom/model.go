// Package symptom runs the three-step symptom check: describe, answer
// follow-up questions, read the diagnosis.
package symptom

import (
	"errors"
	"time"

	"HealthAI/internal/geminiservice"
)

type Stage string

const (
	StageInput     Stage = "input"
	StageQuestions Stage = "questions"
	StageResults   Stage = "results"
)

var (
	ErrFlowNotFound = errors.New("symptom check not found")
	ErrBusy         = errors.New("symptom check is busy")
	ErrInvalidStage = errors.New("operation not allowed at this stage")
	ErrUnknownTag   = errors.New("unknown symptom tag")
	ErrNoDiagnosis  = errors.New("symptom check has no diagnosis")
)

// CommonTags are the quick-add symptom chips, as translation keys under
// symptomChecker.tags.
var CommonTags = []string{
	"fever", "cough", "headache", "fatigue", "nausea", "dizziness",
	"soreThroat", "shortnessOfBreath", "chestPain", "rash",
}

// Flow is a snapshot of one symptom check.
type Flow struct {
	ID           string                         `json:"id"`
	Stage        Stage                          `json:"stage"`
	Symptoms     string                         `json:"symptoms"`
	Demographics geminiservice.Demographics     `json:"demographics"`
	Location     *geminiservice.Coordinate      `json:"location,omitempty"`
	Language     string                         `json:"language"`
	Questions    []string                       `json:"questions"`
	Answers      map[string]string              `json:"answers"`
	Diagnosis    *geminiservice.DiagnosisResult `json:"diagnosis,omitempty"`
	Error        string                         `json:"error,omitempty"`
	Busy         bool                           `json:"busy"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

func (f Flow) clone() Flow {
	out := f
	out.Questions = append([]string{}, f.Questions...)
	out.Answers = make(map[string]string, len(f.Answers))
	for k, v := range f.Answers {
		out.Answers[k] = v
	}
	if f.Location != nil {
		loc := *f.Location
		out.Location = &loc
	}
	if f.Demographics.Age != nil {
		age := *f.Demographics.Age
		out.Demographics.Age = &age
	}
	return out
}

// CreateRequest seeds a new flow. Everything is optional.
type CreateRequest struct {
	Symptoms     string                     `json:"symptoms"`
	Demographics geminiservice.Demographics `json:"demographics"`
	Location     *geminiservice.Coordinate  `json:"location"`
	Language     string                     `json:"language"`
}

// SubmitRequest starts the check. Empty fields keep the flow's current values.
type SubmitRequest struct {
	Symptoms     string                      `json:"symptoms"`
	Demographics *geminiservice.Demographics `json:"demographics"`
	Location     *geminiservice.Coordinate   `json:"location"`
	Language     string                      `json:"language"`
}

// Event is pushed to a connected client whenever the flow changes.
type Event struct {
	Type string `json:"type"`
	Flow Flow   `json:"flow"`
}
