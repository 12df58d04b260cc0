package geminiservice

import (
	"sort"
	"strings"
)

// HighConfidenceThreshold is the confidence above which a cause is flagged
// for the presentation layer. The prompt asks the model to stay at or below
// it for severe causes; nothing enforces that.
const HighConfidenceThreshold = 80

// preferNotToSay is the sentinel the client sends for an undisclosed field.
var preferNotToSay = map[string]bool{
	"prefer not to say": true,
	"prefer_not_to_say": true,
}

// Demographics is optional descriptive context for the diagnosis prompt.
type Demographics struct {
	Age        *int   `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	SexAtBirth string `json:"sex_at_birth,omitempty" validate:"max=64"`
	Ethnicity  string `json:"ethnicity,omitempty" validate:"max=128"`
}

func disclosed(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !preferNotToSay[strings.ToLower(v)]
}

// IsEmpty reports whether no field carries usable information.
func (d Demographics) IsEmpty() bool {
	return d.Age == nil && !disclosed(d.SexAtBirth) && !disclosed(d.Ethnicity)
}

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

type PossibleCause struct {
	Cause              string `json:"cause"`
	Confidence         int    `json:"confidence"`
	SuggestedTreatment string `json:"suggested_treatment"`
	Description        string `json:"description"`
	WhenToSeekCare     string `json:"when_to_seek_medical_attention"`
}

type LocalHealthcareOption struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Address      string `json:"address"`
	OpeningHours string `json:"opening_hours,omitempty"`
	WaitTime     string `json:"wait_time,omitempty"`
}

// DiagnosisResult keeps the order the model returned. Use SortedByConfidence
// when an order matters.
type DiagnosisResult struct {
	PossibleCauses         []PossibleCause         `json:"possible_causes"`
	HomeCareTips           []string                `json:"home_care_tips"`
	LocalHealthcareOptions []LocalHealthcareOption `json:"local_healthcare_options"`
}

// SortedByConfidence returns a copy of the causes, highest confidence first.
// Ties keep the model's order.
func (d DiagnosisResult) SortedByConfidence() []PossibleCause {
	out := make([]PossibleCause, len(d.PossibleCauses))
	copy(out, d.PossibleCauses)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// HighConfidenceCauses returns the causes scored above HighConfidenceThreshold.
func (d DiagnosisResult) HighConfidenceCauses() []PossibleCause {
	var out []PossibleCause
	for _, c := range d.PossibleCauses {
		if c.Confidence > HighConfidenceThreshold {
			out = append(out, c)
		}
	}
	return out
}

// TopCause returns the highest-confidence cause name, or "Unknown".
func (d DiagnosisResult) TopCause() string {
	sorted := d.SortedByConfidence()
	if len(sorted) == 0 || strings.TrimSpace(sorted[0].Cause) == "" {
		return "Unknown"
	}
	return sorted[0].Cause
}

// LogRecord is the part of a health log entry the analyzer sees.
type LogRecord struct {
	Date     string
	Log      string
	Severity int
}
