package geminiservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Wire shapes. Pointers tell "missing" apart from a zero value so a reply
// without a confidence is rejected instead of read as 0. Confidence is
// decoded as a float because some models answer 85.0 for an INTEGER field.

type wireFollowUp struct {
	Questions []string `json:"questions" validate:"required"`
}

type wireCause struct {
	Cause              string   `json:"cause" validate:"required"`
	Confidence         *float64 `json:"confidence" validate:"required,min=0,max=100"`
	SuggestedTreatment string   `json:"suggested_treatment" validate:"required"`
	Description        string   `json:"description"`
	WhenToSeekCare     string   `json:"when_to_seek_medical_attention"`
}

type wireOption struct {
	Name         string `json:"name" validate:"required"`
	Type         string `json:"type"`
	Address      string `json:"address"`
	OpeningHours string `json:"opening_hours"`
	WaitTime     string `json:"wait_time"`
}

type wireDiagnosis struct {
	PossibleCauses         []wireCause  `json:"possible_causes" validate:"required,min=1,dive"`
	HomeCareTips           []string     `json:"home_care_tips"`
	LocalHealthcareOptions []wireOption `json:"local_healthcare_options" validate:"dive"`
}

// extractJSON strips markdown fences and any prose around the outermost
// JSON object.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}
	return s[start : end+1], nil
}

func decodeStrict(raw string, v interface{}) error {
	body, err := extractJSON(raw)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// ParseFollowUpQuestions decodes a questions reply, dropping blank entries
// and keeping at most limit of them.
func ParseFollowUpQuestions(raw string, limit int) ([]string, error) {
	var wire wireFollowUp
	if err := decodeStrict(raw, &wire); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(wire.Questions))
	for _, q := range wire.Questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ParseDiagnosis decodes and validates a diagnosis reply. Every cause must
// carry a name, a treatment and a confidence in [0,100]; anything
// else is ErrMalformedResponse.
func ParseDiagnosis(raw string) (*DiagnosisResult, error) {
	var wire wireDiagnosis
	if err := decodeStrict(raw, &wire); err != nil {
		return nil, err
	}

	result := &DiagnosisResult{
		PossibleCauses:         make([]PossibleCause, 0, len(wire.PossibleCauses)),
		HomeCareTips:           make([]string, 0, len(wire.HomeCareTips)),
		LocalHealthcareOptions: make([]LocalHealthcareOption, 0, len(wire.LocalHealthcareOptions)),
	}

	for _, c := range wire.PossibleCauses {
		result.PossibleCauses = append(result.PossibleCauses, PossibleCause{
			Cause:              strings.TrimSpace(c.Cause),
			Confidence:         int(math.Round(*c.Confidence)),
			SuggestedTreatment: strings.TrimSpace(c.SuggestedTreatment),
			Description:        strings.TrimSpace(c.Description),
			WhenToSeekCare:     strings.TrimSpace(c.WhenToSeekCare),
		})
	}
	for _, tip := range wire.HomeCareTips {
		if tip = strings.TrimSpace(tip); tip != "" {
			result.HomeCareTips = append(result.HomeCareTips, tip)
		}
	}
	for _, o := range wire.LocalHealthcareOptions {
		result.LocalHealthcareOptions = append(result.LocalHealthcareOptions, LocalHealthcareOption(o))
	}

	return result, nil
}

// cleanText trims a plain-text reply. An empty reply is malformed.
func cleanText(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty text response", ErrMalformedResponse)
	}
	return s, nil
}
