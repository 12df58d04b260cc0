// Package speech covers the voice side of the symptom checker: dictated
// symptom text coming in over a WebSocket, and read-aloud text going out.
package speech

import (
	"strings"

	"HealthAI/internal/geminiservice"
	"HealthAI/internal/utility"
)

// Narrate builds the text a speech synthesizer reads for a diagnosis: the
// causes with their treatments, then the home care tips.
func Narrate(d *geminiservice.DiagnosisResult, lang string, tr utility.Translator) string {
	if d == nil {
		return ""
	}

	parts := make([]string, 0, len(d.PossibleCauses)+len(d.HomeCareTips)+2)
	parts = append(parts, tr.T(lang, "symptomChecker.results.possibleCauses", nil))
	for _, c := range d.PossibleCauses {
		parts = append(parts, c.Cause+". "+c.SuggestedTreatment)
	}
	parts = append(parts, tr.T(lang, "symptomChecker.results.homeCare", nil))
	parts = append(parts, d.HomeCareTips...)

	return strings.Join(parts, ". ")
}
