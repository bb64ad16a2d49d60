// Package safety enforces the content policy on both directions of the
// conversation: crisis-language detection on user input, and a filter
// over generated output that blocks diagnosis claims, dosage advice and
// out-of-scope content. All checks are pure functions over text with a
// fixed rule set.
package safety

import "strings"

var diagnosisKeywords = []string{
	"diagnose", "diagnosis", "is this cancer",
	"do i have", "what disease", "you have",
}

var dosageKeywords = []string{
	"dosage", "dose", "how much medicine",
	"how many mg", "how many tablets", "take 2 tablets",
}

var emergencyKeywords = []string{
	"suicide", "kill myself", "end my life",
	"can't breathe", "severe chest pain",
	"heart attack", "collapse", "fainted",
}

// Policy-safe substitutes and canned responses.
const (
	DiagnosisRefusal = "Medical diagnosis requests are not supported. I can share general wellbeing information instead."
	DosageRefusal    = "Medication dosage advice is not allowed. Please ask a pharmacist or doctor about dosing."
	ScopeRedirect    = "I'm here to help with health-related questions only. Please ask about symptoms, wellness, or self-care."

	EmergencyMessage = "This sounds serious. Please seek immediate medical help or contact local emergency services."
)

// DetectEmergency reports whether user text contains crisis language.
// A match diverts the request to the crisis-resource response; it is
// control flow, not an error.
func DetectEmergency(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, phrase := range emergencyKeywords {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// CheckRequest scans user text for forbidden medical requests.
// Returns the refusal message and true when the request must not reach
// a generation model.
func CheckRequest(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lowered := strings.ToLower(text)

	for _, word := range diagnosisKeywords {
		if strings.Contains(lowered, word) {
			return DiagnosisRefusal, true
		}
	}
	for _, word := range dosageKeywords {
		if strings.Contains(lowered, word) {
			return DosageRefusal, true
		}
	}
	return "", false
}

// CheckOutput scans generated response text and, on a policy match,
// returns a safe substitute. It runs after every successful fallback
// tier, including the terminal static fallback, so no path bypasses it.
func CheckOutput(text string) (string, bool) {
	if text == "" {
		return text, false
	}
	lowered := strings.ToLower(text)

	for _, word := range diagnosisKeywords {
		if strings.Contains(lowered, word) {
			return DiagnosisRefusal, true
		}
	}
	for _, word := range dosageKeywords {
		if strings.Contains(lowered, word) {
			return DosageRefusal, true
		}
	}
	return text, false
}

var healthKeywords = []string{
	"pain", "ache", "dizzy", "nausea", "headache", "fever",
	"anxious", "stress", "panic", "can't sleep", "not feeling well",
	"tired", "fatigue", "sleep", "worried", "sad",
}

var selfCareKeywords = []string{
	"self care", "self-care", "improve my health",
	"stay healthy", "healthy habits", "how can i improve",
}

// InScope reports whether text is a health or self-care query this
// assistant should answer. Out-of-scope text gets the fixed redirect
// without touching a generation model.
func InScope(text string) bool {
	lowered := strings.ToLower(text)
	for _, s := range healthKeywords {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	for _, s := range selfCareKeywords {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}
