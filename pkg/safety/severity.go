package safety

import "strings"

// Severity levels used across turn tagging.
const (
	SeverityLow           = "low"
	SeverityModerate      = "moderate"
	SeverityHigh          = "high"
	SeverityInformational = "informational"
)

var crisisWords = []string{"suicide", "kill myself", "can't go on", "want to die"}
var highWords = []string{"can't cope", "overwhelming", "can't breathe", "panic"}
var moderateWords = []string{"stressed", "anxious", "worried", "struggling", "tired"}

// InferSeverity tags user text with a severity level from the keyword
// ladder. Used when the generation model omits a severity, and to keep
// severity sticky across follow-up requests in an already-elevated
// conversation.
func InferSeverity(text, contextSeverity string) string {
	lowered := strings.ToLower(text)

	// Follow-up asks inherit the conversation's elevated severity.
	for _, w := range []string{"tips", "suggestions", "advice", "help"} {
		if strings.Contains(lowered, w) {
			if contextSeverity == SeverityModerate || contextSeverity == SeverityHigh {
				return contextSeverity
			}
			break
		}
	}

	for _, w := range crisisWords {
		if strings.Contains(lowered, w) {
			return SeverityHigh
		}
	}
	for _, w := range highWords {
		if strings.Contains(lowered, w) {
			return SeverityHigh
		}
	}
	for _, w := range moderateWords {
		if strings.Contains(lowered, w) {
			return SeverityModerate
		}
	}
	return SeverityLow
}

var topicPatterns = []struct {
	keywords []string
	topic    string
}{
	{[]string{"stress", "stressed"}, "stress"},
	{[]string{"sleep", "insomnia"}, "sleep issues"},
	{[]string{"anxious", "anxiety"}, "anxiety"},
	{[]string{"work"}, "work stress"},
	{[]string{"tired", "fatigue"}, "fatigue"},
	{[]string{"sad", "depressed"}, "low mood"},
}

// InferTopic derives a coarse conversation topic from user text.
// Returns "" when nothing matches.
func InferTopic(text string) string {
	lowered := strings.ToLower(text)
	for _, p := range topicPatterns {
		for _, k := range p.keywords {
			if strings.Contains(lowered, k) {
				return p.topic
			}
		}
	}
	return ""
}
