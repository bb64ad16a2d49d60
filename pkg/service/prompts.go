package service

import (
	"fmt"
	"strings"

	"github.com/havenai/haven/pkg/safety"
)

const advisorPersona = `You are Haven, a supportive health companion. You listen, reflect, and offer general wellness guidance. You never diagnose conditions and never give medication dosages. Keep responses warm, concise, and grounded. If the user is in danger, tell them to contact local emergency services.`

const analysisInstruction = `Respond ONLY with a JSON object of the form {"response_text": "...", "intent": "...", "severity": "low|moderate|high", "emotion": "...", "sentiment": "positive|neutral|negative"}. response_text is what you say to the user.`

const maxAttachmentChars = 2000

// BuildGeneralPrompt assembles the conversation prompt: condensed
// digest, sliding window transcript, then the current message.
func BuildGeneralPrompt(blob ContextBlob, userText string) (system, prompt string) {
	var b strings.Builder
	if blob.Condensed != "" {
		b.WriteString(blob.Condensed)
		b.WriteString("\n\n")
	}
	if len(blob.Window) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range blob.Window {
			speaker := "User"
			if t.Author == "assistant" {
				speaker = "Haven"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User says: %s\n\n%s", userText, analysisInstruction)
	return advisorPersona, b.String()
}

// BuildDocumentPrompt grounds the reply in extracted document text.
// Used both for the initial summary and document follow-ups.
func BuildDocumentPrompt(blob ContextBlob, docText, userText string) (system, prompt string) {
	var b strings.Builder
	b.WriteString("The user shared a health document. Extracted content:\n")
	b.WriteString(truncate(docText, maxAttachmentChars))
	b.WriteString("\n\n")
	if userText != "" {
		fmt.Fprintf(&b, "User says: %s\n", userText)
	} else {
		b.WriteString("Summarize the document for the user in plain language, flagging anything they should discuss with a professional.\n")
	}
	b.WriteString("\n")
	b.WriteString(analysisInstruction)
	return advisorPersona, b.String()
}

// BuildDocTermPrompt answers terminology questions about a live
// document in definition style, without interpreting the user's own
// values.
func BuildDocTermPrompt(docText, userText string) (system, prompt string) {
	var b strings.Builder
	b.WriteString("The user is asking about terminology from a health document they shared. Relevant content:\n")
	b.WriteString(truncate(docText, maxAttachmentChars))
	b.WriteString("\n\nExplain the term or concept in plain, educational language. Define, don't interpret their personal results, and don't diagnose.\n\n")
	fmt.Fprintf(&b, "User says: %s\n\n%s", userText, analysisInstruction)
	return advisorPersona, b.String()
}

// BuildEducationalPrompt explains a prior image classification result
// without re-running the classifier.
func BuildEducationalPrompt(risk, imageType, userText string) (system, prompt string) {
	var b strings.Builder
	fmt.Fprintf(&b, "The user previously shared a %s image. A screening model rated it %q. Do NOT diagnose; explain in general educational terms what such a rating can and cannot mean, and encourage professional follow-up.\n\n", imageType, risk)
	fmt.Fprintf(&b, "User says: %s\n\n%s", userText, analysisInstruction)
	return advisorPersona, b.String()
}

// NormalizeVoiceText rewrites a reply for speech: strips markdown
// artifacts, caps length, and appends a severity-matched closing line.
func NormalizeVoiceText(text, severity string) string {
	out := strings.NewReplacer("*", "", "#", "", "`", "", "_", " ").Replace(text)
	out = strings.Join(strings.Fields(out), " ")

	if len(out) > 200 {
		cut := out[:200]
		if idx := strings.LastIndexAny(cut, ".!?"); idx > 80 {
			out = cut[:idx+1]
		} else {
			out = strings.TrimRight(cut, " ,;") + "."
		}
	}

	ending := voiceEnding(severity)
	if ending != "" && !strings.Contains(out, ending) {
		out = strings.TrimSpace(out) + " " + ending
	}
	return out
}

func voiceEnding(severity string) string {
	switch severity {
	case safety.SeverityHigh:
		return "You don't have to go through this alone."
	case safety.SeverityModerate:
		return "You're doing the best you can."
	case safety.SeverityLow:
		return "That makes sense."
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
