package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// GenInput carries the fully-assembled prompt for one generation call.
type GenInput struct {
	System string
	Prompt string
}

// GenResult is the structured output of the generation chain.
type GenResult struct {
	Text      string `json:"response_text"`
	Intent    string `json:"intent"`
	Severity  string `json:"severity"`
	Emotion   string `json:"emotion"`
	Sentiment string `json:"sentiment"`
}

// GenValid is the generation chain's validity predicate: a model that
// answers with blank text failed, regardless of transport success.
func GenValid(r GenResult) bool {
	return strings.TrimSpace(r.Text) != ""
}

// CalmingFallback is the generation chain's terminal static payload.
func CalmingFallback(GenInput) GenResult {
	return GenResult{
		Text:      "I'm here with you.",
		Intent:    "casual_chat",
		Severity:  "low",
		Emotion:   "neutral",
		Sentiment: "neutral",
	}
}

// ChatModel adapts one eino chat model into a generation tier.
type ChatModel struct {
	name  string
	model einoModel.ToolCallingChatModel
}

func NewChatModel(name string, model einoModel.ToolCallingChatModel) *ChatModel {
	return &ChatModel{name: name, model: model}
}

func (a *ChatModel) Name() string { return a.name }

func (a *ChatModel) Call(ctx context.Context, in GenInput) (GenResult, error) {
	msgs := []*schema.Message{}
	if in.System != "" {
		msgs = append(msgs, schema.SystemMessage(in.System))
	}
	msgs = append(msgs, schema.UserMessage(in.Prompt))

	out, err := a.model.Generate(ctx, msgs)
	if err != nil {
		return GenResult{}, fmt.Errorf("model %s generate: %w", a.name, err)
	}
	if out == nil {
		return GenResult{}, fmt.Errorf("model %s returned nil message", a.name)
	}

	return ParseGenResult(out.Content), nil
}

// ParseGenResult extracts a GenResult from raw model output. Models are
// prompted to answer in JSON but routinely wrap it in code fences or
// prose; anything that does not parse is treated as plain response
// text with default tags.
func ParseGenResult(raw string) GenResult {
	cleaned := stripCodeFence(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		var r GenResult
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &r); err == nil && strings.TrimSpace(r.Text) != "" {
			applyGenDefaults(&r)
			return r
		}
	}

	r := GenResult{Text: strings.TrimSpace(cleaned)}
	applyGenDefaults(&r)
	return r
}

func applyGenDefaults(r *GenResult) {
	if r.Intent == "" {
		r.Intent = "casual_chat"
	}
	if r.Severity == "" {
		r.Severity = "low"
	}
	if r.Emotion == "" {
		r.Emotion = "neutral"
	}
	if r.Sentiment == "" {
		r.Sentiment = "neutral"
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
