package adapters

import (
	"context"
	"fmt"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RawChatModel is a generation tier that returns the model output
// verbatim. Used where the caller owns parsing, e.g. the session
// summarizer.
type RawChatModel struct {
	name  string
	model einoModel.ToolCallingChatModel
}

func NewRawChatModel(name string, model einoModel.ToolCallingChatModel) *RawChatModel {
	return &RawChatModel{name: name, model: model}
}

func (a *RawChatModel) Name() string { return a.name }

func (a *RawChatModel) Call(ctx context.Context, in GenInput) (string, error) {
	msgs := []*schema.Message{}
	if in.System != "" {
		msgs = append(msgs, schema.SystemMessage(in.System))
	}
	msgs = append(msgs, schema.UserMessage(in.Prompt))

	out, err := a.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("model %s generate: %w", a.name, err)
	}
	if out == nil {
		return "", fmt.Errorf("model %s returned nil message", a.name)
	}
	return out.Content, nil
}

// RawValid rejects blank output.
func RawValid(s string) bool {
	return strings.TrimSpace(s) != ""
}

// EmptyFallback is the terminal static payload for raw chains; callers
// treat a static serve as "no model output".
func EmptyFallback(GenInput) string { return "" }
