package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/pkg/retry"
)

// IntentTagger derives a short verb-noun label from one user message.
type IntentTagger struct {
	model   core.ChatModel
	retrier *retry.Retrier
}

func NewIntentTagger(model core.ChatModel) *IntentTagger {
	return &IntentTagger{
		model:   model,
		retrier: retry.NewDefaultRetrier(),
	}
}

// Tag returns the intent labels for the message. Blank input yields no
// labels and no model call.
func (t *IntentTagger) Tag(ctx context.Context, message string) ([]string, error) {
	if strings.TrimSpace(message) == "" {
		return nil, nil
	}

	prompt := []core.Message{
		{Role: core.RoleSystem, Content: intentPrompt},
		{Role: core.RoleUser, Content: message},
	}

	var intent string
	err := t.retrier.Do(ctx, func() error {
		var err error
		intent, err = t.model.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrIntent, err)
	}

	intent = strings.TrimSpace(intent)
	if intent == "" {
		return nil, nil
	}
	return []string{intent}, nil
}
