package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/pkg/retry"
)

// Summarizer condenses a conversation into a short running summary by
// asking the model for a non-streaming completion.
type Summarizer struct {
	model   core.ChatModel
	retrier *retry.Retrier
}

func NewSummarizer(model core.ChatModel) *Summarizer {
	return &Summarizer{
		model:   model,
		retrier: retry.NewDefaultRetrier(),
	}
}

// Summarize returns a fresh summary of the given history. The prior summary
// is included so long-running sessions keep earlier compacted content.
func (s *Summarizer) Summarize(ctx context.Context, priorSummary string, messages []core.Message) (string, error) {
	var body strings.Builder
	if priorSummary != "" {
		body.WriteString("Earlier summary: ")
		body.WriteString(priorSummary)
		body.WriteString("\n")
	}
	body.WriteString(messagesAsText(messages))

	prompt := []core.Message{
		{Role: core.RoleSystem, Content: summarizePrompt},
		{Role: core.RoleUser, Content: body.String()},
	}

	var summary string
	err := s.retrier.Do(ctx, func() error {
		var err error
		summary, err = s.model.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrSummarization, err)
	}
	return strings.TrimSpace(summary), nil
}

func messagesAsText(messages []core.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Role+": "+m.Content)
	}
	return strings.Join(parts, "\n")
}
