package chat

import (
	"context"

	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/pkg/log"
)

// assembledPrompt is the ordered message list actually sent to the model for
// one turn, plus whether history was replaced by the running summary.
type assembledPrompt struct {
	messages  []core.Message
	compacted bool
}

// buildPrompt lays out the turn in the fixed order: system prompt, running
// summary, retrieved context, prior history, the new user message.
func buildPrompt(snap core.SessionSnapshot, systemPrompt, contextText, userMessage string) []core.Message {
	prompt := []core.Message{{Role: core.RoleSystem, Content: systemPrompt}}
	if snap.Summary != "" {
		prompt = append(prompt, core.Message{Role: core.RoleSystem, Content: summaryPrefix + snap.Summary})
	}
	if contextText != "" {
		prompt = append(prompt, core.Message{Role: core.RoleSystem, Content: contextPrefix + contextText})
	}
	prompt = append(prompt, snap.Messages...)
	prompt = append(prompt, core.Message{Role: core.RoleUser, Content: userMessage})
	return prompt
}

// enforceBudget checks the assembled prompt against the token ceiling and
// compacts when it overflows: the summarizer is run over the history, the
// session's messages are replaced by the summary, and the prompt is rebuilt
// from the system messages, summary and retrieved context included, plus
// the current user message only. Runs once; an oversized summary is left
// for the model service to reject.
func (e *Engine) enforceBudget(ctx context.Context, snap core.SessionSnapshot, prompt []core.Message, contextText, userMessage string) assembledPrompt {
	if e.cfg.MaxPromptTokens <= 0 {
		return assembledPrompt{messages: prompt}
	}

	total := 0
	for _, m := range prompt {
		total += e.estimator.Estimate(m.Content)
	}
	if total <= e.cfg.MaxPromptTokens {
		return assembledPrompt{messages: prompt}
	}

	logger := log.FromCtx(ctx)
	logger.Info().
		Str("session_id", snap.SessionID).
		Int("estimated_tokens", total).
		Int("ceiling", e.cfg.MaxPromptTokens).
		Msg("prompt over budget, compacting history")

	summary := snap.Summary
	updated, err := e.summarizer.Summarize(ctx, snap.Summary, append(snap.Messages, core.Message{Role: core.RoleUser, Content: userMessage}))
	if err != nil {
		// Prior summary, possibly empty, still substitutes for history in
		// the prompt; session state stays untouched so the next turn can
		// retry the compaction.
		logger.Error().Err(err).Str("session_id", snap.SessionID).Msg("summarization failed during compaction")
	} else {
		summary = updated
		e.store.ReplaceHistoryWithSummary(ctx, snap.SessionID, summary)
	}

	rebuilt := []core.Message{{Role: core.RoleSystem, Content: prompt[0].Content}}
	if summary != "" {
		rebuilt = append(rebuilt, core.Message{Role: core.RoleSystem, Content: summaryPrefix + summary})
	}
	if contextText != "" {
		rebuilt = append(rebuilt, core.Message{Role: core.RoleSystem, Content: contextPrefix + contextText})
	}
	rebuilt = append(rebuilt,
		core.Message{Role: core.RoleSystem, Content: compactionMarker},
		core.Message{Role: core.RoleUser, Content: userMessage},
	)
	return assembledPrompt{messages: rebuilt, compacted: true}
}
