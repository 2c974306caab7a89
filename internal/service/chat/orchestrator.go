package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sandevgo/ragline/internal/config"
	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/internal/service/session"
	"github.com/sandevgo/ragline/pkg/log"
	"github.com/sandevgo/ragline/pkg/tokens"
)

// Retriever answers nearest-neighbour queries against a store directory.
type Retriever interface {
	Query(ctx context.Context, storeDir, text string, topK int) (core.Retrieval, error)
}

// ConversationSummarizer condenses history into a running summary.
type ConversationSummarizer interface {
	Summarize(ctx context.Context, priorSummary string, messages []core.Message) (string, error)
}

// Tagger extracts intent labels from a user message.
type Tagger interface {
	Tag(ctx context.Context, message string) ([]string, error)
}

// TokenEstimator is satisfied by pkg/tokens.Estimator.
type TokenEstimator interface {
	Estimate(text string) int
}

// TurnRequest is one submitted user turn. The boolean toggles are tri-state:
// nil falls back to the configured default.
type TurnRequest struct {
	SessionID     string
	Message       string
	StoreDir      string
	TopK          int
	EnableContext *bool
	EnableSummary *bool
	EnableIntents *bool
	SystemPrompt  string
}

// TurnStream is the in-flight assistant reply. Fragments arrive in model
// order and the channel closes when the reply is complete or the turn fails.
// Wait blocks until the turn is reconciled and reports the terminal error.
type TurnStream struct {
	SessionID string
	Fragments <-chan string

	done chan struct{}
	err  error
}

// Wait blocks until the turn has fully finished, including memory updates.
func (t *TurnStream) Wait() error {
	<-t.done
	return t.err
}

// Engine drives one turn at a time per session: budget check, optional
// compaction, best-effort retrieval, streaming completion, then reconcile.
type Engine struct {
	cfg          *config.AppConfig
	store        *session.Store
	model        core.ChatModel
	retriever    Retriever
	estimator    TokenEstimator
	summarizer   ConversationSummarizer
	tagger       Tagger
	systemPrompt string
}

func NewEngine(cfg *config.AppConfig, store *session.Store, model core.ChatModel, retriever Retriever) *Engine {
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Engine{
		cfg:          cfg,
		store:        store,
		model:        model,
		retriever:    retriever,
		estimator:    tokens.NewEstimator(),
		summarizer:   NewSummarizer(model),
		tagger:       NewIntentTagger(model),
		systemPrompt: systemPrompt,
	}
}

// Chat runs one turn. Validation failures are returned before any session
// state is touched; afterwards the turn owns the session's exclusive guard
// until it is reconciled or fails.
func (e *Engine) Chat(ctx context.Context, req TurnRequest) (*TurnStream, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", core.ErrValidation)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.TopK <= 0 {
		req.TopK = e.cfg.ContextTopK
	}

	release := e.store.Acquire(req.SessionID)
	snap := e.store.GetOrCreate(req.SessionID)

	storeDir := req.StoreDir
	if storeDir == "" {
		storeDir = snap.VectorStoreDir
	}

	retrieval := e.retrieve(ctx, req, snap, storeDir)

	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = e.systemPrompt
	}
	prompt := buildPrompt(snap, systemPrompt, retrieval.Context, req.Message)
	assembled := e.enforceBudget(ctx, snap, prompt, retrieval.Context, req.Message)

	fragments := make(chan string, 32)
	stream := &TurnStream{
		SessionID: req.SessionID,
		Fragments: fragments,
		done:      make(chan struct{}),
	}

	go func() {
		defer release()
		defer close(stream.done)

		stream.err = e.runTurn(ctx, req, assembled, retrieval, storeDir, fragments)
	}()

	return stream, nil
}

// retrieve is best-effort: any failure degrades the turn to no context.
func (e *Engine) retrieve(ctx context.Context, req TurnRequest, snap core.SessionSnapshot, storeDir string) core.Retrieval {
	if !flag(req.EnableContext, e.cfg.EnableContext) || storeDir == "" || e.retriever == nil {
		return core.Retrieval{}
	}

	retrieval, err := e.retriever.Query(ctx, storeDir, req.Message, req.TopK)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).
			Str("session_id", snap.SessionID).
			Str("store_dir", storeDir).
			Msg("retrieval failed, continuing without context")
		return core.Retrieval{}
	}
	return retrieval
}

// runTurn streams the completion and, once the stream drains cleanly,
// commits the turn. The model call runs on a disconnected context so a
// client that stops reading does not abort memory updates; the generated
// reply is persisted either way.
func (e *Engine) runTurn(ctx context.Context, req TurnRequest, assembled assembledPrompt, retrieval core.Retrieval, storeDir string, fragments chan<- string) error {
	defer close(fragments)

	serverCtx := context.WithoutCancel(ctx)

	var reply strings.Builder
	if assembled.compacted {
		reply.WriteString(truncationNotice)
		forward(ctx, fragments, truncationNotice)
	}

	err := e.model.Stream(serverCtx, assembled.messages, func(fragment string) {
		reply.WriteString(fragment)
		forward(ctx, fragments, fragment)
	})
	if err != nil {
		// No partial history is committed; the session is exactly as the
		// model last saw it.
		return fmt.Errorf("%w: %v", core.ErrModelCall, err)
	}

	e.store.CommitTurn(serverCtx, req.SessionID,
		core.Message{Role: core.RoleUser, Content: req.Message},
		core.Message{Role: core.RoleAssistant, Content: reply.String()},
	)
	e.store.SetRetrieval(serverCtx, req.SessionID, retrieval.Context, retrieval.Results, storeDir)

	if flag(req.EnableSummary, e.cfg.EnableSummary) {
		e.refreshSummary(serverCtx, req.SessionID)
	}
	if flag(req.EnableIntents, e.cfg.EnableIntents) {
		e.trackIntent(serverCtx, req.SessionID, req.Message)
	}
	return nil
}

// refreshSummary rolls the running summary forward over the committed
// history. A failure leaves the prior summary in place.
func (e *Engine) refreshSummary(ctx context.Context, sessionID string) {
	snap, err := e.store.Snapshot(sessionID)
	if err != nil {
		return
	}
	summary, err := e.summarizer.Summarize(ctx, snap.Summary, snap.Messages)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("failed to refresh summary")
		return
	}
	e.store.SetSummary(ctx, sessionID, summary)
}

// trackIntent tags the user message. A failure leaves intents untouched.
func (e *Engine) trackIntent(ctx context.Context, sessionID, message string) {
	intents, err := e.tagger.Tag(ctx, message)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("failed to capture intent")
		return
	}
	e.store.MergeIntents(ctx, sessionID, intents)
}

// History returns a read-only snapshot of one session.
func (e *Engine) History(sessionID string) (core.SessionSnapshot, error) {
	return e.store.Snapshot(sessionID)
}

// Sessions lists known sessions, most recently updated first.
func (e *Engine) Sessions() []core.SessionOverview {
	return e.store.List()
}

// forward delivers a fragment unless the caller has gone away.
func forward(ctx context.Context, fragments chan<- string, fragment string) {
	select {
	case fragments <- fragment:
	case <-ctx.Done():
	}
}

func flag(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}
