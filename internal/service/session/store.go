package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/pkg/log"
)

const displayedIntents = 3

// Store owns all per-session conversational state. The store-level lock only
// guards the session map; each session carries two locks of its own:
//
//   - turnMu serializes whole turns. The orchestrator holds it from request
//     validation until the turn is reconciled, so a second request for the
//     same session waits instead of interleaving.
//   - mu guards the state itself. Every mutation and Snapshot takes it
//     briefly, which keeps snapshot reads from blocking behind an in-flight
//     model stream.
//
// Sessions are created lazily on first reference and never deleted here.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	recorder   core.SessionRecorder
	maxHistory int
	now        func() time.Time
}

type entry struct {
	turnMu sync.Mutex
	mu     sync.Mutex
	state  core.SessionSnapshot
}

func NewStore(recorder core.SessionRecorder, maxHistory int) *Store {
	return &Store{
		sessions:   make(map[string]*entry),
		recorder:   recorder,
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

// Load restores persisted sessions. Called once at startup, before any turn.
func (s *Store) Load(ctx context.Context) error {
	if s.recorder == nil {
		return nil
	}

	snaps, err := s.recorder.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.sessions[snap.SessionID] = &entry{state: snap}
	}

	log.FromCtx(ctx).Info().Int("count", len(snaps)).Msg("restored sessions")
	return nil
}

// GetOrCreate returns a snapshot of the session, creating an empty one if
// the id is new.
func (s *Store) GetOrCreate(sessionID string) core.SessionSnapshot {
	e := s.getOrCreateEntry(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state)
}

// Acquire takes the session's exclusive turn guard and returns its release
// func. The session is created if it does not exist yet.
func (s *Store) Acquire(sessionID string) func() {
	e := s.getOrCreateEntry(sessionID)
	e.turnMu.Lock()
	return e.turnMu.Unlock
}

// AppendTurn appends a single message. Must be called under the session's
// turn guard.
func (s *Store) AppendTurn(ctx context.Context, sessionID, role, content string) {
	s.mutate(ctx, sessionID, func(st *core.SessionSnapshot) {
		st.Messages = append(st.Messages, core.Message{Role: role, Content: content})
		s.capHistory(st)
	})
}

// CommitTurn appends the user and assistant messages of one completed turn
// as a single atomic mutation, so no snapshot ever observes the user message
// without its reply.
func (s *Store) CommitTurn(ctx context.Context, sessionID string, user, assistant core.Message) {
	s.mutate(ctx, sessionID, func(st *core.SessionSnapshot) {
		st.Messages = append(st.Messages, user, assistant)
		s.capHistory(st)
	})
}

// SetRetrieval replaces the last retrieval state wholesale. The store
// directory is sticky: once a session is bound it stays bound.
func (s *Store) SetRetrieval(ctx context.Context, sessionID, contextText string, results []core.RetrievalResult, storeDir string) {
	s.mutate(ctx, sessionID, func(st *core.SessionSnapshot) {
		st.LastContext = contextText
		st.LastRetrievals = append([]core.RetrievalResult(nil), results...)
		if st.VectorStoreDir == "" {
			st.VectorStoreDir = storeDir
		}
	})
}

// MergeIntents adds labels not already present. Idempotent; existing labels
// keep their position.
func (s *Store) MergeIntents(ctx context.Context, sessionID string, intents []string) {
	if len(intents) == 0 {
		return
	}
	s.mutate(ctx, sessionID, func(st *core.SessionSnapshot) {
		seen := make(map[string]struct{}, len(st.Intents))
		for _, label := range st.Intents {
			seen[label] = struct{}{}
		}
		for _, label := range intents {
			if label == "" {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			st.Intents = append(st.Intents, label)
		}
	})
}

// SetSummary updates the running summary without touching history.
func (s *Store) SetSummary(ctx context.Context, sessionID, summary string) {
	s.mutate(ctx, sessionID, func(st *core.SessionSnapshot) {
		st.Summary = summary
	})
}

// ReplaceHistoryWithSummary drops the full message history in favour of the
// summary. Used when the token budget is exceeded; the policy is full
// replacement, no message tail is retained.
func (s *Store) ReplaceHistoryWithSummary(ctx context.Context, sessionID, summary string) {
	s.mutate(ctx, sessionID, func(st *core.SessionSnapshot) {
		st.Messages = nil
		st.Summary = summary
	})
}

// Snapshot returns a deep copy of the session state, or ErrSessionNotFound.
func (s *Store) Snapshot(sessionID string) (core.SessionSnapshot, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return core.SessionSnapshot{}, core.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state), nil
}

// List returns lightweight overviews of all known sessions, most recently
// updated first. Only the last few intents are included for display.
func (s *Store) List() []core.SessionOverview {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	overviews := make([]core.SessionOverview, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		st := e.state
		ov := core.SessionOverview{
			SessionID:      st.SessionID,
			MessageCount:   len(st.Messages),
			Summary:        st.Summary,
			VectorStoreDir: st.VectorStoreDir,
			UpdatedAt:      st.UpdatedAt,
		}
		if n := len(st.Messages); n > 0 {
			ov.LastMessage = st.Messages[n-1].Content
		}
		start := len(st.Intents) - displayedIntents
		if start < 0 {
			start = 0
		}
		ov.Intents = append([]string(nil), st.Intents[start:]...)
		e.mu.Unlock()

		overviews = append(overviews, ov)
	}

	sort.Slice(overviews, func(i, j int) bool {
		return overviews[i].UpdatedAt.After(overviews[j].UpdatedAt)
	})
	return overviews
}

func (s *Store) getOrCreateEntry(sessionID string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e
	}
	e = &entry{state: core.SessionSnapshot{SessionID: sessionID}}
	s.sessions[sessionID] = e
	return e
}

// mutate applies fn under the session's state lock, stamps updated_at and
// writes the new state through to the recorder. Persistence is best-effort:
// a failed write is logged, never surfaced to the turn.
func (s *Store) mutate(ctx context.Context, sessionID string, fn func(st *core.SessionSnapshot)) {
	e := s.getOrCreateEntry(sessionID)

	e.mu.Lock()
	fn(&e.state)
	e.state.UpdatedAt = s.now()
	snap := cloneState(e.state)
	e.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.Save(ctx, snap); err != nil {
			log.FromCtx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("failed to persist session")
		}
	}
}

func (s *Store) capHistory(st *core.SessionSnapshot) {
	if s.maxHistory > 0 && len(st.Messages) > s.maxHistory {
		st.Messages = append([]core.Message(nil), st.Messages[len(st.Messages)-s.maxHistory:]...)
	}
}

func cloneState(st core.SessionSnapshot) core.SessionSnapshot {
	out := st
	out.Messages = append([]core.Message(nil), st.Messages...)
	out.Intents = append([]string(nil), st.Intents...)
	out.LastRetrievals = append([]core.RetrievalResult(nil), st.LastRetrievals...)
	return out
}
