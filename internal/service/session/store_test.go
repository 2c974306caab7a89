package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/ragline/internal/core"
)

type fakeRecorder struct {
	mu    sync.Mutex
	saves []core.SessionSnapshot
	err   error
}

func (r *fakeRecorder) Save(ctx context.Context, snap core.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves = append(r.saves, snap)
	return nil
}

func (r *fakeRecorder) Load(ctx context.Context) ([]core.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves, nil
}

func TestStore_GetOrCreate(t *testing.T) {
	s := NewStore(nil, 20)

	snap := s.GetOrCreate("s1")
	if snap.SessionID != "s1" {
		t.Errorf("session id = %q, want s1", snap.SessionID)
	}
	if len(snap.Messages) != 0 || snap.Summary != "" || snap.VectorStoreDir != "" {
		t.Errorf("new session not empty: %+v", snap)
	}

	s.CommitTurn(context.Background(), "s1",
		core.Message{Role: core.RoleUser, Content: "hi"},
		core.Message{Role: core.RoleAssistant, Content: "hello"},
	)

	again := s.GetOrCreate("s1")
	if len(again.Messages) != 2 {
		t.Errorf("GetOrCreate lost state: %d messages, want 2", len(again.Messages))
	}
}

func TestStore_AppendTurn(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 2)

	s.AppendTurn(ctx, "s1", core.RoleUser, "q1")
	s.AppendTurn(ctx, "s1", core.RoleAssistant, "a1")
	s.AppendTurn(ctx, "s1", core.RoleUser, "q2")

	snap, _ := s.Snapshot("s1")
	if len(snap.Messages) != 2 {
		t.Fatalf("messages = %d, want history capped at 2", len(snap.Messages))
	}
	if snap.Messages[0].Content != "a1" || snap.Messages[1].Content != "q2" {
		t.Errorf("kept messages = %+v, want the newest two", snap.Messages)
	}
}

func TestStore_CommitTurn_PairsInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	const turns = 5
	for i := 0; i < turns; i++ {
		s.CommitTurn(ctx, "s1",
			core.Message{Role: core.RoleUser, Content: fmt.Sprintf("q%d", i)},
			core.Message{Role: core.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}

	snap, err := s.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Messages) != 2*turns {
		t.Fatalf("messages = %d, want %d", len(snap.Messages), 2*turns)
	}
	for i := 0; i < turns; i++ {
		if snap.Messages[2*i].Content != fmt.Sprintf("q%d", i) {
			t.Errorf("message %d = %q, want q%d", 2*i, snap.Messages[2*i].Content, i)
		}
		if snap.Messages[2*i+1].Content != fmt.Sprintf("a%d", i) {
			t.Errorf("message %d = %q, want a%d", 2*i+1, snap.Messages[2*i+1].Content, i)
		}
	}
}

func TestStore_HistoryCap(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 4)

	for i := 0; i < 5; i++ {
		s.CommitTurn(ctx, "s1",
			core.Message{Role: core.RoleUser, Content: fmt.Sprintf("q%d", i)},
			core.Message{Role: core.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}

	snap, _ := s.Snapshot("s1")
	if len(snap.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(snap.Messages))
	}
	if snap.Messages[0].Content != "q3" {
		t.Errorf("oldest kept message = %q, want q3", snap.Messages[0].Content)
	}
}

func TestStore_MergeIntents(t *testing.T) {
	tests := []struct {
		name   string
		merges [][]string
		want   []string
	}{
		{
			name:   "new_labels_appended",
			merges: [][]string{{"ask question"}, {"request deployment steps"}},
			want:   []string{"ask question", "request deployment steps"},
		},
		{
			name:   "idempotent",
			merges: [][]string{{"reset password", "ask question"}, {"reset password", "ask question"}},
			want:   []string{"reset password", "ask question"},
		},
		{
			name:   "duplicates_collapsed_within_one_merge",
			merges: [][]string{{"a", "a", "b"}},
			want:   []string{"a", "b"},
		},
		{
			name:   "empty_labels_skipped",
			merges: [][]string{{"", "a"}, nil},
			want:   []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil, 0)
			for _, m := range tt.merges {
				s.MergeIntents(context.Background(), "s1", m)
			}
			snap, _ := s.Snapshot("s1")
			if len(snap.Intents) != len(tt.want) {
				t.Fatalf("intents = %v, want %v", snap.Intents, tt.want)
			}
			for i, label := range tt.want {
				if snap.Intents[i] != label {
					t.Errorf("intent %d = %q, want %q", i, snap.Intents[i], label)
				}
			}
		})
	}
}

func TestStore_SetRetrieval_StickyStoreDir(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	s.SetRetrieval(ctx, "s1", "ctx one", []core.RetrievalResult{{ID: 1, Score: 0.9, Text: "chunk"}}, "/stores/kb")
	s.SetRetrieval(ctx, "s1", "ctx two", nil, "/stores/other")

	snap, _ := s.Snapshot("s1")
	if snap.VectorStoreDir != "/stores/kb" {
		t.Errorf("store dir = %q, want /stores/kb (sticky)", snap.VectorStoreDir)
	}
	if snap.LastContext != "ctx two" {
		t.Errorf("last context = %q, want ctx two", snap.LastContext)
	}
	if len(snap.LastRetrievals) != 0 {
		t.Errorf("retrievals not replaced wholesale: %v", snap.LastRetrievals)
	}
}

func TestStore_ReplaceHistoryWithSummary(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	s.CommitTurn(ctx, "s1",
		core.Message{Role: core.RoleUser, Content: "a long conversation"},
		core.Message{Role: core.RoleAssistant, Content: "indeed"},
	)
	s.ReplaceHistoryWithSummary(ctx, "s1", "the user discussed deployments")

	snap, _ := s.Snapshot("s1")
	if len(snap.Messages) != 0 {
		t.Errorf("messages = %d, want 0 after compaction", len(snap.Messages))
	}
	if snap.Summary != "the user discussed deployments" {
		t.Errorf("summary = %q", snap.Summary)
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore(nil, 0)

	if _, err := s.Snapshot("missing"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}

	ctx := context.Background()
	s.CommitTurn(ctx, "s1",
		core.Message{Role: core.RoleUser, Content: "q"},
		core.Message{Role: core.RoleAssistant, Content: "a"},
	)
	s.MergeIntents(ctx, "s1", []string{"ask question"})

	snap, err := s.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// Mutating the copy must not reach the store.
	snap.Messages[0].Content = "tampered"
	snap.Intents[0] = "tampered"

	fresh, _ := s.Snapshot("s1")
	if fresh.Messages[0].Content != "q" || fresh.Intents[0] != "ask question" {
		t.Error("snapshot is not a deep copy")
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	s.CommitTurn(ctx, "old",
		core.Message{Role: core.RoleUser, Content: "first"},
		core.Message{Role: core.RoleAssistant, Content: "reply"},
	)
	s.MergeIntents(ctx, "old", []string{"i1", "i2", "i3", "i4"})
	s.CommitTurn(ctx, "new",
		core.Message{Role: core.RoleUser, Content: "second"},
		core.Message{Role: core.RoleAssistant, Content: "latest reply"},
	)

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("list = %d entries, want 2", len(got))
	}
	if got[0].SessionID != "new" {
		t.Errorf("first entry = %q, want most recently updated", got[0].SessionID)
	}
	if got[0].LastMessage != "latest reply" {
		t.Errorf("last message = %q", got[0].LastMessage)
	}
	if got[0].MessageCount != 2 {
		t.Errorf("message count = %d, want 2", got[0].MessageCount)
	}
	if len(got[1].Intents) != 3 || got[1].Intents[0] != "i2" {
		t.Errorf("intents = %v, want last three", got[1].Intents)
	}
}

func TestStore_AcquireSerializesTurns(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	const workers = 8
	var wg sync.WaitGroup
	inFlight := 0
	var observed bool
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := s.Acquire("s1")
			defer release()

			mu.Lock()
			inFlight++
			if inFlight > 1 {
				observed = true
			}
			mu.Unlock()

			s.CommitTurn(ctx, "s1",
				core.Message{Role: core.RoleUser, Content: fmt.Sprintf("q%d", i)},
				core.Message{Role: core.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
			)

			mu.Lock()
			inFlight--
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if observed {
		t.Error("two turns ran concurrently for the same session")
	}
	snap, _ := s.Snapshot("s1")
	if len(snap.Messages) != 2*workers {
		t.Errorf("messages = %d, want %d", len(snap.Messages), 2*workers)
	}
	for i := 0; i < workers; i++ {
		if snap.Messages[2*i].Role != core.RoleUser || snap.Messages[2*i+1].Role != core.RoleAssistant {
			t.Fatalf("interleaved turn at pair %d", i)
		}
	}
}

func TestStore_IndependentSessionsDoNotBlock(t *testing.T) {
	s := NewStore(nil, 0)

	release := s.Acquire("busy")
	defer release()

	done := make(chan struct{})
	go func() {
		other := s.Acquire("idle")
		other()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring an unrelated session blocked behind another session's turn")
	}
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	s := NewStore(rec, 0)

	s.CommitTurn(ctx, "s1",
		core.Message{Role: core.RoleUser, Content: "q"},
		core.Message{Role: core.RoleAssistant, Content: "a"},
	)

	rec.mu.Lock()
	saves := len(rec.saves)
	rec.mu.Unlock()
	if saves != 1 {
		t.Fatalf("saves = %d, want 1", saves)
	}

	// A failing recorder must not lose the in-memory mutation.
	rec.mu.Lock()
	rec.err = errors.New("disk full")
	rec.mu.Unlock()

	s.CommitTurn(ctx, "s1",
		core.Message{Role: core.RoleUser, Content: "q2"},
		core.Message{Role: core.RoleAssistant, Content: "a2"},
	)
	snap, _ := s.Snapshot("s1")
	if len(snap.Messages) != 4 {
		t.Errorf("messages = %d, want 4 despite recorder failure", len(snap.Messages))
	}
}

func TestStore_LoadRestoresSessions(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}

	first := NewStore(rec, 0)
	first.CommitTurn(ctx, "s1",
		core.Message{Role: core.RoleUser, Content: "q"},
		core.Message{Role: core.RoleAssistant, Content: "a"},
	)

	second := NewStore(rec, 0)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap, err := second.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot after load: %v", err)
	}
	if len(snap.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(snap.Messages))
	}
}
