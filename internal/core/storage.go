package core

import "context"

// SessionRecorder persists session state so memory survives restarts.
// Save replaces the stored snapshot wholesale; history is capped upstream so
// a full rewrite per turn stays small.
type SessionRecorder interface {
	Save(ctx context.Context, snap SessionSnapshot) error
	Load(ctx context.Context) ([]SessionSnapshot, error)
}
