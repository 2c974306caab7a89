package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/ragline/internal/core"
)

// SessionsRepo persists session snapshots. Save rewrites the session row and
// its messages in one transaction; history is capped upstream, so a full
// rewrite per turn stays a handful of rows.
type SessionsRepo struct {
	db *sql.DB
}

func NewSessionsRepo(db *sql.DB) *SessionsRepo {
	return &SessionsRepo{db: db}
}

func (r *SessionsRepo) Save(ctx context.Context, snap core.SessionSnapshot) error {
	intentsJSON, err := json.Marshal(snap.Intents)
	if err != nil {
		return fmt.Errorf("failed to marshal intents: %w", err)
	}
	retrievalsJSON, err := json.Marshal(snap.LastRetrievals)
	if err != nil {
		return fmt.Errorf("failed to marshal retrievals: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, summary, intents, last_context, last_retrievals, vector_store_dir, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			summary = excluded.summary,
			intents = excluded.intents,
			last_context = excluded.last_context,
			last_retrievals = excluded.last_retrievals,
			vector_store_dir = excluded.vector_store_dir,
			updated_at = excluded.updated_at`,
		snap.SessionID, snap.Summary, string(intentsJSON), snap.LastContext,
		string(retrievalsJSON), snap.VectorStoreDir, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, snap.SessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	for _, msg := range snap.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
			snap.SessionID, msg.Role, msg.Content,
		); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

func (r *SessionsRepo) Load(ctx context.Context) ([]core.SessionSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, summary, intents, last_context, last_retrievals, vector_store_dir, updated_at
		FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var snaps []core.SessionSnapshot
	for rows.Next() {
		var snap core.SessionSnapshot
		var intentsJSON, retrievalsJSON string
		if err := rows.Scan(&snap.SessionID, &snap.Summary, &intentsJSON, &snap.LastContext,
			&retrievalsJSON, &snap.VectorStoreDir, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(intentsJSON), &snap.Intents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intents: %w", err)
		}
		if err := json.Unmarshal([]byte(retrievalsJSON), &snap.LastRetrievals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retrievals: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		msgs, err := r.loadMessages(ctx, snaps[i].SessionID)
		if err != nil {
			return nil, err
		}
		snaps[i].Messages = msgs
	}

	return snaps, nil
}

func (r *SessionsRepo) loadMessages(ctx context.Context, sessionID string) ([]core.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		var content sql.NullString
		if err := rows.Scan(&msg.Role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Content = content.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
