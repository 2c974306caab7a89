package core

import "time"

const (
	AppName          = "RagLine"
	AppUserAgent     = "RagLine-Chat/0.1"
	AppRepositoryURL = "https://github.com/sandevgo/ragline"
	AppVersion       = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetrievalResult is one nearest-neighbour hit from a vector store query.
type RetrievalResult struct {
	ID       int64          `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Retrieval bundles ranked results with their concatenated context block.
type Retrieval struct {
	Results []RetrievalResult `json:"results"`
	Context string            `json:"context"`
}

// SessionSnapshot is a point-in-time, caller-owned copy of session state.
type SessionSnapshot struct {
	SessionID      string            `json:"session_id"`
	Messages       []Message         `json:"messages"`
	Summary        string            `json:"summary"`
	Intents        []string          `json:"intents"`
	LastContext    string            `json:"last_context"`
	LastRetrievals []RetrievalResult `json:"last_retrievals"`
	VectorStoreDir string            `json:"vector_store_dir,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SessionOverview is the lightweight listing entry for session selection UIs.
type SessionOverview struct {
	SessionID      string    `json:"session_id"`
	LastMessage    string    `json:"last_message"`
	MessageCount   int       `json:"message_count"`
	Summary        string    `json:"summary"`
	Intents        []string  `json:"intents"`
	VectorStoreDir string    `json:"vector_store_dir,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
