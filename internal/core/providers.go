package core

import "context"

// ChatModel is the external completion service. Stream calls emit for every
// text fragment in arrival order and returns once the stream is drained.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message, emit func(fragment string)) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the retrieval backend behind one loaded store directory.
type VectorSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]RetrievalResult, error)
	Close() error
}
