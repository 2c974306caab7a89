package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sandevgo/ragline/internal/core"
)

const indexFileName = "index.db"

// Store is an in-memory copy of one persisted vector index. Chunks are
// loaded eagerly at open time so queries never touch the filesystem.
type Store struct {
	embedder core.Embedder
	chunks   []chunk
	dim      int
}

type chunk struct {
	id       int64
	text     string
	metadata map[string]any
	vector   []float32
}

// Open reads every chunk from <dir>/index.db into memory and closes the
// database before returning. A missing or unreadable index is an error,
// an empty one is not.
func Open(ctx context.Context, embedder core.Embedder, dir string) (*Store, error) {
	path := filepath.Join(dir, indexFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("vector store %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, text, metadata, embedding FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	defer rows.Close()

	s := &Store{embedder: embedder}
	for rows.Next() {
		var (
			c        chunk
			metaJSON sql.NullString
			blob     []byte
		)
		if err := rows.Scan(&c.id, &c.text, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &c.metadata); err != nil {
				return nil, fmt.Errorf("chunk %d metadata: %w", c.id, err)
			}
		}
		c.vector, err = deserializeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d embedding: %w", c.id, err)
		}
		if s.dim == 0 {
			s.dim = len(c.vector)
		} else if len(c.vector) != s.dim {
			return nil, fmt.Errorf("chunk %d dimension %d, index dimension %d", c.id, len(c.vector), s.dim)
		}
		s.chunks = append(s.chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return s, nil
}

// Search embeds the query and returns the topK most similar chunks by
// cosine similarity, best first. An empty index yields empty results.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]core.RetrievalResult, error) {
	if len(s.chunks) == 0 {
		return nil, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qvec) != s.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(qvec), s.dim)
	}

	results := make([]core.RetrievalResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		results = append(results, core.RetrievalResult{
			ID:       c.id,
			Score:    cosineSimilarity(qvec, c.vector),
			Text:     c.text,
			Metadata: c.metadata,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Close releases nothing today; chunks live in memory after Open. Kept
// so callers can treat stores uniformly with handle-backed searchers.
func (s *Store) Close() error {
	return nil
}

// BuildContext joins retrieved chunk texts into a single prompt block.
func BuildContext(results []core.RetrievalResult) string {
	var buf bytes.Buffer
	for i, r := range results {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(r.Text)
	}
	return buf.String()
}

// deserializeVector decodes a LittleEndian float32 BLOB, the same layout
// sqlite-vec uses for embedding columns.
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a float32 sequence", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil, fmt.Errorf("failed to deserialize vector: %w", err)
	}
	return vec, nil
}

func serializeVector(vec []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to serialize vector: %w", err)
	}
	return buf.Bytes(), nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
