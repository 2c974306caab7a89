package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

// fallbackCharsPerToken is the rough ratio used when no encoding is
// available: ~4 characters per token.
const fallbackCharsPerToken = 4

// Estimator produces approximate token counts for budget comparisons.
// Counts are deterministic and never shrink when text grows; they are not
// exact billing numbers.
type Estimator struct{}

func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	if enc := getTokenizer(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}

	n := len(text) / fallbackCharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateAll sums the estimates of each text span.
func (e *Estimator) EstimateAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += e.Estimate(t)
	}
	return total
}

// getTokenizer lazily loads cl100k_base. Loading can fail offline; the
// estimator then stays on the character heuristic instead of panicking.
func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return
		}
		tk = enc
	})
	return tk
}
