package retriever

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Scorer ranks chunks against a query. Scores are bounded to [0,1];
// higher means more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, chunks []string) ([]float64, error)
}

var wordRe = regexp.MustCompile(`\w+`)

// tokenize lowercases text and returns its word set.
func tokenize(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		terms[w] = struct{}{}
	}
	return terms
}

// LexicalScorer scores by shared vocabulary: the count of query terms
// present in a chunk, normalized by the query term count. It is the
// mandatory baseline strategy and never fails.
type LexicalScorer struct{}

// Score implements Scorer.
func (LexicalScorer) Score(_ context.Context, query string, chunks []string) ([]float64, error) {
	queryTerms := tokenize(query)
	denom := len(queryTerms)
	if denom == 0 {
		denom = 1
	}

	scores := make([]float64, len(chunks))
	for i, chunk := range chunks {
		chunkTerms := tokenize(chunk)
		overlap := 0
		for t := range queryTerms {
			if _, ok := chunkTerms[t]; ok {
				overlap++
			}
		}
		scores[i] = float64(overlap) / float64(denom)
	}
	return scores, nil
}

// ChunkScore is one similarity result from a vector index.
type ChunkScore struct {
	ChunkIndex int
	Score      float64
}

// VectorClient is an optional precomputed similarity index over a
// document's chunks.
type VectorClient interface {
	Query(ctx context.Context, text string, topK int) ([]ChunkScore, error)
}

// EmbeddingScorer scores via a vector index. Each Score call is one
// metered upstream query, so it consults the budget gate first; a
// denial or any client failure makes the caller fall back to lexical
// scoring.
type EmbeddingScorer struct {
	Client VectorClient
	Gate   func(api string) bool
}

// ErrRateLimited is returned when a daily API budget is exhausted.
var ErrRateLimited = errors.New("daily rate limit exceeded")

// Score implements Scorer. Chunks absent from the top-K response score zero.
func (s *EmbeddingScorer) Score(ctx context.Context, query string, chunks []string) ([]float64, error) {
	if s.Gate != nil && !s.Gate("search") {
		return nil, ErrRateLimited
	}

	results, err := s.Client.Query(ctx, query, len(chunks))
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	scores := make([]float64, len(chunks))
	for _, r := range results {
		if r.ChunkIndex < 0 || r.ChunkIndex >= len(chunks) {
			continue
		}
		scores[r.ChunkIndex] = clamp01(r.Score)
	}
	return scores, nil
}

// clamp01 bounds a raw similarity into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
