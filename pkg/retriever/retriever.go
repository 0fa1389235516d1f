// Package retriever selects relevant passages from the document library
// to ground LLM prompts. Retrieval is tiered: a precomputed vector
// index when one is configured, lexical overlap otherwise, with an
// optional LLM re-ranking pass over large lexical candidate sets.
// Every upstream call is budget-gated; every degraded tier still
// returns a structured result.
package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/finlens-ai/finlens/pkg/library"
	"github.com/finlens-ai/finlens/pkg/llm"
	"github.com/finlens-ai/finlens/pkg/models"
)

// apiLLM is the budget gate identifier for the completion API.
const apiLLM = "llm"

// lexicalRationale annotates passages served by the deterministic
// fallback when an LLM re-ranking response could not be used.
const lexicalRationale = "selected by keyword overlap"

// noInsightText is returned when retrieval finds nothing; no budget is
// spent on an empty-context prompt.
const noInsightText = "No relevant insights found in the available documents."

// BudgetCache is the slice of the budget cache the retriever needs.
type BudgetCache interface {
	Get(key string) ([]byte, bool)
	SetDefault(key string, payload []byte)
	TrackAPICall(api string) bool
}

// KeyFunc derives a cache key from request parts.
type KeyFunc func(parts ...string) string

// Option configures a Retriever.
type Option func(*Retriever)

// WithVectorScorer sets the optional similarity-index scoring strategy.
func WithVectorScorer(s Scorer) Option {
	return func(r *Retriever) { r.scorer = s }
}

// WithCompleter sets the LLM client used for re-ranking and insights.
func WithCompleter(c llm.Completer) Option {
	return func(r *Retriever) { r.completer = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.log = l }
}

// WithMaxChunkLength bounds chunk size in characters.
func WithMaxChunkLength(n int) Option {
	return func(r *Retriever) { r.maxChunkLen = n }
}

// WithMaxPassages sets the default passage count per query.
func WithMaxPassages(n int) Option {
	return func(r *Retriever) { r.maxPassages = n }
}

// WithRerankThreshold sets the minimum chunk count before the lexical
// tier asks the LLM to re-rank candidates.
func WithRerankThreshold(n int) Option {
	return func(r *Retriever) { r.rerankThreshold = n }
}

// Retriever answers passage queries against the document library.
type Retriever struct {
	cache     BudgetCache
	keyFn     KeyFunc
	lib       *library.Library
	scorer    Scorer
	completer llm.Completer
	log       *slog.Logger

	maxChunkLen     int
	maxPassages     int
	rerankThreshold int
}

// New creates a Retriever. cache and keyFn come from the budget cache;
// scoring defaults to lexical only.
func New(cache BudgetCache, keyFn KeyFunc, lib *library.Library, opts ...Option) *Retriever {
	r := &Retriever{
		cache:           cache,
		keyFn:           keyFn,
		lib:             lib,
		log:             slog.Default(),
		maxChunkLen:     500,
		maxPassages:     3,
		rerankThreshold: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// normalizeQuery lowercases and collapses whitespace so equivalent
// queries share a cache entry.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// ExtractPassages returns the maxPassages most relevant passages of one
// document. A cache hit makes zero upstream calls; a miss makes at most
// one embedding call and one LLM call. Missing documents and exhausted
// budgets degrade to fewer (or zero) passages, never an error.
func (r *Retriever) ExtractPassages(ctx context.Context, docID, query string, maxPassages int) []models.Passage {
	if maxPassages <= 0 {
		maxPassages = r.maxPassages
	}

	key := r.keyFn("passages", docID, normalizeQuery(query), strconv.Itoa(maxPassages))
	if payload, ok := r.cache.Get(key); ok {
		var passages []models.Passage
		if err := json.Unmarshal(payload, &passages); err == nil {
			return passages
		}
		r.log.Warn("corrupt passage cache entry", "doc", docID)
	}

	chunks, ok := r.chunksFor(docID)
	if !ok {
		return nil
	}

	var passages []models.Passage
	if r.scorer != nil {
		var err error
		passages, err = r.vectorSelect(ctx, docID, query, chunks, maxPassages)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				r.log.Info("search budget exhausted, falling back to lexical scoring", "doc", docID)
			} else {
				r.log.Warn("vector scoring failed, falling back to lexical scoring", "doc", docID, "error", err)
			}
			passages = nil
		}
	}
	if passages == nil {
		passages = r.lexicalSelect(ctx, docID, query, chunks, maxPassages)
	}

	if payload, err := json.Marshal(passages); err == nil {
		r.cache.SetDefault(key, payload)
	}
	return passages
}

// chunksFor returns the chunk set for a document, building and caching
// it under the document's content fingerprint so edits invalidate it.
func (r *Retriever) chunksFor(docID string) ([]string, bool) {
	content, fp, err := r.lib.Load(docID)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			r.log.Info("document not found", "doc", docID)
		} else {
			r.log.Warn("document load failed", "doc", docID, "error", err)
		}
		return nil, false
	}

	key := r.keyFn("chunks", docID, fp, strconv.Itoa(r.maxChunkLen))
	if payload, ok := r.cache.Get(key); ok {
		var chunks []string
		if err := json.Unmarshal(payload, &chunks); err == nil && len(chunks) > 0 {
			return chunks, true
		}
	}

	chunks := SplitChunks(content, r.maxChunkLen)
	if len(chunks) == 0 {
		return nil, false
	}
	if payload, err := json.Marshal(chunks); err == nil {
		r.cache.SetDefault(key, payload)
	}
	return chunks, true
}

// rankDesc returns chunk indices ordered by descending score, original
// order preserved among ties.
func rankDesc(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// vectorSelect ranks all chunks via the similarity index, keeps the top
// 2*maxPassages as candidates, and returns the top maxPassages.
func (r *Retriever) vectorSelect(ctx context.Context, docID, query string, chunks []string, maxPassages int) ([]models.Passage, error) {
	scores, err := r.scorer.Score(ctx, query, chunks)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(chunks) {
		return nil, fmt.Errorf("scorer returned %d scores for %d chunks", len(scores), len(chunks))
	}

	order := rankDesc(scores)
	candidates := order[:min(2*maxPassages, len(order))]
	selected := candidates[:min(maxPassages, len(candidates))]

	passages := make([]models.Passage, 0, len(selected))
	for _, idx := range selected {
		passages = append(passages, models.Passage{
			DocumentID: docID,
			ChunkIndex: idx,
			Text:       chunks[idx],
			Score:      scores[idx],
		})
	}
	return passages, nil
}

// lexicalSelect ranks chunks by term overlap and, for large chunk sets,
// offers the candidates to the LLM for re-ranking. Budget denial or a
// missing completer keeps the plain lexical ranking.
func (r *Retriever) lexicalSelect(ctx context.Context, docID, query string, chunks []string, maxPassages int) []models.Passage {
	scores, _ := LexicalScorer{}.Score(ctx, query, chunks)
	order := rankDesc(scores)
	candidates := order[:min(2*maxPassages, len(order))]

	if r.completer != nil && len(chunks) >= r.rerankThreshold && len(candidates) > maxPassages {
		if r.cache.TrackAPICall(apiLLM) {
			return r.rerank(ctx, docID, query, chunks, scores, candidates, maxPassages)
		}
		r.log.Warn("llm budget exhausted, skipping re-ranking", "doc", docID)
	}

	selected := candidates[:min(maxPassages, len(candidates))]
	passages := make([]models.Passage, 0, len(selected))
	for _, idx := range selected {
		passages = append(passages, models.Passage{
			DocumentID: docID,
			ChunkIndex: idx,
			Text:       chunks[idx],
			Score:      scores[idx],
		})
	}
	return passages
}

// rerank issues the single re-ranking request. Any failure (transport,
// unparseable response, all indices out of range) falls back to the
// top lexical candidates with a generic relevance note.
func (r *Retriever) rerank(ctx context.Context, docID, query string, chunks []string, scores []float64, candidates []int, maxPassages int) []models.Passage {
	texts := make([]string, len(candidates))
	for i, idx := range candidates {
		texts[i] = chunks[idx]
	}

	resp, err := r.completer.Complete(ctx, models.CompletionRequest{
		Messages: []models.ChatMessage{
			{Role: "user", Content: buildRerankPrompt(query, texts, maxPassages)},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		r.log.Warn("re-ranking request failed", "doc", docID, "error", err)
		return r.lexicalFallback(docID, chunks, scores, candidates, maxPassages)
	}

	selections, ok := parseRerank(resp.Content, len(candidates))
	if !ok {
		r.log.Warn("unparseable re-ranking response", "doc", docID)
		return r.lexicalFallback(docID, chunks, scores, candidates, maxPassages)
	}

	if len(selections) > maxPassages {
		selections = selections[:maxPassages]
	}
	passages := make([]models.Passage, 0, len(selections))
	for _, sel := range selections {
		idx := candidates[sel.Index-1]
		passages = append(passages, models.Passage{
			DocumentID: docID,
			ChunkIndex: idx,
			Text:       chunks[idx],
			Score:      scores[idx],
			Rationale:  sel.Relevance,
		})
	}
	return passages
}

// lexicalFallback returns the top lexical candidates verbatim.
func (r *Retriever) lexicalFallback(docID string, chunks []string, scores []float64, candidates []int, maxPassages int) []models.Passage {
	selected := candidates[:min(maxPassages, len(candidates))]
	passages := make([]models.Passage, 0, len(selected))
	for _, idx := range selected {
		passages = append(passages, models.Passage{
			DocumentID: docID,
			ChunkIndex: idx,
			Text:       chunks[idx],
			Score:      scores[idx],
			Rationale:  lexicalRationale,
		})
	}
	return passages
}

// GenerateInsight retrieves passages for the query, from one document
// or across the whole library when docID is empty, and asks the LLM
// for an answer grounded in them. It always returns a structured
// Insight; budget denial and upstream failures produce degraded text.
func (r *Retriever) GenerateInsight(ctx context.Context, query, docID string) models.Insight {
	insight := models.Insight{ID: uuid.NewString(), Query: query}

	var passages []models.Passage
	if docID != "" {
		passages = r.ExtractPassages(ctx, docID, query, r.maxPassages)
	} else {
		perDoc := max(1, r.maxPassages-1)
		limit := 2 * r.maxPassages
		for _, d := range r.lib.List() {
			passages = append(passages, r.ExtractPassages(ctx, d.ID, query, perDoc)...)
			if len(passages) >= limit {
				passages = passages[:limit]
				break
			}
		}
	}

	if len(passages) == 0 {
		insight.Text = noInsightText
		return insight
	}
	insight.Sources = r.sources(passages)

	if r.completer == nil {
		insight.Text = "No completion backend is configured; returning sources only."
		return insight
	}
	if !r.cache.TrackAPICall(apiLLM) {
		insight.Text = "Rate limit exceeded for the completion API; try again later."
		return insight
	}

	resp, err := r.completer.Complete(ctx, models.CompletionRequest{
		Messages: []models.ChatMessage{
			{Role: "system", Content: "You are a financial advisor specializing in Indian markets. Answer using only the provided passages and cite the source works."},
			{Role: "user", Content: r.insightPrompt(query, passages)},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		r.log.Warn("insight completion failed", "error", err)
		insight.Text = "Failed to generate an insight; the completion service was unavailable."
		return insight
	}

	insight.Text = resp.Content
	return insight
}

// insightPrompt embeds every passage with its provenance.
func (r *Retriever) insightPrompt(query string, passages []models.Passage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nRelevant passages:\n\n", query)
	for _, p := range passages {
		title, author := p.DocumentID, "unknown"
		if d, ok := r.lib.Get(p.DocumentID); ok {
			title, author = d.Title, d.Author
		}
		fmt.Fprintf(&b, "From %q by %s:\n%s\n\n", title, author, p.Text)
	}
	b.WriteString("Based ONLY on these passages, answer the question. " +
		"Cite specific works when referencing particular ideas. " +
		"If the passages lack relevant information, acknowledge the limits of your answer.")
	return b.String()
}

// sources builds citation metadata with short snippets.
func (r *Retriever) sources(passages []models.Passage) []models.Source {
	sources := make([]models.Source, 0, len(passages))
	for _, p := range passages {
		s := models.Source{DocumentID: p.DocumentID, Snippet: snippet(p.Text, 150)}
		if d, ok := r.lib.Get(p.DocumentID); ok {
			s.Title, s.Author = d.Title, d.Author
		}
		sources = append(sources, s)
	}
	return sources
}

// snippet truncates text to n runes with an ellipsis.
func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// Summarize asks the LLM for a structured overview of one document,
// based on its opening sample. The call is budget-gated.
func (r *Retriever) Summarize(ctx context.Context, docID string) (models.Summary, error) {
	content, _, err := r.lib.Load(docID)
	if err != nil {
		return models.Summary{}, err
	}
	if r.completer == nil {
		return models.Summary{}, errors.New("no completion backend configured")
	}
	if !r.cache.TrackAPICall(apiLLM) {
		return models.Summary{}, ErrRateLimited
	}

	sample := content
	if runes := []rune(content); len(runes) > 5000 {
		sample = string(runes[:5000])
	}

	doc, _ := r.lib.Get(docID)
	prompt := fmt.Sprintf("Summarize the key ideas from this excerpt of %q by %s.\n\nExcerpt:\n%s\n\n"+
		"Respond in JSON with a \"summary\" string (two paragraphs) and a \"key_concepts\" array of 5-7 strings.",
		doc.Title, doc.Author, sample)

	resp, err := r.completer.Complete(ctx, models.CompletionRequest{
		Messages:    []models.ChatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return models.Summary{}, fmt.Errorf("summarize: %w", err)
	}

	summary := models.Summary{DocumentID: docID}
	var parsed struct {
		Summary     string   `json:"summary"`
		KeyConcepts []string `json:"key_concepts"`
	}
	start := strings.Index(resp.Content, "{")
	end := strings.LastIndex(resp.Content, "}")
	if start >= 0 && end > start && json.Unmarshal([]byte(resp.Content[start:end+1]), &parsed) == nil && parsed.Summary != "" {
		summary.Text = parsed.Summary
		summary.KeyConcepts = parsed.KeyConcepts
	} else {
		// Model ignored the JSON instruction; keep the raw text.
		summary.Text = resp.Content
	}
	return summary, nil
}
