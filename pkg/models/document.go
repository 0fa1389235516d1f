package models

// Document describes one text in the library.
type Document struct {
	ID     string `json:"id" yaml:"id"`
	Title  string `json:"title" yaml:"title"`
	Author string `json:"author" yaml:"author"`
	Path   string `json:"path" yaml:"path"`
}

// Passage is a bounded span of a source document selected as relevant
// to a query. ChunkIndex preserves source order within the document.
type Passage struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Source identifies where a passage came from, for citation.
type Source struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Snippet    string `json:"snippet"`
}

// Insight is the assembled answer to a query, with provenance.
type Insight struct {
	ID      string   `json:"id"`
	Query   string   `json:"query"`
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Summary is a generated overview of one document.
type Summary struct {
	DocumentID  string   `json:"document_id"`
	Text        string   `json:"summary"`
	KeyConcepts []string `json:"key_concepts,omitempty"`
}

// NewsArticle is one result from the search/news API.
type NewsArticle struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	PublishedAt string  `json:"published_date,omitempty"`
}
