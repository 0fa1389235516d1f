// Package library reads the document corpus: plain-text files on disk,
// keyed by document ID, described by the config manifest.
package library

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/finlens-ai/finlens/pkg/models"
)

// ErrNotFound is returned when a document ID is unknown or its file is missing.
var ErrNotFound = errors.New("document not found")

// Library resolves document IDs to on-disk text files.
type Library struct {
	dir  string
	docs map[string]models.Document
}

// New creates a Library from a manifest. Relative paths resolve under dir;
// a document without a path defaults to <dir>/<id>.txt.
func New(dir string, docs []models.Document) *Library {
	m := make(map[string]models.Document, len(docs))
	for _, d := range docs {
		if d.Path == "" {
			d.Path = d.ID + ".txt"
		}
		if !filepath.IsAbs(d.Path) {
			d.Path = filepath.Join(dir, d.Path)
		}
		m[d.ID] = d
	}
	return &Library{dir: dir, docs: m}
}

// List returns manifest metadata for every document, ordered by ID.
func (l *Library) List() []models.Document {
	out := make([]models.Document, 0, len(l.docs))
	for _, d := range l.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns manifest metadata for one document.
func (l *Library) Get(id string) (models.Document, bool) {
	d, ok := l.docs[id]
	return d, ok
}

// Load reads a document's full content and its content fingerprint.
// The fingerprint changes whenever the file changes, so derived chunk
// sets can be invalidated.
func (l *Library) Load(id string) (content, fingerprint string, err error) {
	d, ok := l.docs[id]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	data, err := os.ReadFile(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", "", fmt.Errorf("read document %s: %w", id, err)
	}

	sum := sha256.Sum256(data)
	return string(data), fmt.Sprintf("%x", sum[:8]), nil
}
