package services

import (
	"sort"
	"sync"

	"merchant-docs-rag/models"
)

// DocumentRegistry tracks known documents and their indexing state. It is
// the source of truth for status endpoints and the reprocessing sweep; the
// vector store only ever sees chunks.
//
// Documents are copied on both Save and Get, so a status poller and the
// pipeline worker never share a struct. Writers publish a new state by
// calling Save again with the updated document.
type DocumentRegistry struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
}

func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{docs: make(map[string]*models.Document)}
}

func (r *DocumentRegistry) Save(doc *models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
}

func (r *DocumentRegistry) Get(id string) (*models.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

func (r *DocumentRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
}

// List returns a snapshot of all documents ordered by upload time,
// newest first.
func (r *DocumentRegistry) List() []*models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		cp := *doc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out
}

// ListByStatus filters documents in a given lifecycle state.
func (r *DocumentRegistry) ListByStatus(status models.DocumentStatus) []*models.Document {
	var out []*models.Document
	for _, doc := range r.List() {
		if doc.Status == status {
			out = append(out, doc)
		}
	}
	return out
}
