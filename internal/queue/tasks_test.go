package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/services"
)

func TestRestoreFromSpool(t *testing.T) {
	cfg := &config.Config{FileStorageDir: t.TempDir()}
	path := cfg.DocumentSpoolPath("doc-9")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("spooled bytes"), 0600))

	p := NewTaskProcessor(nil, services.NewDocumentRegistry())
	doc, err := p.restoreFromSpool(DocumentProcessPayload{
		DocumentID: "doc-9",
		Path:       path,
		Name:       "doc.txt",
		MimeType:   "text/plain",
		Namespace:  "ns",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-9", doc.ID)
	assert.Equal(t, []byte("spooled bytes"), doc.Content)
	assert.Equal(t, "ns", doc.Namespace)
}

func TestRestoreFromSpoolWithoutPath(t *testing.T) {
	p := NewTaskProcessor(nil, services.NewDocumentRegistry())

	_, err := p.restoreFromSpool(DocumentProcessPayload{DocumentID: "doc-10"})
	require.Error(t, err)
}

func TestDocumentSpoolPathIsDeterministic(t *testing.T) {
	cfg := &config.Config{FileStorageDir: "/var/data"}

	// Upload, worker restore, and the reprocess sweep must all derive
	// the same location from the document id alone.
	assert.Equal(t, cfg.DocumentSpoolPath("abc"), cfg.DocumentSpoolPath("abc"))
	assert.Equal(t, filepath.Join("/var/data", "documents", "abc"), cfg.DocumentSpoolPath("abc"))
}
