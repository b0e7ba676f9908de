package vectorstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"merchant-docs-rag/internal/logger"
	"merchant-docs-rag/models"
)

// ErrDecryptionFailure marks a stored record whose content cannot be
// decrypted. Such records are skipped from results, never returned corrupted.
var ErrDecryptionFailure = errors.New("content decryption failed")

// ContentCipher encrypts chunk content with AES-256-GCM, storing the random
// nonce alongside the cipher text in the record metadata.
type ContentCipher struct {
	aead cipher.AEAD
}

func NewContentCipher(key string) (*ContentCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &ContentCipher{aead: aead}, nil
}

func (c *ContentCipher) Encrypt(plaintext string) (content, iv string, err error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("failed to generate iv: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

func (c *ContentCipher) Decrypt(content, iv string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad iv length %d", ErrDecryptionFailure, len(nonce))
	}
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return string(plain), nil
}

// EncryptedStore decorates any VectorStore for sensitive corpora: content is
// encrypted before it reaches the backend's metadata bag and decrypted after
// fetch. Records that fail decryption are skipped with a data-integrity
// warning rather than aborting the query.
type EncryptedStore struct {
	VectorStore
	cipher *ContentCipher
}

func NewEncryptedStore(inner VectorStore, cipher *ContentCipher) *EncryptedStore {
	return &EncryptedStore{VectorStore: inner, cipher: cipher}
}

func (s *EncryptedStore) Store(ctx context.Context, record models.VectorRecord) error {
	sealed, err := s.sealRecord(record)
	if err != nil {
		return err
	}
	return s.VectorStore.Store(ctx, sealed)
}

func (s *EncryptedStore) StoreBatch(ctx context.Context, records []models.VectorRecord) (int, error) {
	sealed := make([]models.VectorRecord, 0, len(records))
	for _, rec := range records {
		sr, err := s.sealRecord(rec)
		if err != nil {
			logger.Warn("Skipping record that failed encryption", "id", rec.ID, "error", err)
			continue
		}
		sealed = append(sealed, sr)
	}
	return s.VectorStore.StoreBatch(ctx, sealed)
}

// Search is a no-op on an encrypted corpus: the backend only holds cipher
// text, so token and ILIKE matching have nothing to match against.
// Returning empty here keeps the behavior honest instead of forwarding a
// query that can never hit; encrypted corpora retrieve by vector only.
func (s *EncryptedStore) Search(ctx context.Context, queryText, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	logger.Debug("Keyword search unavailable on encrypted corpus", "namespace", namespace)
	return []models.SearchResult{}, nil
}

func (s *EncryptedStore) SearchByVector(ctx context.Context, vector []float32, namespace string, limit int, threshold float64) ([]models.SearchResult, error) {
	results, err := s.VectorStore.SearchByVector(ctx, vector, namespace, limit, threshold)
	if err != nil {
		return nil, err
	}
	return s.openResults(results), nil
}

func (s *EncryptedStore) Get(ctx context.Context, id string) (*models.VectorRecord, error) {
	rec, err := s.VectorStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Metadata.EncryptedContent != "" {
		plain, err := s.cipher.Decrypt(rec.Metadata.EncryptedContent, rec.Metadata.IV)
		if err != nil {
			return nil, err
		}
		rec.Metadata.Content = plain
		rec.Metadata.EncryptedContent = ""
		rec.Metadata.IV = ""
	}
	return rec, nil
}

func (s *EncryptedStore) sealRecord(record models.VectorRecord) (models.VectorRecord, error) {
	if record.Metadata.Content == "" {
		return record, nil
	}
	content, iv, err := s.cipher.Encrypt(record.Metadata.Content)
	if err != nil {
		return record, fmt.Errorf("failed to encrypt content for %s: %w", record.ID, err)
	}
	record.Metadata.Content = ""
	record.Metadata.EncryptedContent = content
	record.Metadata.IV = iv
	return record, nil
}

func (s *EncryptedStore) openResults(results []models.SearchResult) []models.SearchResult {
	opened := make([]models.SearchResult, 0, len(results))
	for _, res := range results {
		if res.Metadata.EncryptedContent == "" {
			opened = append(opened, res)
			continue
		}
		plain, err := s.cipher.Decrypt(res.Metadata.EncryptedContent, res.Metadata.IV)
		if err != nil {
			logger.Warn("Skipping record with undecryptable content", "id", res.ID, "error", err)
			continue
		}
		res.Content = plain
		res.Metadata.Content = plain
		res.Metadata.EncryptedContent = ""
		res.Metadata.IV = ""
		opened = append(opened, res)
	}
	return opened
}
