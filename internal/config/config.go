package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	CORSOrigins []string

	// Chunking
	MaxChunkSize  int
	MinChunkSize  int
	MerchantTerms []string

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	OpenAIAPIKey          string
	OpenAIEmbeddingsModel string
	VectorDimensions      int

	// Vector store selection
	VectorBackend          string // "pinecone" (default), "postgres", "local"
	VectorSecondaryBackend string
	SearchThreshold        float64

	// Pinecone
	PineconeAPIKey    string
	PineconeIndexHost string
	PineconeIndexName string

	// Postgres (pgvector)
	PostgresURL   string
	PostgresTable string

	// Content encryption for sensitive corpora
	ContentEncryptionKey string

	// OCR Service Configuration
	OCRServiceURL          string
	OCRServiceEnabled      bool
	OCRTimeout             int
	OCRConfidenceThreshold float64

	// Redis Configuration (queue + search cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTL      int // seconds

	// Background processing
	WorkerConcurrency int
	SweepCron         string

	// Upload limits and spool location
	MaxFileSize    int64
	FileStorageDir string

	// Rate limiting (requests per window, per IP + endpoint)
	RateLimitReqs   int
	RateLimitWindow int // seconds
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MaxChunkSize:  getEnvInt("MAX_CHUNK_SIZE", 300),
		MinChunkSize:  getEnvInt("MIN_CHUNK_SIZE", 100),
		MerchantTerms: strings.Split(getEnv("DOMAIN_KEYWORDS", defaultMerchantTerms), ","),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),

		VectorBackend:          getEnv("VECTOR_BACKEND", "pinecone"),
		VectorSecondaryBackend: getEnv("VECTOR_SECONDARY_BACKEND", "postgres"),
		SearchThreshold:        getEnvFloat64("SEARCH_THRESHOLD", 0.3),

		PineconeAPIKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeIndexHost: getEnv("PINECONE_INDEX_HOST", ""),
		PineconeIndexName: getEnv("PINECONE_INDEX_NAME", "merchant-docs-v2"),

		PostgresURL:   getEnv("DATABASE_URL", ""),
		PostgresTable: getEnv("VECTOR_TABLE", "document_chunks"),

		ContentEncryptionKey: getEnv("CONTENT_ENCRYPTION_KEY", ""),

		OCRServiceURL:          getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRServiceEnabled:      getEnvBool("OCR_SERVICE_ENABLED", true),
		OCRTimeout:             getEnvInt("OCR_TIMEOUT", 300), // 5 minutes
		OCRConfidenceThreshold: getEnvFloat64("OCR_CONFIDENCE_THRESHOLD", 0.7),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvInt("CACHE_TTL", 86400), // 24 hours

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		SweepCron:         getEnv("SWEEP_CRON", "*/15 * * * *"),

		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./data/uploads"),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
	}

	// Validate backend-specific requirements up front; the store factory
	// treats missing credentials as a fallback signal, not a crash, so only
	// hard config contradictions fail here.
	switch cfg.VectorBackend {
	case "pinecone", "postgres", "local":
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND: %s", cfg.VectorBackend)
	}

	if key := cfg.ContentEncryptionKey; key != "" && len(key) != 32 {
		return nil, fmt.Errorf("CONTENT_ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return cfg, nil
}

// defaultMerchantTerms is the merchant-services vocabulary used by the
// chunker's quality scoring when DOMAIN_KEYWORDS is unset.
const defaultMerchantTerms = "processing rate,interchange,chargeback,terminal,gateway," +
	"merchant account,underwriting,pci,authorization,settlement,acquirer,processor," +
	"payment facilitator,pos,pricing,fees,compliance,e-commerce,card present,card not present"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// DocumentSpoolPath is where an uploaded document's bytes are spooled on
// disk. Deterministic per id, so workers and the reprocess sweep can
// locate the file without the uploading process's state.
func (cfg *Config) DocumentSpoolPath(id string) string {
	return filepath.Join(cfg.FileStorageDir, "documents", id)
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
