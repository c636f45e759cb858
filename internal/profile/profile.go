package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Generation configuration (OpenAI-compatible images API).
	// The backend restyles the submitted room photo.
	AIGenerationAPIKey  string
	AIGenerationBaseURL string
	AIGenerationModel   string
	AIGenerationTimeout int // request timeout in seconds
	AIGenerationSize    string

	// Vision configuration (OpenAI-compatible chat API with image input).
	// The detector finds furniture/decor regions in the styled image.
	AIVisionAPIKey  string
	AIVisionBaseURL string
	AIVisionModel   string
	AIVisionTimeout int

	// Embedding configuration. Region captions and product titles share one
	// embedding space, so the dimensionality is fixed service-wide.
	AIEmbeddingAPIKey   string
	AIEmbeddingBaseURL  string
	AIEmbeddingModel    string
	EmbeddingDimensions int

	// Pipeline configuration
	QueueCapacity    int
	Workers          int
	MatchConcurrency int
	StageMaxAttempts int

	// Matching configuration
	MatchK              int
	MatchKQuery         int
	MatchCategoryWeight float64
	MatchPriceWeight    float64
	MatchPriceMin       float64
	MatchPriceMax       float64

	// Vector index configuration
	VectorBackend    string // store | qdrant
	VectorRateLimit  float64
	QdrantHost       string
	QdrantCollection string
	QdrantPort       int

	// Retention window for terminal jobs, in days. Zero disables the janitor.
	RetentionDays int

	// Other configurations
	Mode        string
	DSN         string
	Driver      string
	Version     string
	InstanceURL string
	Addr        string
	Data        string
	Port        int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Generation configuration
	p.AIGenerationAPIKey = getEnvOrDefault("GHURFATI_AI_GENERATION_API_KEY", "")
	p.AIGenerationBaseURL = getEnvOrDefault("GHURFATI_AI_GENERATION_BASE_URL", "https://api.openai.com/v1")
	p.AIGenerationModel = getEnvOrDefault("GHURFATI_AI_GENERATION_MODEL", "gpt-image-1")
	p.AIGenerationTimeout = getEnvOrDefaultInt("GHURFATI_AI_GENERATION_TIMEOUT_SECONDS", 120)
	p.AIGenerationSize = getEnvOrDefault("GHURFATI_AI_GENERATION_SIZE", "1024x1024")

	// Vision configuration
	p.AIVisionAPIKey = getEnvOrDefault("GHURFATI_AI_VISION_API_KEY", p.AIGenerationAPIKey)
	p.AIVisionBaseURL = getEnvOrDefault("GHURFATI_AI_VISION_BASE_URL", p.AIGenerationBaseURL)
	p.AIVisionModel = getEnvOrDefault("GHURFATI_AI_VISION_MODEL", "gpt-4o-mini")
	p.AIVisionTimeout = getEnvOrDefaultInt("GHURFATI_AI_VISION_TIMEOUT_SECONDS", 60)

	// Embedding configuration
	p.AIEmbeddingAPIKey = getEnvOrDefault("GHURFATI_AI_EMBEDDING_API_KEY", p.AIGenerationAPIKey)
	p.AIEmbeddingBaseURL = getEnvOrDefault("GHURFATI_AI_EMBEDDING_BASE_URL", p.AIGenerationBaseURL)
	p.AIEmbeddingModel = getEnvOrDefault("GHURFATI_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingDimensions = getEnvOrDefaultInt("GHURFATI_EMBEDDING_DIMENSIONS", 512)

	// Pipeline configuration
	p.QueueCapacity = getEnvOrDefaultInt("GHURFATI_QUEUE_CAPACITY", 64)
	p.Workers = getEnvOrDefaultInt("GHURFATI_WORKERS", 2)
	p.MatchConcurrency = getEnvOrDefaultInt("GHURFATI_MATCH_CONCURRENCY", 4)
	p.StageMaxAttempts = getEnvOrDefaultInt("GHURFATI_STAGE_MAX_ATTEMPTS", 3)

	// Matching configuration
	p.MatchK = getEnvOrDefaultInt("GHURFATI_MATCH_K", 3)
	p.MatchKQuery = getEnvOrDefaultInt("GHURFATI_MATCH_K_QUERY", 12)
	p.MatchCategoryWeight = getEnvOrDefaultFloat("GHURFATI_MATCH_CATEGORY_WEIGHT", 0.85)
	p.MatchPriceWeight = getEnvOrDefaultFloat("GHURFATI_MATCH_PRICE_WEIGHT", 0.90)
	p.MatchPriceMin = getEnvOrDefaultFloat("GHURFATI_MATCH_PRICE_MIN", 0)
	p.MatchPriceMax = getEnvOrDefaultFloat("GHURFATI_MATCH_PRICE_MAX", 0)

	// Vector index configuration
	p.VectorBackend = getEnvOrDefault("GHURFATI_VECTOR_BACKEND", "store")
	p.VectorRateLimit = getEnvOrDefaultFloat("GHURFATI_VECTOR_RATE_LIMIT", 0)
	p.QdrantHost = getEnvOrDefault("GHURFATI_QDRANT_HOST", "localhost")
	p.QdrantPort = getEnvOrDefaultInt("GHURFATI_QDRANT_PORT", 6334)
	p.QdrantCollection = getEnvOrDefault("GHURFATI_QDRANT_COLLECTION", "ghurfati_products")

	p.RetentionDays = getEnvOrDefaultInt("GHURFATI_RETENTION_DAYS", 7)

	p.InstanceURL = getEnvOrDefault("GHURFATI_INSTANCE_URL", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "ghurfati")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/ghurfati"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported db driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("ghurfati_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions %d", p.EmbeddingDimensions)
	}
	if p.QueueCapacity <= 0 {
		return errors.Errorf("invalid queue capacity %d", p.QueueCapacity)
	}
	if p.Workers <= 0 {
		return errors.Errorf("invalid worker count %d", p.Workers)
	}
	if p.MatchK <= 0 {
		return errors.Errorf("invalid match k %d", p.MatchK)
	}
	if p.MatchKQuery <= p.MatchK {
		// The oversample pool must be strictly larger than k for the soft
		// filters to have candidates to demote.
		p.MatchKQuery = p.MatchK * 4
	}
	if p.VectorBackend != "store" && p.VectorBackend != "qdrant" {
		return errors.Errorf("unsupported vector backend %q", p.VectorBackend)
	}
	if p.MatchPriceMax > 0 && p.MatchPriceMin > p.MatchPriceMax {
		return errors.Errorf("invalid price band [%f, %f]", p.MatchPriceMin, p.MatchPriceMax)
	}

	return nil
}
