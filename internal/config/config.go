// Package config loads and validates the matching pipeline configuration
// from environment variables, optionally seeded from a .env file.
//
// Validation is fail-fast: a malformed configuration is rejected before any
// work starts, never during a query.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"specmatch/internal/scoring"
)

// Configuration errors.
var (
	ErrInvalidThreshold = errors.New("invalid threshold configuration")
	ErrInvalidValue     = errors.New("invalid configuration value")
)

// Config is the full configuration surface of the matching core.
type Config struct {
	// Classification thresholds. MatchThreshold is inclusive: a best score
	// exactly at it counts as matched. ReviewFloor and AmbiguityGap are
	// deliberately independent knobs even though the original pipeline
	// reused one constant for both roles.
	MatchThreshold float64
	ReviewFloor    float64
	AmbiguityGap   float64

	// FuzzyThreshold is consumed by upstream extraction heuristics, not by
	// the matcher itself; it travels with the rest of the surface so one
	// .env configures the whole pipeline.
	FuzzyThreshold int

	TopK    int
	Weights scoring.Weights

	// Embedding provider.
	Provider         string
	APIKey           string
	Model            string
	BaseURL          string
	EmbeddingBatch   int
	EmbeddingTimeout time.Duration
	CacheSize        int

	// Approximate index.
	QdrantAddr      string
	Collection      string
	ApproxThreshold int

	// Batch run.
	Workers int
	DBPath  string
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		MatchThreshold:   0.75,
		ReviewFloor:      0.65,
		AmbiguityGap:     0.05,
		FuzzyThreshold:   80,
		TopK:             5,
		Weights:          scoring.DefaultWeights(),
		Provider:         "local",
		EmbeddingBatch:   32,
		EmbeddingTimeout: 30 * time.Second,
		CacheSize:        10000,
		ApproxThreshold:  1000,
		Workers:          4,
		DBPath:           "specmatch.db",
	}
}

// Load builds a Config from the environment. If envFile names an existing
// file it is loaded first (existing environment variables win, matching
// godotenv semantics). The returned Config is already validated.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	cfg := Default()
	var err error

	if cfg.MatchThreshold, err = envFloat("MATCH_THRESHOLD", cfg.MatchThreshold); err != nil {
		return Config{}, err
	}
	if cfg.ReviewFloor, err = envFloat("MATCH_REVIEW_FLOOR", cfg.ReviewFloor); err != nil {
		return Config{}, err
	}
	if cfg.AmbiguityGap, err = envFloat("MATCH_AMBIGUITY_GAP", cfg.AmbiguityGap); err != nil {
		return Config{}, err
	}
	if cfg.FuzzyThreshold, err = envInt("FUZZY_MATCH_THRESHOLD", cfg.FuzzyThreshold); err != nil {
		return Config{}, err
	}
	if cfg.TopK, err = envInt("MATCH_TOP_K", cfg.TopK); err != nil {
		return Config{}, err
	}

	ws, err := envFloat("WEIGHT_SEMANTIC", cfg.Weights.Semantic)
	if err != nil {
		return Config{}, err
	}
	wf, err := envFloat("WEIGHT_FUZZY", cfg.Weights.Fuzzy)
	if err != nil {
		return Config{}, err
	}
	wc, err := envFloat("WEIGHT_CODE", cfg.Weights.CodeMatch)
	if err != nil {
		return Config{}, err
	}
	wu, err := envFloat("WEIGHT_UNIT", cfg.Weights.UnitMatch)
	if err != nil {
		return Config{}, err
	}
	if cfg.Weights, err = scoring.NewWeights(ws, wf, wc, wu); err != nil {
		return Config{}, err
	}

	cfg.Provider = envString("EMBEDDING_PROVIDER", cfg.Provider)
	cfg.APIKey = envString("OPENAI_API_KEY", cfg.APIKey)
	if strings.EqualFold(cfg.Provider, "jina") {
		cfg.APIKey = envString("JINA_API_KEY", cfg.APIKey)
	}
	cfg.Model = envString("EMBEDDING_MODEL", cfg.Model)
	cfg.BaseURL = envString("EMBEDDING_BASE_URL", cfg.BaseURL)
	if cfg.EmbeddingBatch, err = envInt("EMBEDDING_BATCH_SIZE", cfg.EmbeddingBatch); err != nil {
		return Config{}, err
	}
	timeoutSec, err := envInt("EMBEDDING_TIMEOUT_SECONDS", int(cfg.EmbeddingTimeout/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingTimeout = time.Duration(timeoutSec) * time.Second
	if cfg.CacheSize, err = envInt("EMBEDDING_CACHE_SIZE", cfg.CacheSize); err != nil {
		return Config{}, err
	}

	cfg.QdrantAddr = envString("QDRANT_ADDR", cfg.QdrantAddr)
	cfg.Collection = envString("QDRANT_COLLECTION", cfg.Collection)
	if cfg.ApproxThreshold, err = envInt("APPROX_INDEX_THRESHOLD", cfg.ApproxThreshold); err != nil {
		return Config{}, err
	}

	if cfg.Workers, err = envInt("NUM_WORKERS", cfg.Workers); err != nil {
		return Config{}, err
	}
	cfg.DBPath = envString("SPECMATCH_DB_PATH", cfg.DBPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects threshold orderings that would make classification
// ill-defined, plus out-of-range knobs.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"MATCH_THRESHOLD":     c.MatchThreshold,
		"MATCH_REVIEW_FLOOR":  c.ReviewFloor,
		"MATCH_AMBIGUITY_GAP": c.AmbiguityGap,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%.3f outside [0,1]", ErrInvalidThreshold, name, v)
		}
	}

	if c.ReviewFloor >= c.MatchThreshold {
		return fmt.Errorf("%w: MATCH_REVIEW_FLOOR (%.3f) must be below MATCH_THRESHOLD (%.3f)",
			ErrInvalidThreshold, c.ReviewFloor, c.MatchThreshold)
	}

	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 100 {
		return fmt.Errorf("%w: FUZZY_MATCH_THRESHOLD=%d outside [0,100]", ErrInvalidValue, c.FuzzyThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: MATCH_TOP_K must be positive", ErrInvalidValue)
	}
	if c.EmbeddingBatch <= 0 {
		return fmt.Errorf("%w: EMBEDDING_BATCH_SIZE must be positive", ErrInvalidValue)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: NUM_WORKERS must be positive", ErrInvalidValue)
	}

	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, key, v)
	}
	return f, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidValue, key, v)
	}
	return n, nil
}
