package codegraph

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config carries the recognized engine options. Zero values select the
// defaults applied by withDefaults; Validate rejects values that cannot
// work.
type Config struct {
	// Root is the directory to index and watch.
	Root string

	// DBPath is the SQLite database location. ":memory:" is accepted
	// for tests and throwaway indexes.
	DBPath string

	// EmbeddingDim truncates provider vectors to this width before
	// storage. 0 keeps the provider's native width.
	EmbeddingDim int

	// EmbeddingProvider selects the embedding backend: openai, ollama,
	// or hash. Empty means environment-driven detection.
	EmbeddingProvider string

	// EmbeddingDisabled turns semantic search off entirely; lexical
	// search still works.
	EmbeddingDisabled bool

	// EmbeddingMaxTextLen skips embedding texts longer than this many
	// bytes. 0 means no limit.
	EmbeddingMaxTextLen int

	// RRFK is the reciprocal rank fusion constant.
	RRFK float64

	// MaxDepth caps graph traversals.
	MaxDepth int

	// DebounceInterval is the quiet period before a changed file is
	// reprocessed.
	DebounceInterval time.Duration

	// IgnorePatterns are directory and file names excluded from
	// watching and scanning. Nil selects the defaults.
	IgnorePatterns []string

	// Workers bounds concurrent file processing.
	Workers int

	// Logger receives structured engine logs. Nil means slog.Default.
	Logger *slog.Logger
}

const (
	defaultRRFK     = 60.0
	defaultMaxDepth = 5
	defaultDebounce = 200 * time.Millisecond
	defaultWorkers  = 4
)

func (c Config) withDefaults() Config {
	if c.RRFK == 0 {
		c.RRFK = defaultRRFK
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaultMaxDepth
	}
	if c.DebounceInterval == 0 {
		c.DebounceInterval = defaultDebounce
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if c.Root == "" {
		return errors.New("config: root directory is required")
	}
	if c.DBPath == "" {
		return errors.New("config: database path is required")
	}
	if c.RRFK <= 0 {
		return fmt.Errorf("config: rrf k must be positive, got %v", c.RRFK)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("config: max depth must be non-negative, got %d", c.MaxDepth)
	}
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("config: embedding dimension must be non-negative, got %d", c.EmbeddingDim)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative, got %d", c.Workers)
	}
	return nil
}
