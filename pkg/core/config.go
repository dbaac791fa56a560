package core

import (
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/filter"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/pipeline"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// Config represents the configuration of one storage unit
type Config struct {
	// Path is the SQLite file, or MemoryPath
	Path string `json:"path"`

	// Namespace labels log records; it does not affect storage
	Namespace string `json:"namespace"`

	// Embedder is the primary embedding model; nil uses the fallback only
	Embedder embed.Embedder `json:"-"`

	// Pipeline configures the event buffer
	Pipeline pipeline.Config `json:"pipeline"`

	// Sink receives flushed event batches; nil keeps them in memory
	Sink pipeline.Sink `json:"-"`

	// Jobs tracks background batch embedding jobs; nil creates a private table
	Jobs *JobTable `json:"-"`

	// Translator pushes where clauses down to SQL; nil uses json_extract on data
	Translator filter.Translator `json:"-"`

	// BusyTimeout for file databases
	BusyTimeout time.Duration `json:"busyTimeout"`

	Logger Logger           `json:"-"`
	Now    func() time.Time `json:"-"`
}

// DefaultConfig returns an in-memory configuration
func DefaultConfig() Config {
	return Config{
		Path:        MemoryPath,
		Namespace:   "default",
		Pipeline:    pipeline.DefaultConfig(),
		BusyTimeout: 5 * time.Second,
		Logger:      NopLogger(),
		Now:         time.Now,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.Namespace == "" {
		c.Namespace = def.Namespace
	}
	if c.Pipeline == (pipeline.Config{}) {
		c.Pipeline = def.Pipeline
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = pipeline.DefaultBatchSize
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = def.BusyTimeout
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	if c.Jobs == nil {
		c.Jobs = NewJobTable()
	}
	if c.Translator == nil {
		c.Translator = filter.JSONPath{Column: "data"}
	}
	return c
}
