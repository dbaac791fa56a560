package docdb

import (
	"errors"
	"io"
	"os"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/config"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/pipeline"
)

// NewLogger builds the logger described by cfg
func NewLogger(cfg config.LoggingConfig, w io.Writer) core.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := core.ParseLevel(cfg.Level)
	if cfg.Format == "json" {
		return core.NewJSONLogger(w, level)
	}
	return core.NewLogger(w, level)
}

// NewEmbedder returns the configured remote embedder, or nil for the
// fallback only
func NewEmbedder(cfg config.EmbeddingConfig) embed.Embedder {
	if cfg.URL == "" {
		return nil
	}
	return embed.NewHTTPEmbedder(cfg.URL, cfg.Model, cfg.APIKey, cfg.Timeout)
}

// NewSink opens the configured pipeline sink. The returned closer releases
// it and may be nil.
func NewSink(cfg config.PipelineConfig) (pipeline.Sink, io.Closer, error) {
	switch cfg.Sink {
	case config.SinkDir:
		return pipeline.DirSink{Root: cfg.SinkPath}, nil, nil
	case config.SinkBadger:
		sink, err := pipeline.OpenBadgerSink(cfg.SinkPath)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink, nil
	default:
		return pipeline.NewMemorySink(), nil, nil
	}
}

// Runtime is a namespace registry with the resources it was built from
type Runtime struct {
	Registry *core.Registry
	Sink     pipeline.Sink
	Logger   core.Logger

	sinkCloser io.Closer
}

// NewRuntime builds a registry from cfg. Each namespace gets its own unit
// and writes flushed batches under its own key prefix of the shared sink.
func NewRuntime(cfg *config.Config, logger core.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewLogger(cfg.Logging, nil)
	}

	if cfg.Storage.DataDir != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, err
		}
	}

	sink, closer, err := NewSink(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	base := core.DefaultConfig()
	base.Embedder = NewEmbedder(cfg.Embedding)
	base.Logger = logger
	base.BusyTimeout = cfg.Storage.BusyTimeout
	base.Pipeline = pipeline.Config{BatchSize: cfg.Pipeline.BatchSize, RetryEnabled: cfg.Pipeline.RetryEnabled}

	open := func(namespace string, jobs *core.JobTable) (*core.SQLiteStore, error) {
		unit := base
		unit.Sink = pipeline.PrefixSink{Prefix: namespace, Sink: sink}
		return core.FileOpener(unit, cfg.Storage.DataDir)(namespace, jobs)
	}

	return &Runtime{
		Registry:   core.NewRegistry(open),
		Sink:       sink,
		Logger:     logger,
		sinkCloser: closer,
	}, nil
}

// Close closes every unit, then the sink
func (r *Runtime) Close() error {
	err := r.Registry.Close()
	if r.sinkCloser != nil {
		err = errors.Join(err, r.sinkCloser.Close())
	}
	return err
}
