package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/becomeliminal/nim-recall/config"
	"github.com/becomeliminal/nim-recall/history"
	"github.com/becomeliminal/nim-recall/llm"
	"github.com/becomeliminal/nim-recall/llm/anthropic"
	"github.com/becomeliminal/nim-recall/llm/mock"
	llmopenai "github.com/becomeliminal/nim-recall/llm/openai"
	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/cache"
	embedmock "github.com/becomeliminal/nim-recall/memory/embedder/mock"
	embedopenai "github.com/becomeliminal/nim-recall/memory/embedder/openai"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
	"github.com/becomeliminal/nim-recall/memory/store/hnsw"
	"github.com/becomeliminal/nim-recall/memory/store/postgres"
	"github.com/becomeliminal/nim-recall/observability"
	"github.com/becomeliminal/nim-recall/pipeline"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	memory   *memory.Manager
	chain    *llm.Chain
	history  history.Store
	pipeline *pipeline.Pipeline

	closers []func() error
}

type closingEmbedder interface {
	memory.Embedder
	Close() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(cfg.MetricsNamespace, nil),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	emb, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}

	store, location, err := a.newStore(ctx, emb.Dimensions())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	mcfg := *memory.DefaultConfig
	mcfg.MinSimilarity = cfg.SimilarityThreshold
	mcfg.Location = location
	a.memory = memory.NewManager(store, emb, &mcfg,
		memory.WithLogger(logger),
		memory.WithMetrics(a.metrics),
	)

	completer, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}
	a.chain = llm.NewChain(completer,
		llm.WithTemperature(cfg.LLMTemperature),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithLogger(logger),
		llm.WithMetrics(a.metrics),
	)

	a.history, err = newHistory(ctx, cfg.HistoryDBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.history.Close)

	pcfg := pipeline.DefaultConfig()
	pcfg.ContextTokenBudget = cfg.ContextTokenBudget
	pcfg.ContextCandidates = cfg.ContextCandidates
	a.pipeline = pipeline.New(a.memory, a.chain, pcfg,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithHistory(a.history),
	)

	logger.Info("assistant ready",
		"llm", cfg.LLMProvider,
		"embedder", cfg.Embedder,
		"memory", cfg.MemoryBackend,
		"location", location,
	)
	return a, nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) newEmbedder() (memory.Embedder, error) {
	cfg := a.cfg
	var base memory.Embedder
	switch cfg.Embedder {
	case "openai":
		base = embedopenai.New(func(o *embedopenai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			o.Dimensions = cfg.EmbeddingDim
			if cfg.EmbeddingModel != "" {
				o.Model = cfg.EmbeddingModel
			}
		})
	case "onnx":
		e, err := newONNXEmbedder(cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, e.Close)
		base = e
	default:
		base = embedmock.New(cfg.EmbeddingDim)
	}

	if cfg.EmbeddingCacheSize <= 0 {
		return base, nil
	}
	cached, err := cache.New(base, cfg.EmbeddingCacheSize, cache.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	a.closers = append(a.closers, func() error {
		cached.Close()
		return nil
	})
	return cached, nil
}

func (a *app) newStore(ctx context.Context, dims int) (memory.Store, string, error) {
	cfg := a.cfg
	switch cfg.MemoryBackend {
	case "hnsw":
		return hnsw.New(dims), "in-memory (hnsw)", nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL, cfg.MemoryCollection, dims)
		if err != nil {
			return nil, "", err
		}
		return s, "postgres table " + cfg.MemoryCollection, nil
	default:
		s, err := chromem.New(chromem.Config{
			PersistDir: cfg.MemoryPersistDir,
			Collection: cfg.MemoryCollection,
			Dimensions: dims,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, "", err
		}
		location := cfg.MemoryPersistDir
		if location == "" {
			location = "in-memory (chromem)"
		}
		return s, location, nil
	}
}

func newCompleter(cfg config.Config) (llm.Completer, error) {
	if cfg.LLMProvider != "mock" && cfg.APIKey() == "" {
		return nil, fmt.Errorf("an API key is required for the %s provider", cfg.LLMProvider)
	}
	switch cfg.LLMProvider {
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			o.BaseURL = cfg.LLMBaseURL
			o.MaxTokens = int64(cfg.LLMMaxTokens)
			if cfg.LLMModel != "" {
				o.Model = cfg.LLMModel
			}
		}), nil
	case "openai":
		return llmopenai.New(func(o *llmopenai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			o.BaseURL = cfg.LLMBaseURL
			o.MaxTokens = int64(cfg.LLMMaxTokens)
			if cfg.LLMModel != "" {
				o.Model = cfg.LLMModel
			}
		}), nil
	case "groq":
		if cfg.LLMBaseURL == "" {
			return llmopenai.NewGroq(cfg.GroqAPIKey, cfg.LLMModel), nil
		}
		return llmopenai.New(func(o *llmopenai.Options) {
			o.APIKey = cfg.GroqAPIKey
			o.BaseURL = cfg.LLMBaseURL
			o.Model = cfg.LLMModel
			if o.Model == "" {
				o.Model = llmopenai.DefaultGroqModel
			}
		}), nil
	case "mock":
		return mock.New(nil), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func newHistory(ctx context.Context, path string) (history.Store, error) {
	if path == "" {
		return history.NewInMemoryStore(), nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	return history.NewSQLiteStore(ctx, path)
}
