package main

import (
	"context"
	"fmt"

	"exampaper-rag/internal/database"
	"exampaper-rag/internal/embedding"
	"exampaper-rag/internal/export"
	"exampaper-rag/internal/jobs"
	"exampaper-rag/internal/llm"
	"exampaper-rag/internal/parser"
	"exampaper-rag/internal/prompt"
	"exampaper-rag/internal/retriever"
	"exampaper-rag/internal/templates"
)

// openDB connects to Postgres and makes sure the schema exists
func openDB(ctx context.Context) (*database.DB, error) {
	db, err := database.NewDB(ctx, cfg.Database.URL, cfg.Database.VectorDim)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// openTable returns the configured job table and a func releasing it
func openTable(ctx context.Context) (jobs.Table, func(), error) {
	switch cfg.Jobs.Store {
	case "redis":
		t, err := jobs.NewRedisTable(ctx, cfg.Jobs.RedisAddr, cfg.Jobs.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return t, func() { _ = t.Close() }, nil
	default:
		return jobs.NewMemoryTable(), func() {}, nil
	}
}

func newEmbedder() (*embedding.OllamaEmbedder, error) {
	e, err := embedding.NewOllamaEmbedder(cfg.Ollama.Host, cfg.Ollama.EmbeddingModel, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return e, nil
}

// newSynthesizer builds the configured backend wrapped in the retry policy
func newSynthesizer() (llm.Synthesizer, error) {
	var (
		backend llm.Synthesizer
		err     error
	)
	switch cfg.Synthesis.Provider {
	case "openrouter":
		backend, err = llm.NewOpenRouterClient(cfg.OpenRouter.BaseURL, cfg.OpenRouterAPIKey(),
			cfg.OpenRouter.Model, cfg.OpenRouter.MaxTokens, cfg.OpenRouter.Temperature)
	default:
		backend, err = llm.NewOllamaLLM(cfg.Ollama.Host, cfg.Ollama.Model, cfg.Ollama.Temperature, cfg.Ollama.NumPredict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Synthesis.Provider, err)
	}
	return llm.NewRetrying(backend, llm.RetryPolicy{
		MaxAttempts:    cfg.Synthesis.MaxAttempts,
		Timeout:        cfg.Synthesis.Timeout,
		InitialBackoff: cfg.Synthesis.InitialBackoff,
		MaxBackoff:     cfg.Synthesis.MaxBackoff,
	}, log), nil
}

// newController wires the whole pipeline
func newController(db *database.DB, table jobs.Table) (*jobs.Controller, error) {
	registry, err := templates.NewRegistry(cfg.Templates.Dir)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder()
	if err != nil {
		return nil, err
	}
	synth, err := newSynthesizer()
	if err != nil {
		return nil, err
	}
	builder, err := prompt.NewBuilder(cfg.Retrieval.ExcerptChars, cfg.Synthesis.MaxTokens)
	if err != nil {
		return nil, err
	}

	return jobs.NewController(jobs.Deps{
		Table:     table,
		Documents: db,
		Templates: registry,
		Retriever: retriever.New(db, embedder, cfg.Retrieval.MinContentRatio, log),
		Prompts:   builder,
		Synth:     synth,
		Parser:    parser.New(log),
		Exporter:  export.NewFileExporter(cfg.Export.Dir),
		Log:       log,
	}, jobs.Options{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		DefaultBudget: cfg.Retrieval.Budget,
	})
}
