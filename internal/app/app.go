// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalnine/logsentry/internal/analyzer"
	"github.com/signalnine/logsentry/internal/archive"
	"github.com/signalnine/logsentry/internal/classifier"
	"github.com/signalnine/logsentry/internal/config"
	"github.com/signalnine/logsentry/internal/history"
)

// NewClassifier builds the retrying OpenAI-compatible client from config
func NewClassifier(cfg config.ClassifierConfig) (classifier.Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no LLM endpoints configured (set classifier.llm_endpoints or OPENAI_API_KEY)")
	}

	// Convert config endpoints to classifier endpoints
	var endpoints []classifier.Endpoint
	for _, ep := range cfg.Endpoints {
		endpoints = append(endpoints, classifier.Endpoint{
			URL:    ep.URL,
			Model:  ep.Model,
			APIKey: ep.APIKey,
		})
	}

	client := classifier.NewOpenAIClient(endpoints, classifier.Options{
		StrictSchema: cfg.StrictSchema,
		Timeout:      cfg.RequestTimeout,
	})
	return &classifier.Retrying{
		Client:      client,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Jitter:      cfg.Jitter,
	}, nil
}

// NewRunner wires classifier, analyzer and runner
func NewRunner(cfg config.ClassifierConfig) (*analyzer.Runner, error) {
	client, err := NewClassifier(cfg)
	if err != nil {
		return nil, err
	}
	return analyzer.NewRunner(&analyzer.Analyzer{Client: client, BatchSize: cfg.BatchSize}), nil
}

// OpenHistory opens the SQLite-backed history store.
// The returned close func releases the database.
func OpenHistory(dbPath string) (*history.Store, func() error, error) {
	backend, err := history.NewSQLiteBackend(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	return history.NewStore(backend), backend.Close, nil
}

// OpenArchive connects to the upload archive when configured
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Archiver, error) {
	if !cfg.Enabled() {
		return archive.Nop{}, nil
	}
	store, err := archive.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return store, nil
}
