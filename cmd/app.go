package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"mediadedup/internal/classify"
	"mediadedup/internal/config"
	"mediadedup/internal/fetch"
	"mediadedup/internal/fingerprint"
	"mediadedup/internal/hash"
	"mediadedup/internal/logging"
	"mediadedup/internal/match"
	"mediadedup/internal/pipeline"
	"mediadedup/internal/storage"
)

// app bundles what every command needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Storage
}

func openApp() (*app, error) {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		expanded, err := config.ExpandPath(dbPath)
		if err != nil {
			return nil, err
		}
		cfg.Paths.Database = expanded
		cfg.Paths.LockFile = expanded + ".lock"
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}
	if workers > 0 {
		cfg.Pipeline.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) fetcher() *fetch.Fetcher {
	return fetch.New(a.cfg.FetchOptions(), a.logger.With("component", "fetch"))
}

func (a *app) runner(opts ...pipeline.Option) (*pipeline.Runner, error) {
	caps := a.cfg.Capabilities()
	bits := a.cfg.Classifier.FingerprintBits

	computer, err := fingerprint.New(a.fetcher(), caps, bits,
		fingerprint.WithLogger(a.logger.With("component", "fingerprint")))
	if err != nil {
		return nil, err
	}
	scorer, err := hash.NewScorer(bits)
	if err != nil {
		return nil, err
	}
	thresholds := a.cfg.Thresholds()
	classifier, err := classify.New(thresholds, caps,
		classify.WithLogger(a.logger.With("component", "classify")))
	if err != nil {
		return nil, err
	}
	gatherer := match.NewGatherer(a.store, scorer, thresholds.Coarse,
		match.WithWorkers(a.cfg.Pipeline.Workers),
		match.WithLogger(a.logger.With("component", "match")))

	base := []pipeline.Option{
		pipeline.WithWorkers(a.cfg.Pipeline.Workers),
		pipeline.WithTimeout(a.cfg.RecordTimeout()),
		pipeline.WithPartition(a.cfg.Partition()),
		pipeline.WithLogger(a.logger.With("component", "pipeline")),
	}
	return pipeline.NewRunner(a.store, computer, gatherer, classifier, bits, append(base, opts...)...), nil
}
