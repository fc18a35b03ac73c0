package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ChuLiYu/conflict-engine/internal/dataset"
	"github.com/ChuLiYu/conflict-engine/internal/generator"
	"github.com/ChuLiYu/conflict-engine/internal/learner"
	"github.com/ChuLiYu/conflict-engine/internal/metrics"
	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/internal/snapshot"
	"github.com/ChuLiYu/conflict-engine/internal/storage/sqlite"
	"github.com/ChuLiYu/conflict-engine/internal/storage/wal"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// feedbackStore is a feedback sink that can read its records back
type feedbackStore interface {
	orchestrator.FeedbackSink
	Feedback(ctx context.Context, executionID string) ([]types.Feedback, error)
}

// app is one process's wiring of the engine and its collaborators
type app struct {
	cfg      *Config
	engine   *orchestrator.Engine
	source   *dataset.FileSource
	store    *sqlite.Store // nil unless storage.driver is sqlite
	feedback feedbackStore // nil for the memory driver
	journal  *wal.WAL      // nil unless journal.enabled
	registry *prometheus.Registry
	closers  []func() error
}

// newApp builds the engine described by cfg
func newApp(cfg *Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		source:   dataset.NewFileSource(cfg.Engine.Dataset),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := orchestrator.Deps{
		Source:  a.source,
		Metrics: metrics.NewCollector(a.registry),
		Adjuster: &learner.Reinforcement{
			Prior:        cfg.weights(),
			LearningRate: cfg.Learner.LearningRate,
			Floor:        cfg.Learner.Floor,
			Threshold:    cfg.Learner.Threshold,
		},
	}

	if err := a.wireStorage(&deps); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireGenerator(&deps); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Journal.Enabled {
		j, err := wal.NewWAL(cfg.Journal.Path, cfg.Journal.SyncOnAppend)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
		a.closers = append(a.closers, j.Close)
		deps.Journal = j
	}

	a.engine = orchestrator.New(orchestrator.Config{
		TopConflicts:      cfg.Engine.TopConflicts,
		GenerationTimeout: cfg.Engine.GenerationTimeout,
		Weights:           cfg.weights(),
	}, deps)
	return a, nil
}

func (a *app) wireStorage(deps *orchestrator.Deps) error {
	switch a.cfg.Storage.Driver {
	case StorageSQLite:
		store, err := sqlite.Open(a.cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		a.store = store
		a.feedback = store
		a.closers = append(a.closers, store.Close)
		deps.Checkpoints = store
		deps.Feedback = store
	case StorageFile:
		m, err := snapshot.NewManager(a.cfg.Storage.CheckpointDir)
		if err != nil {
			return err
		}
		fl, err := snapshot.NewFeedbackLog(filepath.Join(m.Dir(), snapshot.FeedbackFile))
		if err != nil {
			return err
		}
		a.feedback = fl
		deps.Checkpoints = m
		deps.Feedback = fl
	case StorageMemory:
		// feedback lives only in the run's checkpoint for the process lifetime
		deps.Checkpoints = orchestrator.NewMemoryCheckpointer()
	}
	return nil
}

func (a *app) wireGenerator(deps *orchestrator.Deps) error {
	switch a.cfg.Generator.Mode {
	case GeneratorGRPC:
		conn, err := grpc.NewClient(a.cfg.Generator.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connect to generator: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		deps.Generator = generator.NewGRPCGenerator(conn)
	default:
		gen, err := generator.LoadFileGenerator(a.cfg.Generator.Catalog)
		if err != nil {
			return err
		}
		deps.Generator = gen
	}
	return nil
}

// Close releases every resource in reverse order of acquisition
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
