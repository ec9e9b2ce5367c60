package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/extract"
	"github.com/loomlabs/loom/internal/graph"
	"github.com/loomlabs/loom/internal/pattern"
	"github.com/loomlabs/loom/internal/store"
	"github.com/loomlabs/loom/internal/weave"
	"github.com/loomlabs/loom/pkg/anthropic"
)

// env bundles the wired application components for one command invocation.
type env struct {
	Store       store.Store
	Graph       *graph.Manager
	Detector    *pattern.Detector
	Coordinator *weave.Coordinator
}

func (e *env) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
}

// openStore connects the configured backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		s, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		s, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// initQuery wires the read-only components.
func initQuery(ctx context.Context) (*env, error) {
	if err := cfg.Validate("query"); err != nil {
		return nil, err
	}
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	return &env{
		Store:    s,
		Graph:    graph.NewManager(s),
		Detector: pattern.NewDetector(s, patternRules()),
	}, nil
}

// initPipeline wires the full extraction pipeline including the API client.
func initPipeline(ctx context.Context) (*env, error) {
	if err := cfg.Validate("weave"); err != nil {
		return nil, err
	}
	s, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	g := graph.NewManager(s)
	d := pattern.NewDetector(s, patternRules())

	adapter := extract.New(anthropic.NewClient(cfg.Anthropic.Key), extract.Config{
		Model:         cfg.Anthropic.Model,
		MaxTokens:     cfg.Extract.MaxTokens,
		CallInterval:  time.Duration(cfg.Extract.CallIntervalMS) * time.Millisecond,
		KnownUserName: cfg.Extract.KnownUserName,
	})

	coordinator := weave.NewCoordinator(s, g, adapter, d, weave.Config{
		Window:    cfg.Weave.Window,
		BatchSize: cfg.Weave.BatchSize,
	})

	return &env{Store: s, Graph: g, Detector: d, Coordinator: coordinator}, nil
}

func patternRules() pattern.Rules {
	if cfg.Pattern.RulesFile == "" {
		return pattern.DefaultRules()
	}
	rules, err := pattern.LoadRules(cfg.Pattern.RulesFile)
	if err != nil {
		zap.L().Warn("falling back to default pattern rules",
			zap.String("rules_file", cfg.Pattern.RulesFile),
			zap.Error(err),
		)
		return pattern.DefaultRules()
	}
	return rules
}
