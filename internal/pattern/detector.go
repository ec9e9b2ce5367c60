package pattern

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/store"
)

// Detector runs the detection pass over the store.
type Detector struct {
	store store.Store
	rules Rules
}

// NewDetector builds a Detector with the given rules.
func NewDetector(s store.Store, rules Rules) *Detector {
	return &Detector{store: s, rules: rules}
}

// Detect runs all detectors concurrently and returns their patterns in a
// stable order: routines, trends, clusters.
func (d *Detector) Detect(ctx context.Context) ([]model.Pattern, error) {
	var routines, trends, clusters []model.Pattern

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		routines, err = d.detectRoutines(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		trends, err = d.detectTrends(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		clusters, err = d.detectClusters(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	patterns := make([]model.Pattern, 0, len(routines)+len(trends)+len(clusters))
	patterns = append(patterns, routines...)
	patterns = append(patterns, trends...)
	patterns = append(patterns, clusters...)

	zap.L().Info("pattern detection complete",
		zap.Int("routines", len(routines)),
		zap.Int("trends", len(trends)),
		zap.Int("clusters", len(clusters)),
	)
	return patterns, nil
}

// Run detects patterns and replaces the stored set with the new ones.
func (d *Detector) Run(ctx context.Context) ([]model.Pattern, error) {
	patterns, err := d.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.store.ReplacePatterns(ctx, patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}
