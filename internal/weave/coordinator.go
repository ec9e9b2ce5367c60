// Package weave orchestrates the pipeline: fetch raw records, extract
// candidates through the model, merge them into the graph, then rerun
// pattern detection.
package weave

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loomlabs/loom/internal/graph"
	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/internal/pattern"
	"github.com/loomlabs/loom/internal/store"
)

// Stage labels the pipeline phase reported through Progress callbacks.
type Stage string

// Pipeline stages in order.
const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageMerging    Stage = "merging"
	StageDetecting  Stage = "detecting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Progress receives stage transitions; done/total count records within the
// extracting and merging stages and are zero elsewhere.
type Progress func(stage Stage, done, total int)

// Extractor is the slice of the extraction adapter the coordinator needs.
type Extractor interface {
	ExtractBatch(ctx context.Context, recs []model.RawRecord) ([]model.ExtractionResult, int)
}

// Config bounds one run.
type Config struct {
	// Window caps how many recent records one run processes.
	Window int
	// BatchSize is the number of records extracted per batch.
	BatchSize int
}

// DefaultConfig returns the standard run bounds.
func DefaultConfig() Config {
	return Config{Window: 100, BatchSize: 10}
}

// RunSummary reports what one pipeline run did.
type RunSummary struct {
	RecordsProcessed     int           `json:"records_processed"`
	ExtractionFailures   int           `json:"extraction_failures"`
	EntitiesAdded        int           `json:"entities_added"`
	RelationshipsAdded   int           `json:"relationships_added"`
	RelationshipsDropped int           `json:"relationships_dropped"`
	PatternsDetected     int           `json:"patterns_detected"`
	Duration             time.Duration `json:"duration"`
}

// Coordinator drives the pipeline end to end.
type Coordinator struct {
	store     store.Store
	graph     *graph.Manager
	extractor Extractor
	detector  *pattern.Detector
	cfg       Config
	progress  Progress
}

// NewCoordinator wires the pipeline components together.
func NewCoordinator(s store.Store, g *graph.Manager, e Extractor, d *pattern.Detector, cfg Config) *Coordinator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Coordinator{store: s, graph: g, extractor: e, detector: d, cfg: cfg}
}

// SetProgress installs a progress callback. Pass nil to silence reporting.
func (c *Coordinator) SetProgress(p Progress) {
	c.progress = p
}

func (c *Coordinator) report(stage Stage, done, total int) {
	if c.progress != nil {
		c.progress(stage, done, total)
	}
}

// Ingest stores raw records, assigning ids and timestamps where missing.
// Returns how many records were accepted.
func (c *Coordinator) Ingest(ctx context.Context, recs []model.RawRecord) (int, error) {
	return IngestRecords(ctx, c.store, recs)
}

// IngestRecords stores raw records without needing a wired pipeline, so
// ingest-only invocations skip the API client entirely.
func IngestRecords(ctx context.Context, s store.Store, recs []model.RawRecord) (int, error) {
	now := time.Now().UTC()
	accepted := 0
	for i := range recs {
		rec := &recs[i]
		if rec.Source == "" || rec.Kind == "" || rec.ExternalID == "" {
			return accepted, eris.Errorf("weave: record %d missing source, kind, or external id", i)
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.ObservedAt.IsZero() {
			rec.ObservedAt = now
		}
		rec.LastUpdated = now
		if err := s.UpsertRawRecord(ctx, rec); err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

// Run processes the most recent window of raw records and refreshes
// patterns. A run over an empty store is a no-op.
func (c *Coordinator) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()

	c.report(StageFetching, 0, 0)
	recs, err := c.store.ListRecentRawRecords(ctx, c.cfg.Window)
	if err != nil {
		c.report(StageFailed, 0, 0)
		return nil, err
	}

	summary, err := c.process(ctx, recs)
	if err != nil {
		c.report(StageFailed, 0, 0)
		return nil, err
	}
	summary.Duration = time.Since(start)
	c.report(StageDone, len(recs), len(recs))

	zap.L().Info("weave run complete",
		zap.Int("records", summary.RecordsProcessed),
		zap.Int("extraction_failures", summary.ExtractionFailures),
		zap.Int("entities_added", summary.EntitiesAdded),
		zap.Int("relationships_added", summary.RelationshipsAdded),
		zap.Int("relationships_dropped", summary.RelationshipsDropped),
		zap.Int("patterns", summary.PatternsDetected),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// ProcessNewData runs the pipeline over records updated after the given
// time, the incremental path for sync-triggered runs.
func (c *Coordinator) ProcessNewData(ctx context.Context, since time.Time) (*RunSummary, error) {
	start := time.Now()

	c.report(StageFetching, 0, 0)
	recent, err := c.store.ListRecentRawRecords(ctx, c.cfg.Window)
	if err != nil {
		c.report(StageFailed, 0, 0)
		return nil, err
	}

	var fresh []model.RawRecord
	for _, rec := range recent {
		if rec.LastUpdated.After(since) {
			fresh = append(fresh, rec)
		}
	}

	summary, err := c.process(ctx, fresh)
	if err != nil {
		c.report(StageFailed, 0, 0)
		return nil, err
	}
	summary.Duration = time.Since(start)
	c.report(StageDone, len(fresh), len(fresh))
	return summary, nil
}

func (c *Coordinator) process(ctx context.Context, recs []model.RawRecord) (*RunSummary, error) {
	summary := &RunSummary{}
	if len(recs) == 0 {
		return summary, nil
	}

	total := len(recs)
	var merged model.ProcessSummary
	for offset := 0; offset < total; offset += c.cfg.BatchSize {
		end := offset + c.cfg.BatchSize
		if end > total {
			end = total
		}
		batch := recs[offset:end]

		c.report(StageExtracting, offset, total)
		results, failures := c.extractor.ExtractBatch(ctx, batch)
		summary.ExtractionFailures += failures

		c.report(StageMerging, offset, total)
		extractedAt := time.Now().UTC()
		for i, result := range results {
			if result.Empty() {
				continue
			}
			rec := &batch[i]
			prov := model.ProvenancePointer{
				Source:      rec.Source,
				Kind:        rec.Kind,
				RecordID:    rec.ExternalID,
				ExtractedAt: extractedAt,
			}
			ps, err := c.graph.ProcessExtractionResult(ctx, result, prov)
			if err != nil {
				return nil, err
			}
			merged.Add(ps)
		}
		summary.RecordsProcessed += len(batch)
	}
	summary.EntitiesAdded = merged.EntitiesAdded
	summary.RelationshipsAdded = merged.RelationshipsAdded
	summary.RelationshipsDropped = merged.RelationshipsDropped

	c.report(StageDetecting, total, total)
	patterns, err := c.detector.Run(ctx)
	if err != nil {
		return nil, err
	}
	summary.PatternsDetected = len(patterns)

	return summary, nil
}
