// Package extract turns raw records into candidate entities and
// relationships by prompting a language model and parsing its JSON answer.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loomlabs/loom/internal/model"
	"github.com/loomlabs/loom/pkg/anthropic"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// DefaultCallInterval spaces out consecutive extraction calls.
const DefaultCallInterval = 500 * time.Millisecond

// Completer is the slice of the Anthropic client the adapter needs.
type Completer interface {
	CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

// Config holds extraction tuning knobs.
type Config struct {
	Model        string
	MaxTokens    int64
	CallInterval time.Duration
	// KnownUserName, when set, tells the model who the record owner is so
	// first-person references resolve to a stable entity.
	KnownUserName string
}

// Adapter runs single-record extractions against a Completer, pacing calls
// with a rate limiter so batches do not hammer the API.
type Adapter struct {
	client  Completer
	cfg     Config
	limiter *rate.Limiter
	system  []anthropic.SystemBlock
}

// New builds an Adapter, applying defaults for unset config fields.
func New(client Completer, cfg Config) *Adapter {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.CallInterval <= 0 {
		cfg.CallInterval = DefaultCallInterval
	}
	return &Adapter{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.CallInterval), 1),
		system:  anthropic.BuildCachedSystemBlocks(systemPrompt(cfg.KnownUserName)),
	}
}

// Extract prompts the model with a description of one record and parses the
// candidate entities and relationships from its answer.
func (a *Adapter) Extract(ctx context.Context, rec *model.RawRecord) (model.ExtractionResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extract: wait for rate limit")
	}

	desc, err := describeRecord(rec)
	if err != nil {
		return model.ExtractionResult{}, err
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    a.system,
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt(rec, desc)},
		},
	})
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extract: create message")
	}
	resp.Usage.LogCost(a.cfg.Model, "extract")

	text := firstText(resp)
	if text == "" {
		return model.ExtractionResult{}, eris.New("extract: empty model response")
	}

	result, err := parseExtraction(text)
	if err != nil {
		return model.ExtractionResult{}, err
	}
	return result, nil
}

// ExtractBatch extracts every record in order. A failed record yields an
// empty result at its position rather than aborting the batch; the second
// return value counts the failures.
func (a *Adapter) ExtractBatch(ctx context.Context, recs []model.RawRecord) ([]model.ExtractionResult, int) {
	results := make([]model.ExtractionResult, len(recs))
	failures := 0
	for i := range recs {
		res, err := a.Extract(ctx, &recs[i])
		if err != nil {
			zap.L().Warn("extraction failed, skipping record",
				zap.String("record_id", recs[i].ID),
				zap.String("kind", recs[i].Kind),
				zap.Error(err),
			)
			failures++
			continue
		}
		results[i] = res
	}
	return results, failures
}

func firstText(resp *anthropic.MessageResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}
