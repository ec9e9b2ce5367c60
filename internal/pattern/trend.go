package pattern

import (
	"context"

	"github.com/loomlabs/loom/internal/model"
)

// detectTrends is the extension point for volume-over-time analysis
// (rising interests, fading contacts). No trend heuristics ship yet, so the
// pass contributes nothing.
// TODO: compare per-entity occurrence counts across detection windows once
// runs are timestamped.
func (d *Detector) detectTrends(_ context.Context) ([]model.Pattern, error) {
	return []model.Pattern{}, nil
}
