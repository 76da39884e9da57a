package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Summary reports the outcome of a batch run.
type Summary struct {
	RunID      string              `json:"run_id"`
	Processed  int                 `json:"processed"`
	Duplicates int                 `json:"duplicates"`
	// Stages counts leads per terminal stage reached during the run.
	Stages map[model.Stage]int `json:"stages"`
	// Errors holds per-lead orchestration errors (persistence or
	// interruption). Capability failures land in the failed stage count
	// and the lead's own FailureDetail instead.
	Errors   map[string]string `json:"errors,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Batch fans leads out over the orchestrator with bounded concurrency.
type Batch struct {
	orch *Orchestrator
}

// NewBatch creates a batch scheduler around the orchestrator.
func NewBatch(orch *Orchestrator) *Batch {
	return &Batch{orch: orch}
}

// Run processes the leads with at most maxConcurrency in flight. A
// duplicate lead id within one batch is skipped rather than processed
// twice. One lead's failure never aborts the rest; cancellation stops
// dispatching and leaves undone leads at their last persisted stage.
func (b *Batch) Run(ctx context.Context, leads []*model.LeadRecord, maxConcurrency int) (*Summary, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	start := time.Now()

	summary := &Summary{
		RunID:  uuid.NewString(),
		Stages: make(map[model.Stage]int),
		Errors: make(map[string]string),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	seen := make(map[string]bool, len(leads))
	for _, lead := range leads {
		if seen[lead.ID] {
			summary.Duplicates++
			continue
		}
		seen[lead.ID] = true

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := b.orch.Process(ctx, lead)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			// Stages counts terminal outcomes; an interrupted lead shows
			// up in Errors instead.
			if lead.Stage.IsTerminal() {
				summary.Stages[lead.Stage]++
			}
			if err != nil {
				summary.Errors[lead.ID] = err.Error()
			}
			return nil
		})
	}

	_ = g.Wait()
	summary.Duration = time.Since(start)

	zap.L().Info("batch complete",
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", summary.Duration),
	)
	return summary, ctx.Err()
}
