// Package monitoring observes pipeline events and raises webhook alerts
// on failure-rate and storage-health thresholds.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	Transitions int                 `json:"transitions"`
	Terminal    map[model.Stage]int `json:"terminal"`
	Failed      int                 `json:"failed"`
	Finished    int                 `json:"finished"`
	FailRate    float64             `json:"fail_rate"`
	AvgScore    float64             `json:"avg_score"`
	CollectedAt time.Time           `json:"collected_at"`
}

// Collector subscribes to pipeline events and keeps running counters.
// It implements pipeline.Emitter.
type Collector struct {
	mu          sync.Mutex
	transitions int
	terminal    map[model.Stage]int
	scoreSum    float64
	scored      int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{terminal: make(map[model.Stage]int)}
}

// Emit records one pipeline transition.
func (c *Collector) Emit(ev pipeline.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transitions++
	if ev.To.IsTerminal() {
		c.terminal[ev.To]++
	}
	if ev.To == model.StageQualified || ev.To == model.StageDisqualified {
		c.scoreSum += ev.Score
		c.scored++
	}
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &MetricsSnapshot{
		Transitions: c.transitions,
		Terminal:    make(map[model.Stage]int, len(c.terminal)),
		CollectedAt: time.Now().UTC(),
	}
	for stage, n := range c.terminal {
		snap.Terminal[stage] = n
		snap.Finished += n
	}
	snap.Failed = c.terminal[model.StageFailed]
	if snap.Finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Finished)
	}
	if c.scored > 0 {
		snap.AvgScore = c.scoreSum / float64(c.scored)
	}
	return snap
}
