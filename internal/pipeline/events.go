package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Event records one stage transition. Every transition the orchestrator
// persists is also emitted, so consumers see the same history the store
// holds.
type Event struct {
	LeadID string      `json:"lead_id"`
	From   model.Stage `json:"from"`
	To     model.Stage `json:"to"`
	Score  float64     `json:"score,omitempty"`
	Detail string      `json:"detail,omitempty"`
	At     time.Time   `json:"at"`
}

// Emitter consumes pipeline events. Implementations must not block;
// the orchestrator calls them inline on the lead's goroutine.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev Event)

func (f EmitterFunc) Emit(ev Event) {
	f(ev)
}

// LogEmitter writes transitions to the global zap logger.
func LogEmitter() Emitter {
	return EmitterFunc(func(ev Event) {
		fields := []zap.Field{
			zap.String("lead_id", ev.LeadID),
			zap.String("from", string(ev.From)),
			zap.String("to", string(ev.To)),
		}
		if ev.Score != 0 {
			fields = append(fields, zap.Float64("score", ev.Score))
		}
		if ev.Detail != "" {
			fields = append(fields, zap.String("detail", ev.Detail))
		}
		zap.L().Info("lead transition", fields...)
	})
}
