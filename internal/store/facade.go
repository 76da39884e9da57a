package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// HealthProbe decides whether the primary store is usable. The default
// probe pings with a short timeout.
type HealthProbe func(ctx context.Context, s Store) error

// DefaultHealthProbe pings the store with a 3s deadline.
func DefaultHealthProbe(ctx context.Context, s Store) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.Ping(ctx)
}

// FacadeOption configures the facade.
type FacadeOption func(*Facade)

// WithHealthProbe overrides the primary health probe.
func WithHealthProbe(p HealthProbe) FacadeOption {
	return func(f *Facade) { f.probe = p }
}

// WithProbeInterval sets how often a degraded primary is re-probed and
// how long a healthy verdict is trusted.
func WithProbeInterval(d time.Duration) FacadeOption {
	return func(f *Facade) { f.probeInterval = d }
}

// WithDegradedHook registers a callback fired once per transition into
// degraded mode, used for process-level alerting.
func WithDegradedHook(fn func(err error)) FacadeOption {
	return func(f *Facade) { f.onDegraded = fn }
}

// WithUnavailableHook registers a callback fired when a write fails on
// both backends, so the process can alert on every lost save.
func WithUnavailableHook(fn func(leadID string, err error)) FacadeOption {
	return func(f *Facade) { f.onUnavailable = fn }
}

// Facade routes persistence between the primary store and the local
// file fallback based on probed health. Selection is an explicit
// strategy re-evaluated on a schedule and after primary failures,
// never a bare global flag. Writes redirected to the fallback stay
// readable after primary recovery; merging them back is a manual
// follow-up.
type Facade struct {
	primary  Store
	fallback Store

	probe         HealthProbe
	probeInterval time.Duration
	onDegraded    func(err error)
	onUnavailable func(leadID string, err error)

	mu         sync.Mutex
	degraded   bool
	redirected bool // a write has landed in the fallback
	lastProbe  time.Time
}

// NewFacade probes the primary once at construction so the first
// operation already runs against the right backend.
func NewFacade(ctx context.Context, primary, fallback Store, opts ...FacadeOption) *Facade {
	f := &Facade{
		primary:       primary,
		fallback:      fallback,
		probe:         DefaultHealthProbe,
		probeInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := f.probe(ctx, f.primary); err != nil {
		f.markDegraded(err)
	} else {
		f.lastProbe = time.Now()
	}
	return f
}

// Degraded reports whether operations are currently redirected to the
// fallback.
func (f *Facade) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// primaryHealthy re-evaluates the probe when the last verdict is stale.
func (f *Facade) primaryHealthy(ctx context.Context) bool {
	f.mu.Lock()
	stale := time.Since(f.lastProbe) >= f.probeInterval
	degraded := f.degraded
	f.mu.Unlock()

	if !stale {
		return !degraded
	}

	if err := f.probe(ctx, f.primary); err != nil {
		f.markDegraded(err)
		return false
	}

	f.mu.Lock()
	if f.degraded {
		zap.L().Info("primary store recovered",
			zap.Bool("fallback_writes_pending", f.redirected))
	}
	f.degraded = false
	f.lastProbe = time.Now()
	f.mu.Unlock()
	return true
}

func (f *Facade) markDegraded(err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.lastProbe = time.Now()
	f.mu.Unlock()

	if already {
		return
	}
	zap.L().Warn("primary store unavailable, redirecting to local fallback", zap.Error(err))
	if f.onDegraded != nil {
		f.onDegraded(err)
	}
}

func (f *Facade) noteRedirect() {
	f.mu.Lock()
	f.redirected = true
	f.mu.Unlock()
}

// SaveLead persists to the primary when healthy, retrying against the
// fallback on failure. Only when both backends reject the write does
// the caller see a *StorageError.
func (f *Facade) SaveLead(ctx context.Context, lead *model.LeadRecord) error {
	if f.primaryHealthy(ctx) {
		err := f.primary.SaveLead(ctx, lead)
		if err == nil {
			return nil
		}
		f.markDegraded(err)
		if fbErr := f.fallback.SaveLead(ctx, lead); fbErr != nil {
			return f.saveFailed(&StorageError{Op: "save", LeadID: lead.ID, Primary: err, Fallback: fbErr})
		}
		f.noteRedirect()
		return nil
	}

	if err := f.fallback.SaveLead(ctx, lead); err != nil {
		return f.saveFailed(&StorageError{Op: "save", LeadID: lead.ID, Primary: ErrDegraded, Fallback: err})
	}
	f.noteRedirect()
	return nil
}

// saveFailed surfaces a write that no backend accepted.
func (f *Facade) saveFailed(serr *StorageError) error {
	if f.onUnavailable != nil {
		f.onUnavailable(serr.LeadID, serr)
	}
	return serr
}

// ErrDegraded marks a primary skipped because the facade is degraded.
var ErrDegraded = errors.New("primary store degraded")

// GetLead reads from the active backend, falling through to the other
// one on a miss. When both hold the id, the higher version wins: a
// fallback copy written during an outage supersedes the stale primary
// row.
func (f *Facade) GetLead(ctx context.Context, id string) (*model.LeadRecord, error) {
	first, second := f.fallback, f.primary
	primaryFirst := f.primaryHealthy(ctx)
	if primaryFirst {
		first, second = f.primary, f.fallback
	}

	lead, err := first.GetLead(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		if !primaryFirst {
			return nil, err
		}
		// Primary read failure degrades the facade; the fallback below
		// still gets a chance to serve the record.
		f.markDegraded(err)
		lead = nil
	}

	other, otherErr := second.GetLead(ctx, id)
	if otherErr != nil && !errors.Is(otherErr, ErrNotFound) {
		// The secondary being down only matters if the active backend
		// missed.
		if lead == nil {
			return nil, err
		}
		return lead, nil
	}

	switch {
	case lead == nil && other == nil:
		return nil, ErrNotFound
	case lead == nil:
		return other, nil
	case other == nil:
		return lead, nil
	case other.Version > lead.Version:
		return other, nil
	default:
		return lead, nil
	}
}

// ListLeads unions both backends by id, preferring higher versions, so
// leads redirected during an outage stay visible alongside primary rows.
func (f *Facade) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error) {
	// List without pagination, merge, then page; the backends cannot
	// paginate a union consistently on their own.
	inner := LeadFilter{Stage: filter.Stage, Limit: filter.Limit + filter.Offset}
	if filter.Limit <= 0 {
		inner.Limit = 0
	}

	var lists [][]model.LeadRecord
	if f.primaryHealthy(ctx) {
		leads, err := f.primary.ListLeads(ctx, inner)
		if err != nil {
			return nil, err
		}
		lists = append(lists, leads)
	}
	fbLeads, err := f.fallback.ListLeads(ctx, inner)
	if err != nil {
		if len(lists) == 0 {
			return nil, err
		}
	} else {
		lists = append(lists, fbLeads)
	}

	byID := make(map[string]model.LeadRecord)
	var order []string
	for _, leads := range lists {
		for _, lead := range leads {
			existing, ok := byID[lead.ID]
			if !ok {
				byID[lead.ID] = lead
				order = append(order, lead.ID)
				continue
			}
			if lead.Version > existing.Version {
				byID[lead.ID] = lead
			}
		}
	}

	merged := make([]model.LeadRecord, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(merged) {
			return nil, nil
		}
		merged = merged[filter.Offset:]
	}
	if filter.Limit > 0 && len(merged) > filter.Limit {
		merged = merged[:filter.Limit]
	}
	return merged, nil
}

// Migrate prepares both backends so a mid-run redirect never hits an
// unmigrated fallback.
func (f *Facade) Migrate(ctx context.Context) error {
	if err := f.fallback.Migrate(ctx); err != nil {
		return err
	}
	if !f.primaryHealthy(ctx) {
		return nil
	}
	return f.primary.Migrate(ctx)
}

func (f *Facade) Ping(ctx context.Context) error {
	if f.primaryHealthy(ctx) {
		return nil
	}
	return f.fallback.Ping(ctx)
}

func (f *Facade) Close() error {
	fbErr := f.fallback.Close()
	if err := f.primary.Close(); err != nil {
		return err
	}
	return fbErr
}
