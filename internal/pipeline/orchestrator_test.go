package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/model"
)

// fakeClient dispatches to per-capability handlers, counting calls.
type fakeClient struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(input map[string]any) (map[string]any, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:    make(map[string]int),
		handlers: make(map[string]func(input map[string]any) (map[string]any, error)),
	}
}

func (c *fakeClient) on(capability string, h func(input map[string]any) (map[string]any, error)) *fakeClient {
	c.handlers[capability] = h
	return c
}

func (c *fakeClient) callCount(capability string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[capability]
}

func (c *fakeClient) Invoke(ctx context.Context, req *model.CapabilityRequest) (*model.CapabilityResult, error) {
	c.mu.Lock()
	c.calls[req.Capability]++
	h, ok := c.handlers[req.Capability]
	c.mu.Unlock()
	if !ok {
		return nil, eris.Errorf("no handler for capability %s", req.Capability)
	}
	payload, err := h(req.Input)
	if err != nil {
		return nil, err
	}
	return &model.CapabilityResult{Capability: req.Capability, Success: true, Payload: payload}, nil
}

// happyClient answers every capability the way a cooperative provider would.
func happyClient(score float64) *fakeClient {
	return newFakeClient().
		on(model.CapabilityEnrich, func(input map[string]any) (map[string]any, error) {
			return map[string]any{
				"employee_count": 40.0,
				"revenue_band":   "$5M-$10M",
				"tech_stack":     []any{"ServiceTitan", "QuickBooks"},
				"decision_makers": []any{
					map[string]any{"name": "Jane Doe", "title": "Owner", "email": "jane@acmehvac.com"},
				},
			}, nil
		}).
		on(model.CapabilityQualify, func(input map[string]any) (map[string]any, error) {
			return map[string]any{"score": score, "reasons": []any{"fits ICP"}}, nil
		}).
		on(model.CapabilityCompose, func(input map[string]any) (map[string]any, error) {
			return map[string]any{"subject": "Quick question about Acme HVAC", "body": "Hi Jane, ..."}, nil
		}).
		on(model.CapabilityCallScript, func(input map[string]any) (map[string]any, error) {
			return map[string]any{"script": "Opening: ask about peak season staffing."}, nil
		}).
		on(model.CapabilityValidate, func(input map[string]any) (map[string]any, error) {
			return map[string]any{"email_verified": true, "phone_verified": false}, nil
		})
}

// memStore records every persisted version in order.
type memStore struct {
	mu    sync.Mutex
	saves []model.LeadRecord
	err   error
}

func (s *memStore) SaveLead(ctx context.Context, lead *model.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, *lead)
	return nil
}

func (s *memStore) lastStage() model.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return ""
	}
	return s.saves[len(s.saves)-1].Stage
}

type collectEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *collectEmitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *collectEmitter) stages() []model.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Stage, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.To)
	}
	return out
}

func newTestOrchestrator(client CapabilityClient, st LeadStore, emitters ...Emitter) *Orchestrator {
	return New(client, cache.New(time.Hour, 0), st, DefaultConfig(), emitters...)
}

func TestProcess_HappyPathToOutreachSent(t *testing.T) {
	client := happyClient(85)
	st := &memStore{}
	emitter := &collectEmitter{}
	orch := newTestOrchestrator(client, st, emitter)

	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	require.NoError(t, orch.Process(context.Background(), lead))

	assert.Equal(t, model.StageOutreachSent, lead.Stage)
	assert.Equal(t, 85.0, lead.ICPScore)
	assert.Equal(t, model.TierHigh, lead.PriorityTier)

	// Enrichment landed on the record and backfilled the contact email.
	assert.Equal(t, 40, lead.EmployeeCount)
	assert.Equal(t, "$5M-$10M", lead.RevenueBand)
	assert.Equal(t, []string{"ServiceTitan", "QuickBooks"}, lead.TechStack)
	assert.Equal(t, "jane@acmehvac.com", lead.Email)

	// Outreach artifacts.
	assert.NotEmpty(t, lead.EmailSubject)
	assert.NotEmpty(t, lead.EmailDraft)
	assert.NotEmpty(t, lead.CallScript)
	assert.True(t, lead.EmailVerified)
	assert.False(t, lead.PhoneVerified)

	// Every transition persisted, each bumping the version once.
	assert.Equal(t, 7, lead.Version)
	assert.Equal(t, model.StageOutreachSent, st.lastStage())
	assert.Equal(t, []model.Stage{
		model.StageEnriching, model.StageEnriched,
		model.StageQualifying, model.StageQualified,
		model.StageOutreachDrafting, model.StageOutreachSent,
	}, emitter.stages())
}

func TestProcess_DisqualifiesBelowCutoff(t *testing.T) {
	client := happyClient(40)
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	lead := model.NewLead("Tiny Shop", "tinyshop.com")
	require.NoError(t, orch.Process(context.Background(), lead))

	assert.Equal(t, model.StageDisqualified, lead.Stage)
	assert.Equal(t, 40.0, lead.ICPScore)
	assert.Equal(t, model.TierLow, lead.PriorityTier)
	assert.Equal(t, "score 40.0 below cutoff 60.0", lead.FailureDetail)

	// Outreach never starts for a disqualified lead.
	assert.Equal(t, 0, client.callCount(model.CapabilityCompose))
	assert.Equal(t, 0, client.callCount(model.CapabilityCallScript))
}

func TestProcess_ScoreAtCutoffQualifies(t *testing.T) {
	client := happyClient(60)
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	lead := model.NewLead("Borderline Co", "borderline.com")
	require.NoError(t, orch.Process(context.Background(), lead))

	assert.Equal(t, model.StageOutreachSent, lead.Stage)
	assert.Equal(t, model.TierMedium, lead.PriorityTier)
}

func TestProcess_CapabilityFailureFailsLead(t *testing.T) {
	client := happyClient(85).
		on(model.CapabilityEnrich, func(input map[string]any) (map[string]any, error) {
			return nil, eris.New("provider exploded")
		})
	st := &memStore{}
	emitter := &collectEmitter{}
	orch := newTestOrchestrator(client, st, emitter)

	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	require.NoError(t, orch.Process(context.Background(), lead))

	assert.Equal(t, model.StageFailed, lead.Stage)
	assert.Contains(t, lead.FailureDetail, "provider exploded")
	assert.Equal(t, model.StageFailed, st.lastStage())
	assert.Equal(t, []model.Stage{model.StageEnriching, model.StageFailed}, emitter.stages())
}

func TestProcess_EmptyEmailDraftFailsLead(t *testing.T) {
	client := happyClient(85).
		on(model.CapabilityCompose, func(input map[string]any) (map[string]any, error) {
			return map[string]any{"subject": "", "body": ""}, nil
		})
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	require.NoError(t, orch.Process(context.Background(), lead))

	// A blank draft must never reach outreach_sent.
	assert.Equal(t, model.StageFailed, lead.Stage)
	assert.Contains(t, lead.FailureDetail, "empty email draft")
	assert.Equal(t, model.StageFailed, st.lastStage())
	assert.Equal(t, 0, client.callCount(model.CapabilityCallScript))
}

func TestProcess_EmptyCallScriptFailsLead(t *testing.T) {
	client := happyClient(85).
		on(model.CapabilityCallScript, func(input map[string]any) (map[string]any, error) {
			return map[string]any{"script": ""}, nil
		})
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	require.NoError(t, orch.Process(context.Background(), lead))

	assert.Equal(t, model.StageFailed, lead.Stage)
	assert.Contains(t, lead.FailureDetail, "empty call script")
}

func TestProcess_ResumesFromPersistedStage(t *testing.T) {
	client := happyClient(85)
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	// A lead persisted mid-run at qualifying, enrichment already done.
	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	lead.EmployeeCount = 40
	lead.RevenueBand = "$5M-$10M"
	lead.Stage = model.StageQualifying
	lead.Version = 4

	require.NoError(t, orch.Process(context.Background(), lead))

	assert.Equal(t, model.StageOutreachSent, lead.Stage)
	assert.Equal(t, 0, client.callCount(model.CapabilityEnrich), "completed stages must not rerun")
	assert.Equal(t, 1, client.callCount(model.CapabilityQualify))
}

func TestProcess_CachedResultsSkipProvider(t *testing.T) {
	client := happyClient(85)
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	first := model.NewLead("Acme HVAC", "acmehvac.com")
	require.NoError(t, orch.Process(context.Background(), first))

	// Same company rediscovered: identical fingerprints serve every
	// stage from cache.
	second := model.NewLead("Acme HVAC", "acmehvac.com")
	require.NoError(t, orch.Process(context.Background(), second))

	assert.Equal(t, model.StageOutreachSent, second.Stage)
	assert.Equal(t, 1, client.callCount(model.CapabilityEnrich))
	assert.Equal(t, 1, client.callCount(model.CapabilityQualify))
	assert.Equal(t, 1, client.callCount(model.CapabilityCompose))
}

func TestProcess_CancellationPreservesStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := happyClient(85).
		on(model.CapabilityQualify, func(input map[string]any) (map[string]any, error) {
			cancel()
			return nil, context.Canceled
		})
	st := &memStore{}
	orch := newTestOrchestrator(client, st)

	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	err := orch.Process(ctx, lead)
	require.Error(t, err)

	// Interrupted, not failed: the lead stays at its last persisted stage.
	assert.Equal(t, model.StageQualifying, lead.Stage)
	assert.Equal(t, model.StageQualifying, st.lastStage())
}

func TestProcess_PersistFailureSurfaces(t *testing.T) {
	client := happyClient(85)
	st := &memStore{err: eris.New("both backends down")}
	emitter := &collectEmitter{}
	orch := newTestOrchestrator(client, st, emitter)

	lead := model.NewLead("Acme HVAC", "acmehvac.com")
	err := orch.Process(context.Background(), lead)
	require.Error(t, err)
	assert.Empty(t, emitter.stages(), "unpersisted transitions must not be emitted")
}
