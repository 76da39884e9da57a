package capability

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// scriptedInvoker returns queued responses in order, recording calls.
type scriptedInvoker struct {
	responses []func() (map[string]any, error)
	calls     int
}

func (s *scriptedInvoker) Invoke(ctx context.Context, capability string, input map[string]any) (map[string]any, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx]()
}

func fastClient(invoker Invoker) *Client {
	return New(invoker, WithRetryConfig(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1.0,
	}))
}

func mustRequest(t *testing.T, capability string, input map[string]any) *model.CapabilityRequest {
	t.Helper()
	req, err := model.NewCapabilityRequest(capability, input)
	require.NoError(t, err)
	return req
}

func TestInvoke_Success(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) {
			return map[string]any{"score": 85.0, "reasons": []any{"fits ICP"}}, nil
		},
	}}
	client := fastClient(invoker)

	req := mustRequest(t, model.CapabilityQualify, map[string]any{
		"lead_data":    map[string]any{"name": "Acme"},
		"icp_criteria": map[string]any{"min_employees": 10},
	})
	res, err := client.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 85.0, res.Payload["score"])
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, invoker.calls)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.Invocations)
	assert.Equal(t, int64(1), stats.Successes)
}

func TestInvoke_UnknownCapability(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, nil },
	}}
	client := fastClient(invoker)

	req := mustRequest(t, "summon_demon", map[string]any{"name": "Acme"})
	res, err := client.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, model.FailureInvalidInput, res.FailureKind)
	assert.Equal(t, 0, invoker.calls, "provider must not be called for unknown capabilities")
}

func TestInvoke_InputValidationFailsBeforeProvider(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) { return nil, nil },
	}}
	client := fastClient(invoker)

	req := mustRequest(t, model.CapabilityEnrich, map[string]any{"domain": "acme.com"})
	res, err := client.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, model.FailureInvalidInput, res.FailureKind)
	assert.Equal(t, 0, invoker.calls)
}

func TestInvoke_RetriesRetryableFailures(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) {
			return nil, resilience.NewProviderError(model.FailureUnavailable, 0, eris.New("conn refused"))
		},
		func() (map[string]any, error) {
			return map[string]any{"employee_count": 40.0}, nil
		},
	}}
	client := fastClient(invoker)

	req := mustRequest(t, model.CapabilityEnrich, map[string]any{"company_name": "Acme HVAC"})
	res, err := client.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, invoker.calls)
}

func TestInvoke_TerminalFailureNotRetried(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) {
			return nil, resilience.NewProviderError(model.FailureInvalidInput, 400, eris.New("bad payload"))
		},
	}}
	client := fastClient(invoker)

	req := mustRequest(t, model.CapabilityEnrich, map[string]any{"company_name": "Acme"})
	res, err := client.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, model.FailureInvalidInput, res.FailureKind)
	assert.Equal(t, 1, invoker.calls)
}

func TestInvoke_ExhaustedRetriesReportKind(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) {
			return nil, resilience.NewProviderError(model.FailureRateLimited, 429, eris.New("slow down"))
		},
	}}
	client := fastClient(invoker)

	req := mustRequest(t, model.CapabilityEnrich, map[string]any{"company_name": "Acme"})
	res, err := client.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.FailureRateLimited, res.FailureKind)
	assert.NotEmpty(t, res.Detail)
	assert.Equal(t, 3, invoker.calls)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.Failures[model.FailureRateLimited])
}

func TestInvoke_OutputValidationFailure(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) {
			// Missing required score.
			return map[string]any{"reasons": []any{"looks fine"}}, nil
		},
	}}
	client := fastClient(invoker)

	req := mustRequest(t, model.CapabilityQualify, map[string]any{
		"lead_data":    map[string]any{},
		"icp_criteria": map[string]any{},
	})
	res, err := client.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, model.FailureInvalidInput, res.FailureKind)
}

func TestInvoke_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	invoker := &scriptedInvoker{responses: []func() (map[string]any, error){
		func() (map[string]any, error) {
			return nil, resilience.NewProviderError(model.FailureProviderError, 500, eris.New("down"))
		},
	}}
	client := New(invoker,
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}),
		WithBreakerConfig(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}),
	)

	req := mustRequest(t, model.CapabilityEnrich, map[string]any{"company_name": "Acme"})
	for i := 0; i < 2; i++ {
		_, err := client.Invoke(context.Background(), req)
		require.Error(t, err)
	}

	states := client.BreakerStates()
	assert.Equal(t, resilience.CircuitOpen, states[model.CapabilityEnrich])

	// The open breaker rejects without reaching the provider.
	before := invoker.calls
	_, err := client.Invoke(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, before, invoker.calls)
}
