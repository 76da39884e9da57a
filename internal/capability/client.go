package capability

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Invoker is the transport boundary to a capability provider: given a
// capability name and structured input, return the provider payload or
// an error carrying a FailureKind.
type Invoker interface {
	Invoke(ctx context.Context, capability string, input map[string]any) (map[string]any, error)
}

// Stats holds the client's call counters.
type Stats struct {
	Invocations int64                       `json:"invocations"`
	Successes   int64                       `json:"successes"`
	Failures    map[model.FailureKind]int64 `json:"failures,omitempty"`
}

// Option configures the capability client.
type Option func(*Client)

// WithRetryConfig overrides the shared retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreakerConfig overrides the per-capability circuit breaker config.
func WithBreakerConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breakers = resilience.NewCapabilityBreakers(cfg) }
}

// WithRateLimit caps provider calls per capability at rps with the
// given burst. Zero rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rps
		c.burst = burst
	}
}

// WithSchemas replaces the schema registry.
func WithSchemas(registry map[string]Schema) Option {
	return func(c *Client) { c.schemas = registry }
}

// Client is the uniform call surface to any capability provider.
// Every invocation runs through the same schema validation, rate
// limiter, circuit breaker, and retry policy.
type Client struct {
	invoker  Invoker
	schemas  map[string]Schema
	retry    resilience.RetryConfig
	breakers *resilience.CapabilityBreakers

	rps   float64
	burst int

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	statsMu  sync.Mutex
	calls    int64
	oks      int64
	failures map[model.FailureKind]int64
}

// New creates a capability client around the given transport.
func New(invoker Invoker, opts ...Option) *Client {
	c := &Client{
		invoker:  invoker,
		schemas:  DefaultRegistry(),
		retry:    resilience.DefaultRetryConfig(),
		breakers: resilience.NewCapabilityBreakers(resilience.DefaultCircuitBreakerConfig()),
		limiters: make(map[string]*rate.Limiter),
		failures: make(map[model.FailureKind]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke calls the named capability. On failure the returned result is
// still populated with the failure kind and detail so callers can
// record the outcome; the error drives control flow.
func (c *Client) Invoke(ctx context.Context, req *model.CapabilityRequest) (*model.CapabilityResult, error) {
	schema, ok := c.schemas[req.Capability]
	if !ok {
		err := &model.ValidationError{Capability: req.Capability, Reason: "unknown capability"}
		return c.failureResult(req, err), err
	}
	if err := schema.ValidateInput(req.Capability, req.Input); err != nil {
		return c.failureResult(req, err), err
	}

	if lim := c.limiter(req.Capability); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return c.failureResult(req, err), err
		}
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(req.Capability, "invoke")
	}

	breaker := c.breakers.Get(req.Capability)
	start := time.Now()

	payload, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (map[string]any, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (map[string]any, error) {
			return c.invoker.Invoke(ctx, req.Capability, req.Input)
		})
	})
	latency := time.Since(start)

	if err == nil {
		if vErr := schema.ValidateOutput(req.Capability, payload); vErr != nil {
			err = vErr
		}
	}

	if err != nil {
		res := c.failureResult(req, err)
		res.Latency = latency
		return res, err
	}

	c.record(req.Capability, "")
	zap.L().Debug("capability invoked",
		zap.String("capability", req.Capability),
		zap.Duration("latency", latency),
	)
	return &model.CapabilityResult{
		Capability: req.Capability,
		Success:    true,
		Payload:    payload,
		Latency:    latency,
	}, nil
}

// Stats returns a snapshot of the call counters.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	failures := make(map[model.FailureKind]int64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}
	return Stats{Invocations: c.calls, Successes: c.oks, Failures: failures}
}

// BreakerStates exposes circuit breaker states for the status API.
func (c *Client) BreakerStates() map[string]resilience.CircuitState {
	return c.breakers.States()
}

func (c *Client) failureResult(req *model.CapabilityRequest, err error) *model.CapabilityResult {
	kind := resilience.KindOf(err)
	if kind == "" {
		kind = model.FailureProviderError
	}
	// Input/schema mismatches surface as invalid_input regardless of
	// how the error was produced.
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		kind = model.FailureInvalidInput
	}
	c.record(req.Capability, kind)
	return &model.CapabilityResult{
		Capability:  req.Capability,
		Success:     false,
		FailureKind: kind,
		Detail:      err.Error(),
	}
}

func (c *Client) record(capability string, kind model.FailureKind) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.calls++
	if kind == "" {
		c.oks++
		return
	}
	c.failures[kind]++
}

func (c *Client) limiter(capability string) *rate.Limiter {
	if c.rps <= 0 {
		return nil
	}
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	lim, ok := c.limiters[capability]
	if !ok {
		burst := c.burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.rps), burst)
		c.limiters[capability] = lim
	}
	return lim
}
