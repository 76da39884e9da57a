package capability

import (
	"context"
	"errors"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/ondemand"
)

// ProviderFunc adapts a function to the Invoker interface.
type ProviderFunc func(ctx context.Context, capability string, input map[string]any) (map[string]any, error)

func (f ProviderFunc) Invoke(ctx context.Context, capability string, input map[string]any) (map[string]any, error) {
	return f(ctx, capability, input)
}

// agentBackend is the shape shared by the agent platform client and the
// Claude composer.
type agentBackend interface {
	InvokeAgent(ctx context.Context, capability string, input map[string]any) (map[string]any, error)
}

// NewPlatformInvoker adapts the agent platform client, translating its
// status errors into failure kinds. Transport errors pass through and
// are classified by the retry policy.
func NewPlatformInvoker(client ondemand.Client) Invoker {
	return ProviderFunc(func(ctx context.Context, capability string, input map[string]any) (map[string]any, error) {
		payload, err := client.InvokeAgent(ctx, capability, input)
		if err != nil {
			var apiErr *ondemand.APIError
			if errors.As(err, &apiErr) {
				kind := resilience.KindForStatus(apiErr.StatusCode)
				return nil, resilience.NewProviderError(kind, apiErr.StatusCode, err)
			}
			return nil, err
		}
		return payload, nil
	})
}

// NewBackendInvoker adapts any agent backend without error translation,
// used for the Claude composer whose failures carry no HTTP status.
func NewBackendInvoker(backend agentBackend) Invoker {
	return ProviderFunc(backend.InvokeAgent)
}

// Router dispatches capabilities to per-capability backends, falling
// back to the primary for everything unrouted.
type Router struct {
	primary Invoker
	routes  map[string]Invoker
}

// NewRouter creates a router around the primary backend.
func NewRouter(primary Invoker) *Router {
	return &Router{primary: primary, routes: make(map[string]Invoker)}
}

// Route sends a capability to a dedicated backend.
func (r *Router) Route(capability string, inv Invoker) {
	r.routes[capability] = inv
}

func (r *Router) Invoke(ctx context.Context, capability string, input map[string]any) (map[string]any, error) {
	if inv, ok := r.routes[capability]; ok {
		return inv.Invoke(ctx, capability, input)
	}
	return r.primary.Invoke(ctx, capability, input)
}
