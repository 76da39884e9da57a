// Package ondemand provides a client for the On-demand.io agent
// platform, which hosts the enrichment, qualification, composition,
// and validation agents behind a uniform invoke endpoint.
package ondemand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client invokes a named agent with structured input.
type Client interface {
	// InvokeAgent calls the agent mapped to the capability and returns
	// its result mapping.
	InvokeAgent(ctx context.Context, capability string, input map[string]any) (map[string]any, error)
}

// APIError is a non-2xx platform response. Callers classify
// retryability from the status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ondemand: status %d: %s", e.StatusCode, e.Message)
}

// DefaultAgents maps capability names to the platform's agent ids.
var DefaultAgents = map[string]string{
	"enrich_lead":          "agent_enrich_lead_data_v2",
	"qualify_lead":         "agent_qualify_b2b_leads_v3",
	"compose_email":        "agent_compose_outreach_email_v2",
	"generate_call_script": "agent_generate_call_script_v1",
	"validate_contact":     "agent_validate_business_data_v1",
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithAgents overrides the capability to agent-id mapping.
func WithAgents(agents map[string]string) Option {
	return func(c *httpClient) {
		c.agents = agents
	}
}

type httpClient struct {
	apiKey      string
	workspaceID string
	baseURL     string
	agents      map[string]string
	http        *http.Client
}

// NewClient creates an On-demand.io client. Retries belong to the
// caller's retry policy; each InvokeAgent call is a single attempt.
func NewClient(apiKey, workspaceID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		workspaceID: workspaceID,
		baseURL:     "https://api.ondemand.io/v1",
		agents:      DefaultAgents,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// invokeRequest is the platform's invoke payload.
type invokeRequest struct {
	Input map[string]any `json:"input"`
	Async bool           `json:"async"`
}

// invokeResponse is the platform's invoke response envelope.
type invokeResponse struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result"`
	Error  string         `json:"error,omitempty"`
}

func (c *httpClient) InvokeAgent(ctx context.Context, capability string, input map[string]any) (map[string]any, error) {
	agentID, ok := c.agents[capability]
	if !ok {
		agentID = capability
	}
	endpoint := fmt.Sprintf("%s/workspaces/%s/agents/%s/invoke", c.baseURL, c.workspaceID, agentID)

	body, err := json.Marshal(invokeRequest{Input: input})
	if err != nil {
		return nil, eris.Wrapf(err, "ondemand: marshal input for %s", capability)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "ondemand: create request for %s", capability)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OnDemand-Workspace", c.workspaceID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "ondemand: invoke %s", capability)
	}
	defer resp.Body.Close()

	var parsed invokeResponse
	dec := json.NewDecoder(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := ""
		if dec.Decode(&parsed) == nil {
			msg = parsed.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := dec.Decode(&parsed); err != nil {
		return nil, eris.Wrapf(err, "ondemand: decode response for %s", capability)
	}
	if parsed.Status != "success" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	return parsed.Result, nil
}
