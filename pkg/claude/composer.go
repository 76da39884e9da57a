package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// DefaultModel is the composition model when none is configured.
	DefaultModel = "claude-sonnet-4-5-20250929"

	defaultMaxTokens = 2048
)

const composerSystemPrompt = `You are a B2B sales copywriter. You respond with a single JSON object and nothing else. No markdown fences, no commentary.`

// Composer drafts outreach content with Claude. It only understands the
// composition capabilities; callers route everything else to the agent
// platform.
type Composer struct {
	client    Client
	model     string
	maxTokens int64
}

// ComposerOption configures the composer.
type ComposerOption func(*Composer)

// WithModel overrides the composition model.
func WithModel(model string) ComposerOption {
	return func(c *Composer) { c.model = model }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) ComposerOption {
	return func(c *Composer) { c.maxTokens = n }
}

// NewComposer creates a Claude-backed composer.
func NewComposer(client Client, opts ...ComposerOption) *Composer {
	c := &Composer{
		client:    client,
		model:     DefaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InvokeAgent drafts content for the given capability and returns the
// structured payload. Unsupported capabilities error immediately.
func (c *Composer) InvokeAgent(ctx context.Context, capability string, input map[string]any) (map[string]any, error) {
	prompt, err := buildPrompt(capability, input)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.CreateMessage(ctx, MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    composerSystemPrompt,
		Messages:  []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(resp.Model, capability)

	payload, err := parseJSONObject(resp.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "claude: parse %s response", capability)
	}
	return payload, nil
}

func buildPrompt(capability string, input map[string]any) (string, error) {
	ctxJSON, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "claude: marshal prompt context")
	}

	switch capability {
	case "compose_email":
		return fmt.Sprintf(`Write a cold outreach email for the lead below.

%s

Return a JSON object with keys "subject" (string) and "body" (string).
Keep the body under 150 words and reference at least one concrete fact
from the lead profile.`, ctxJSON), nil
	case "generate_call_script":
		return fmt.Sprintf(`Write a discovery call script for the lead below.

%s

Return a JSON object with key "script" (string). Structure the script
as opener, two qualifying questions, and a close tied to the call
objective.`, ctxJSON), nil
	default:
		return "", eris.Errorf("claude: unsupported capability %s", capability)
	}
}

// parseJSONObject extracts the JSON object from a model response,
// tolerating stray text or code fences around it.
func parseJSONObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("no JSON object in response")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, eris.Wrap(err, "unmarshal response object")
	}
	return payload, nil
}
