package model

import "time"

// Capability names the external agent functions the pipeline invokes.
const (
	CapabilityEnrich     = "enrich_lead"
	CapabilityQualify    = "qualify_lead"
	CapabilityCompose    = "compose_email"
	CapabilityCallScript = "generate_call_script"
	CapabilityValidate   = "validate_contact"
)

// FailureKind classifies a capability call outcome for retry decisions.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureInvalidInput  FailureKind = "invalid_input"
	FailureProviderError FailureKind = "provider_error"
	FailureUnavailable   FailureKind = "unavailable"
)

// Retryable reports whether a failure of this kind is safe to retry.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTimeout, FailureRateLimited, FailureUnavailable, FailureProviderError:
		return true
	default:
		return false
	}
}

// CapabilityRequest is a call to a named provider capability. Input
// must be a canonicalizable mapping; Fingerprint is derived from the
// capability name plus the canonically serialized input.
type CapabilityRequest struct {
	Capability  string         `json:"capability"`
	Input       map[string]any `json:"input"`
	Fingerprint string         `json:"fingerprint"`
}

// NewCapabilityRequest builds a request and computes its fingerprint.
func NewCapabilityRequest(capability string, input map[string]any) (*CapabilityRequest, error) {
	fp, err := Fingerprint(capability, input)
	if err != nil {
		return nil, err
	}
	return &CapabilityRequest{Capability: capability, Input: input, Fingerprint: fp}, nil
}

// CapabilityResult is the outcome of a capability call. Results are
// immutable once cached.
type CapabilityResult struct {
	Capability  string         `json:"capability"`
	Success     bool           `json:"success"`
	Payload     map[string]any `json:"payload,omitempty"`
	FailureKind FailureKind    `json:"failure_kind,omitempty"`
	Detail      string         `json:"detail,omitempty"`
	Latency     time.Duration  `json:"latency"`
	CacheHit    bool           `json:"cache_hit"`
}

// ValidationError reports malformed input to a capability or a
// provider payload that does not match the capability's schema.
type ValidationError struct {
	Capability string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed for " + e.Capability + ": " + e.Reason
	}
	return "validation failed for " + e.Capability + ": field " + e.Field + ": " + e.Reason
}
