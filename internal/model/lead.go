package model

import (
	"fmt"
	"time"
)

// Stage represents a lead's position in the outreach pipeline.
type Stage string

const (
	StageDiscovered       Stage = "discovered"
	StageEnriching        Stage = "enriching"
	StageEnriched         Stage = "enriched"
	StageQualifying       Stage = "qualifying"
	StageQualified        Stage = "qualified"
	StageOutreachDrafting Stage = "outreach_drafting"
	StageOutreachSent     Stage = "outreach_sent"
	StageDisqualified     Stage = "disqualified"
	StageFailed           Stage = "failed"
)

// PriorityTier buckets a lead by ICP score for outreach sequencing.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// transitions is the legal forward-transition table. StageFailed is
// reachable from any non-terminal stage and is handled in CanAdvance.
var transitions = map[Stage][]Stage{
	StageDiscovered:       {StageEnriching},
	StageEnriching:        {StageEnriched},
	StageEnriched:         {StageQualifying},
	StageQualifying:       {StageQualified, StageDisqualified},
	StageQualified:        {StageOutreachDrafting, StageDisqualified},
	StageOutreachDrafting: {StageOutreachSent},
}

// StateError reports an illegal stage transition attempt.
type StateError struct {
	LeadID string
	From   Stage
	To     Stage
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for lead %s", e.From, e.To, e.LeadID)
}

// IsTerminal reports whether no further automated transition occurs.
func (s Stage) IsTerminal() bool {
	return s == StageOutreachSent || s == StageDisqualified || s == StageFailed
}

// DecisionMaker is a provider-sourced contact at the lead's company.
type DecisionMaker struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
}

// LeadRecord is the pipeline's unit of work. The orchestrator is the
// sole writer; every stage transition bumps Version and is persisted
// before the next stage starts.
type LeadRecord struct {
	ID string `json:"id"`

	// Discovery fields, present from creation.
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`

	// Enrichment fields, written at enriched.
	EmployeeCount  int             `json:"employee_count,omitempty"`
	RevenueBand    string          `json:"revenue_band,omitempty"`
	TechStack      []string        `json:"tech_stack,omitempty"`
	DecisionMakers []DecisionMaker `json:"decision_makers,omitempty"`

	// Qualification fields, written at qualified/disqualified.
	ICPScore     float64      `json:"icp_score,omitempty"`
	PriorityTier PriorityTier `json:"priority_tier,omitempty"`

	// Outreach artifacts, written at outreach_drafting.
	EmailSubject string `json:"email_subject,omitempty"`
	EmailDraft   string `json:"email_draft,omitempty"`
	CallScript   string `json:"call_script,omitempty"`

	// Validation flags, written at outreach_drafting.
	EmailVerified bool `json:"email_verified,omitempty"`
	PhoneVerified bool `json:"phone_verified,omitempty"`

	Stage         Stage     `json:"stage"`
	FailureDetail string    `json:"failure_detail,omitempty"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Version       int       `json:"version"`
}

// NewLead creates a LeadRecord at the discovered stage. The stable id
// is derived from the domain when present, else the normalized name.
func NewLead(name, domain string) *LeadRecord {
	now := time.Now().UTC()
	return &LeadRecord{
		ID:            LeadID(name, domain),
		Name:          name,
		Domain:        domain,
		Stage:         StageDiscovered,
		DiscoveredAt:  now,
		LastUpdatedAt: now,
		Version:       1,
	}
}

// CanAdvance reports whether moving to the given stage is legal from
// the lead's current stage.
func (l *LeadRecord) CanAdvance(to Stage) bool {
	if to == StageFailed {
		return !l.Stage.IsTerminal()
	}
	for _, next := range transitions[l.Stage] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance moves the lead to the given stage, bumping Version and
// LastUpdatedAt. Illegal transitions return a *StateError and leave
// the record unchanged.
func (l *LeadRecord) Advance(to Stage) error {
	if !l.CanAdvance(to) {
		return &StateError{LeadID: l.ID, From: l.Stage, To: to}
	}
	l.Stage = to
	l.Version++
	l.LastUpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves the lead to the failed stage recording the failure detail.
func (l *LeadRecord) Fail(detail string) error {
	if err := l.Advance(StageFailed); err != nil {
		return err
	}
	l.FailureDetail = detail
	return nil
}

// TierForScore derives the priority tier from an ICP score.
func TierForScore(score float64) PriorityTier {
	switch {
	case score >= 80:
		return TierHigh
	case score >= 60:
		return TierMedium
	default:
		return TierLow
	}
}
