// Package pipeline drives leads through the outreach stages: enrich,
// qualify, draft outreach, send. The orchestrator is the sole writer of
// lead records; every transition is persisted before the next stage
// starts, so a restart resumes from the last persisted stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/model"
)

// CapabilityClient is the provider call surface the orchestrator drives.
type CapabilityClient interface {
	Invoke(ctx context.Context, req *model.CapabilityRequest) (*model.CapabilityResult, error)
}

// LeadStore is the persistence surface the orchestrator needs.
type LeadStore interface {
	SaveLead(ctx context.Context, lead *model.LeadRecord) error
}

// Config holds the orchestration knobs.
type Config struct {
	// QualificationCutoff is the minimum ICP score that qualifies a
	// lead. A score equal to the cutoff qualifies.
	QualificationCutoff float64
	// ICPCriteria is passed verbatim to the qualification capability.
	ICPCriteria map[string]any
	// CampaignType and Tone shape the composed email.
	CampaignType string
	Tone         string
	// CallObjective shapes the generated call script.
	CallObjective string
	// ValidateContacts runs contact validation during outreach drafting.
	ValidateContacts bool
}

// DefaultConfig returns the orchestration defaults.
func DefaultConfig() Config {
	return Config{
		QualificationCutoff: 60,
		ICPCriteria: map[string]any{
			"min_employees": 10,
			"max_employees": 500,
		},
		CampaignType:     "cold_outreach",
		CallObjective:    "book_discovery_call",
		ValidateContacts: true,
	}
}

// Orchestrator runs one lead at a time through the stage machine.
type Orchestrator struct {
	client   CapabilityClient
	cache    *cache.Cache
	store    LeadStore
	cfg      Config
	emitters []Emitter
}

// New creates an Orchestrator. Emitters receive every persisted
// transition in order.
func New(client CapabilityClient, c *cache.Cache, st LeadStore, cfg Config, emitters ...Emitter) *Orchestrator {
	return &Orchestrator{
		client:   client,
		cache:    c,
		store:    st,
		cfg:      cfg,
		emitters: emitters,
	}
}

// Process advances the lead until it reaches a terminal stage. A lead
// that fails a capability terminally lands in the failed stage and
// Process returns nil; the record carries the failure detail. Process
// returns an error only when persistence fails on both backends or the
// context ends, leaving the lead at its last persisted stage.
func (o *Orchestrator) Process(ctx context.Context, lead *model.LeadRecord) error {
	log := zap.L().With(zap.String("lead_id", lead.ID), zap.String("name", lead.Name))
	log.Info("processing lead", zap.String("stage", string(lead.Stage)))

	for !lead.Stage.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: lead %s interrupted at %s", lead.ID, lead.Stage)
		}

		var err error
		switch lead.Stage {
		case model.StageDiscovered, model.StageEnriching:
			err = o.enrich(ctx, lead)
		case model.StageEnriched, model.StageQualifying:
			err = o.qualify(ctx, lead)
		case model.StageQualified, model.StageOutreachDrafting:
			err = o.draftOutreach(ctx, lead)
		default:
			return eris.Errorf("pipeline: lead %s in unknown stage %s", lead.ID, lead.Stage)
		}
		if err != nil {
			return err
		}
	}

	log.Info("lead reached terminal stage",
		zap.String("stage", string(lead.Stage)),
		zap.Int("version", lead.Version),
	)
	return nil
}

// enrich runs discovered→enriching→enriched.
func (o *Orchestrator) enrich(ctx context.Context, lead *model.LeadRecord) error {
	if lead.Stage == model.StageDiscovered {
		if err := o.advance(ctx, lead, model.StageEnriching, 0, ""); err != nil {
			return err
		}
	}

	input := map[string]any{"company_name": lead.Name}
	if lead.Domain != "" {
		input["domain"] = lead.Domain
	}
	if lead.Location != "" {
		input["location"] = lead.Location
	}

	res, err := o.invoke(ctx, model.CapabilityEnrich, input)
	if err != nil {
		return o.failLead(ctx, lead, err)
	}

	applyEnrichment(lead, res.Payload)
	return o.advance(ctx, lead, model.StageEnriched, 0, "")
}

// qualify runs enriched→qualifying→qualified|disqualified.
func (o *Orchestrator) qualify(ctx context.Context, lead *model.LeadRecord) error {
	if lead.Stage == model.StageEnriched {
		if err := o.advance(ctx, lead, model.StageQualifying, 0, ""); err != nil {
			return err
		}
	}

	input := map[string]any{
		"lead_data":    leadProfile(lead),
		"icp_criteria": o.cfg.ICPCriteria,
	}
	res, err := o.invoke(ctx, model.CapabilityQualify, input)
	if err != nil {
		return o.failLead(ctx, lead, err)
	}

	score := asFloat(res.Payload["score"])
	lead.ICPScore = score
	lead.PriorityTier = model.TierForScore(score)

	if score >= o.cfg.QualificationCutoff {
		return o.advance(ctx, lead, model.StageQualified, score, "")
	}
	detail := fmt.Sprintf("score %.1f below cutoff %.1f", score, o.cfg.QualificationCutoff)
	return o.advance(ctx, lead, model.StageDisqualified, score, detail)
}

// draftOutreach runs qualified→outreach_drafting→outreach_sent. Each
// artifact is a separate cached capability call, so a resumed draft
// skips the pieces already generated.
func (o *Orchestrator) draftOutreach(ctx context.Context, lead *model.LeadRecord) error {
	if lead.Stage == model.StageQualified {
		if err := o.advance(ctx, lead, model.StageOutreachDrafting, 0, ""); err != nil {
			return err
		}
	}

	// Inputs derive only from pre-outreach fields so fingerprints stay
	// stable across a resume.
	profile := leadProfile(lead)

	composeInput := map[string]any{
		"lead_profile":  profile,
		"campaign_type": o.cfg.CampaignType,
	}
	if o.cfg.Tone != "" {
		composeInput["tone"] = o.cfg.Tone
	}
	res, err := o.invoke(ctx, model.CapabilityCompose, composeInput)
	if err != nil {
		return o.failLead(ctx, lead, err)
	}
	lead.EmailSubject = asString(res.Payload["subject"])
	lead.EmailDraft = asString(res.Payload["body"])
	if lead.EmailSubject == "" || lead.EmailDraft == "" {
		return o.failLead(ctx, lead, &model.ValidationError{
			Capability: model.CapabilityCompose,
			Field:      "body",
			Reason:     "empty email draft",
		})
	}

	res, err = o.invoke(ctx, model.CapabilityCallScript, map[string]any{
		"lead_context":   profile,
		"call_objective": o.cfg.CallObjective,
	})
	if err != nil {
		return o.failLead(ctx, lead, err)
	}
	lead.CallScript = asString(res.Payload["script"])
	if lead.CallScript == "" {
		return o.failLead(ctx, lead, &model.ValidationError{
			Capability: model.CapabilityCallScript,
			Field:      "script",
			Reason:     "empty call script",
		})
	}

	if o.cfg.ValidateContacts && (lead.Email != "" || lead.Phone != "") {
		contact := map[string]any{}
		if lead.Email != "" {
			contact["email"] = lead.Email
		}
		if lead.Phone != "" {
			contact["phone"] = lead.Phone
		}
		res, err = o.invoke(ctx, model.CapabilityValidate, map[string]any{"data": contact})
		if err != nil {
			return o.failLead(ctx, lead, err)
		}
		lead.EmailVerified = asBool(res.Payload["email_verified"])
		lead.PhoneVerified = asBool(res.Payload["phone_verified"])
	}

	return o.advance(ctx, lead, model.StageOutreachSent, lead.ICPScore, "")
}

// invoke builds a fingerprinted request and routes it through the
// shared cache so identical in-flight calls collapse to one.
func (o *Orchestrator) invoke(ctx context.Context, capability string, input map[string]any) (*model.CapabilityResult, error) {
	req, err := model.NewCapabilityRequest(capability, input)
	if err != nil {
		return nil, err
	}
	return o.cache.GetOrCompute(ctx, req.Fingerprint, func(ctx context.Context) (*model.CapabilityResult, error) {
		return o.client.Invoke(ctx, req)
	})
}

// advance persists the transition and emits it. A persistence failure
// leaves the record advanced in memory only; the caller surfaces the
// error and the lead is retried from its last persisted stage.
func (o *Orchestrator) advance(ctx context.Context, lead *model.LeadRecord, to model.Stage, score float64, detail string) error {
	from := lead.Stage
	if err := lead.Advance(to); err != nil {
		return err
	}
	if to == model.StageDisqualified {
		lead.FailureDetail = detail
	}
	if err := o.store.SaveLead(ctx, lead); err != nil {
		return eris.Wrapf(err, "pipeline: persist lead %s at %s", lead.ID, to)
	}
	o.emit(Event{LeadID: lead.ID, From: from, To: to, Score: score, Detail: detail, At: time.Now().UTC()})
	return nil
}

// failLead moves the lead to failed after a terminal capability error.
// Context cancellation is not a lead failure; it propagates so the lead
// stays at its last persisted stage.
func (o *Orchestrator) failLead(ctx context.Context, lead *model.LeadRecord, cause error) error {
	if errors.Is(cause, context.Canceled) || ctx.Err() != nil {
		return cause
	}

	from := lead.Stage
	if err := lead.Fail(eris.Cause(cause).Error()); err != nil {
		return err
	}
	if err := o.store.SaveLead(ctx, lead); err != nil {
		return eris.Wrapf(err, "pipeline: persist failed lead %s", lead.ID)
	}
	o.emit(Event{LeadID: lead.ID, From: from, To: model.StageFailed, Detail: lead.FailureDetail, At: time.Now().UTC()})

	zap.L().Warn("lead failed",
		zap.String("lead_id", lead.ID),
		zap.String("at_stage", string(from)),
		zap.Error(cause),
	)
	return nil
}

func (o *Orchestrator) emit(ev Event) {
	for _, e := range o.emitters {
		e.Emit(ev)
	}
}

// leadProfile projects the fields capability inputs may see. Outreach
// artifacts are deliberately excluded to keep fingerprints stable.
func leadProfile(lead *model.LeadRecord) map[string]any {
	profile := map[string]any{
		"id":   lead.ID,
		"name": lead.Name,
	}
	if lead.Domain != "" {
		profile["domain"] = lead.Domain
	}
	if lead.Location != "" {
		profile["location"] = lead.Location
	}
	if lead.Category != "" {
		profile["category"] = lead.Category
	}
	if lead.EmployeeCount > 0 {
		profile["employee_count"] = lead.EmployeeCount
	}
	if lead.RevenueBand != "" {
		profile["revenue_band"] = lead.RevenueBand
	}
	if len(lead.TechStack) > 0 {
		profile["tech_stack"] = lead.TechStack
	}
	if len(lead.DecisionMakers) > 0 {
		names := make([]string, 0, len(lead.DecisionMakers))
		for _, dm := range lead.DecisionMakers {
			label := dm.Name
			if dm.Title != "" {
				label += " (" + dm.Title + ")"
			}
			names = append(names, label)
		}
		profile["decision_makers"] = names
	}
	if lead.ICPScore > 0 {
		profile["icp_score"] = lead.ICPScore
		profile["priority_tier"] = string(lead.PriorityTier)
	}
	return profile
}

// applyEnrichment copies provider enrichment fields onto the record.
func applyEnrichment(lead *model.LeadRecord, payload map[string]any) {
	if n := asFloat(payload["employee_count"]); n > 0 {
		lead.EmployeeCount = int(n)
	}
	if s := asString(payload["revenue_band"]); s != "" {
		lead.RevenueBand = s
	}
	if ts := asStringSlice(payload["tech_stack"]); len(ts) > 0 {
		lead.TechStack = ts
	}
	if dms, ok := payload["decision_makers"].([]any); ok {
		for _, raw := range dms {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			dm := model.DecisionMaker{
				Name:  asString(m["name"]),
				Title: asString(m["title"]),
				Email: asString(m["email"]),
			}
			if dm.Name == "" {
				continue
			}
			lead.DecisionMakers = append(lead.DecisionMakers, dm)
			if lead.Email == "" && dm.Email != "" {
				lead.Email = dm.Email
			}
		}
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
