package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/capability"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/claude"
	"github.com/sells-group/outreach-cli/pkg/ondemand"
)

// pipelineEnv holds the wired store facade, orchestrator, and
// monitoring pieces needed by the run/batch/serve commands.
type pipelineEnv struct {
	Store        *store.Facade
	Orchestrator *pipeline.Orchestrator
	Batch        *pipeline.Batch
	Client       *capability.Client
	Cache        *cache.Cache
	Collector    *monitoring.Collector
	Alerter      *monitoring.Alerter
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore builds the facade: configured primary plus the local file
// fallback.
func initStore(ctx context.Context, alerter *monitoring.Alerter) (*store.Facade, error) {
	var primary store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (OUTREACH_STORE_DATABASE_URL)")
		}
		primary, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		primary, err = store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		// A down primary is a degraded start, not a fatal one; the
		// facade routes to the fallback until it recovers.
		zap.L().Warn("primary store init failed, starting degraded", zap.Error(err))
		primary = store.Unavailable(err)
	}

	fallback, err := store.NewFileStore(cfg.Store.FallbackDir)
	if err != nil {
		return nil, err
	}

	opts := []store.FacadeOption{
		store.WithProbeInterval(time.Duration(cfg.Store.ProbeSeconds) * time.Second),
		store.WithDegradedHook(alerter.StorageDegraded),
		store.WithUnavailableHook(alerter.StorageUnavailable),
	}
	facade := store.NewFacade(ctx, primary, fallback, opts...)

	if err := facade.Migrate(ctx); err != nil {
		_ = facade.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return facade, nil
}

// initCapabilityClient wires the provider backends behind the uniform
// capability client.
func initCapabilityClient() (*capability.Client, error) {
	odOpts := []ondemand.Option{}
	if cfg.OnDemand.BaseURL != "" {
		odOpts = append(odOpts, ondemand.WithBaseURL(cfg.OnDemand.BaseURL))
	}
	if len(cfg.OnDemand.Agents) > 0 {
		odOpts = append(odOpts, ondemand.WithAgents(cfg.OnDemand.Agents))
	}
	platform := capability.NewPlatformInvoker(ondemand.NewClient(cfg.OnDemand.Key, cfg.OnDemand.WorkspaceID, odOpts...))

	var invoker capability.Invoker = platform
	if cfg.Claude.UseComposer && cfg.Claude.Key != "" {
		composer := claude.NewComposer(
			claude.NewClient(cfg.Claude.Key),
			claude.WithModel(cfg.Claude.Model),
			claude.WithMaxTokens(cfg.Claude.MaxTokens),
		)
		router := capability.NewRouter(platform)
		router.Route("compose_email", capability.NewBackendInvoker(composer))
		router.Route("generate_call_script", capability.NewBackendInvoker(composer))
		invoker = router
		zap.L().Info("claude composer enabled", zap.String("model", cfg.Claude.Model))
	}

	schemas, err := capability.LoadRegistry(cfg.OnDemand.SchemaPath)
	if err != nil {
		return nil, err
	}

	retryCfg := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMS,
		cfg.Retry.MaxBackoffMS,
		cfg.Retry.BackoffMultiplier,
		-1,
	)
	breakerCfg := resilience.FromCircuitConfig(cfg.Retry.FailureThreshold, cfg.Retry.CooldownSeconds)

	return capability.New(invoker,
		capability.WithSchemas(schemas),
		capability.WithRetryConfig(retryCfg),
		capability.WithBreakerConfig(breakerCfg),
		capability.WithRateLimit(cfg.OnDemand.RateLimit, cfg.OnDemand.RateBurst),
	), nil
}

// initPipeline sets up the store facade, capability client, cache, and
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	alerter := monitoring.NewAlerter(cfg.Alerting)

	facade, err := initStore(ctx, alerter)
	if err != nil {
		return nil, err
	}

	client, err := initCapabilityClient()
	if err != nil {
		_ = facade.Close()
		return nil, err
	}

	resultCache := cache.New(time.Duration(cfg.Cache.TTLHours)*time.Hour, cfg.Cache.MaxEntries)
	collector := monitoring.NewCollector()

	orchCfg := pipeline.DefaultConfig()
	orchCfg.QualificationCutoff = cfg.Pipeline.QualificationCutoff
	orchCfg.CampaignType = cfg.Pipeline.CampaignType
	orchCfg.Tone = cfg.Pipeline.Tone
	orchCfg.CallObjective = cfg.Pipeline.CallObjective
	orchCfg.ValidateContacts = cfg.Pipeline.ValidateContacts
	if len(cfg.Pipeline.ICPCriteria) > 0 {
		orchCfg.ICPCriteria = cfg.Pipeline.ICPCriteria
	} else {
		zap.L().Warn("pipeline.icp_criteria not configured, using defaults")
	}

	orch := pipeline.New(client, resultCache, facade, orchCfg, pipeline.LogEmitter(), collector)

	return &pipelineEnv{
		Store:        facade,
		Orchestrator: orch,
		Batch:        pipeline.NewBatch(orch),
		Client:       client,
		Cache:        resultCache,
		Collector:    collector,
		Alerter:      alerter,
	}, nil
}
