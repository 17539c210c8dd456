// Package app assembles the gate pipeline from configuration. The server and
// gatectl share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter/bannedword"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter/injection"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter/politics"
	"github.com/bezhai/inner-bot-server-sub001/internal/gate"
	"github.com/bezhai/inner-bot-server-sub001/internal/provider"
	"github.com/bezhai/inner-bot-server-sub001/internal/router"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
)

// Source is the configuration the pipeline reads. *config.Loader implements it.
type Source interface {
	Config() *config.Config
	Routes() *config.RoutesConfig
	Models() *config.ModelsConfig
	Providers() *config.ProvidersConfig
	Prompts() *config.PromptsConfig
}

type Options struct {
	Words   bannedword.Store
	Auditor gate.Auditor
	Metrics *telemetry.Metrics
	// Client overrides the provider-backed model client. Used by tests.
	Client  classify.ModelClient
}

// Gate is the assembled pipeline.
type Gate struct {
	Orchestrator *gate.Orchestrator
	Tables       *router.TableRef
	Registry     *provider.Registry
	Health       *provider.HealthTracker

	src       Source
	policy    *router.PolicySelector
	// providers is the configuration Registry was built from.
	providers config.ProvidersConfig
}

func Build(src Source, opts Options) (*Gate, error) {
	cfg := src.Config()
	if opts.Words == nil {
		opts.Words = noWords{}
	}

	g := &Gate{src: src}

	client := opts.Client
	if client == nil {
		provCfg := src.Providers()
		registry, err := provider.BuildFromConfig(provCfg)
		if err != nil {
			return nil, fmt.Errorf("build provider registry: %w", err)
		}
		cb := cfg.Routing.CircuitBreaker
		g.Registry = registry
		g.providers = *provCfg
		g.Health = provider.NewHealthTracker(cb.FailureThreshold, cb.RecoveryProbeInterval)
		client = provider.NewClient(
			registry,
			g.Health,
			src.Models,
			src.Prompts,
			func() config.RoutingConfig { return src.Config().Routing },
			opts.Metrics,
		)
	}

	detectors := []filter.Detector{
		bannedword.NewDetector(opts.Words, func() config.BannedWordFilterConfig { return src.Config().Filter.BannedWord }, opts.Metrics),
		injection.NewDetector(client, func() config.InjectionFilterConfig { return src.Config().Filter.Injection }),
		politics.NewDetector(client, func() config.PoliticsFilterConfig { return src.Config().Filter.Politics }),
	}

	stages, err := classify.BuildStages(cfg.Classifier.Stages, client)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	cascade := classify.NewCascade(stages, cfg.Classifier.Timeout, opts.Metrics)

	table, err := router.NewTableFromConfig(src.Routes())
	if err != nil {
		g.Close()
		return nil, err
	}
	g.Tables = router.NewTableRef(table)

	var selector router.Selector
	if cfg.Gate.RoutePolicy.Enabled {
		g.policy = router.NewPolicySelector(func() config.RoutePolicyConfig { return src.Config().Gate.RoutePolicy })
		if err := g.policy.Load(); err != nil {
			g.Close()
			return nil, fmt.Errorf("load route policy: %w", err)
		}
		selector = g.policy
	}

	g.Orchestrator = gate.NewOrchestrator(
		detectors,
		cascade,
		router.New(g.Tables, selector),
		func() config.GateConfig { return src.Config().Gate },
		opts.Metrics,
		opts.Auditor,
	)
	return g, nil
}

// Reload applies a changed configuration. The routing table, providers and
// route policy are swapped; an invalid table leaves the previous one in
// place. Providers are rebuilt only when their configuration changed, and
// the replaced adapters stay open for one attempt timeout. Classifier
// stages only change on restart.
func (g *Gate) Reload() error {
	table, err := router.NewTableFromConfig(g.src.Routes())
	if err != nil {
		return fmt.Errorf("routing table rejected: %w", err)
	}
	g.Tables.Store(table)

	if g.Registry != nil {
		provCfg := g.src.Providers()
		if !reflect.DeepEqual(*provCfg, g.providers) {
			registry, err := provider.BuildFromConfig(provCfg)
			if err != nil {
				return fmt.Errorf("provider registry rejected: %w", err)
			}
			g.Registry.Swap(registry, swapGrace(g.src.Config().Routing))
			g.Health.Reset()
			g.providers = *provCfg
			slog.Info("providers rebuilt", "count", len(provCfg.Providers))
		}
	}

	if g.policy != nil {
		if err := g.policy.Load(); err != nil {
			return fmt.Errorf("route policy rejected: %w", err)
		}
	}
	return nil
}

// ProviderHealth reports breaker states, or nil without a registry.
func (g *Gate) ProviderHealth() []provider.ProviderHealth {
	if g.Health == nil {
		return nil
	}
	return g.Health.Snapshot()
}

func (g *Gate) Close() {
	if g.Registry != nil {
		g.Registry.Close()
	}
}

// swapGrace is how long replaced adapters stay open: one attempt timeout,
// or 30s when attempts are unbounded.
func swapGrace(routing config.RoutingConfig) time.Duration {
	if routing.DefaultTimeout > 0 {
		return routing.DefaultTimeout
	}
	return 30 * time.Second
}

type noWords struct{}

func (noWords) BannedWords(context.Context) ([]string, error) { return nil, nil }
