package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/provider/adapters"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// Client resolves model and prompt ids and calls providers with fallback.
// It implements classify.ModelClient.
type Client struct {
	registry *Registry
	health   *HealthTracker
	models   func() *config.ModelsConfig
	prompts  func() *config.PromptsConfig
	routing  func() config.RoutingConfig
	metrics  *telemetry.Metrics
}

var _ classify.ModelClient = (*Client)(nil)

func NewClient(
	registry *Registry,
	health *HealthTracker,
	models func() *config.ModelsConfig,
	prompts func() *config.PromptsConfig,
	routing func() config.RoutingConfig,
	metrics *telemetry.Metrics,
) *Client {
	return &Client{
		registry: registry,
		health:   health,
		models:   models,
		prompts:  prompts,
		routing:  routing,
		metrics:  metrics,
	}
}

// ClassifyYesNo sends input with the prompt promptID to model modelID and
// returns the raw answer. Providers are tried in order, skipping open
// circuits, up to 1+MaxRetries attempts each bounded by DefaultTimeout.
// Non-text answers are not retried.
func (c *Client) ClassifyYesNo(ctx context.Context, modelID, promptID, input string, trace types.TraceContext) (string, error) {
	prompt, ok := c.prompts().Prompts[promptID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPrompt, promptID)
	}
	candidates, err := Candidates(c.models(), c.registry, modelID)
	if err != nil {
		return "", err
	}

	routing := c.routing()
	attempts := 1 + routing.MaxRetries
	var lastErr error
	for _, cand := range candidates {
		if attempts == 0 {
			break
		}
		name := cand.Endpoint.Name
		if cand.Endpoint.Limiter != nil {
			if err := cand.Endpoint.Limiter.Wait(ctx); err != nil {
				c.record(name, "rate_limited")
				return "", fmt.Errorf("rate limit wait for %s: %w", name, err)
			}
		}
		if !c.health.Allow(name) {
			c.record(name, "circuit_open")
			continue
		}
		attempts--

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if routing.DefaultTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, routing.DefaultTimeout)
		}
		text, err := cand.Endpoint.Adapter.Complete(attemptCtx, &adapters.Request{
			Model:       cand.Model,
			System:      prompt.System,
			Input:       input,
			MaxTokens:   prompt.MaxTokens,
			Temperature: prompt.Temperature,
			Trace:       trace,
		})
		cancel()
		if err == nil {
			c.health.RecordSuccess(name)
			c.record(name, "ok")
			return text, nil
		}

		if errors.Is(err, classify.ErrNonText) {
			// The provider is healthy; the answer is unusable.
			c.health.RecordSuccess(name)
			c.record(name, "non_text")
			return "", err
		}
		if ctx.Err() != nil {
			c.record(name, "cancelled")
			return "", fmt.Errorf("%s: %w", name, err)
		}

		c.health.RecordFailure(name)
		c.record(name, "error")
		slog.Warn("classifier provider failed",
			"provider", name,
			"model", cand.Model,
			"error", err,
		)
		lastErr = err
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w for model %s: %w", ErrNoProvider, modelID, lastErr)
	}
	return "", fmt.Errorf("%w for model %s: all circuits open", ErrNoProvider, modelID)
}

func (c *Client) record(provider, status string) {
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(provider, status)
	}
}
