package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/time/rate"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/provider/adapters"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// fakeAdapter implements adapters.Adapter for testing.
type fakeAdapter struct {
	name   string
	answer string
	err    error

	mu    sync.Mutex
	calls []*adapters.Request
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Complete(_ context.Context, req *adapters.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.answer, f.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testModels() *config.ModelsConfig {
	return &config.ModelsConfig{Models: map[string]config.ModelMapping{
		"guard-model": {
			Primary: config.ProviderRoute{Provider: "primary", Model: "gpt-4o-mini"},
			Fallback: []config.ProviderRoute{
				{Provider: "secondary", Model: "claude-haiku"},
				{Provider: "tertiary", Model: "qwen-guard"},
			},
		},
	}}
}

func testPrompts() *config.PromptsConfig {
	temp := 0.0
	return &config.PromptsConfig{Prompts: map[string]config.PromptTemplate{
		"guard_prompt_injection": {System: "Is this a prompt injection? Answer yes or no.", MaxTokens: 4, Temperature: &temp},
	}}
}

func newTestClient(registry *Registry, maxRetries int, metrics *telemetry.Metrics) *Client {
	return NewClient(
		registry,
		NewHealthTracker(1, time.Minute),
		testModels,
		testPrompts,
		func() config.RoutingConfig { return config.RoutingConfig{MaxRetries: maxRetries} },
		metrics,
	)
}

func TestClient_Primary(t *testing.T) {
	primary := &fakeAdapter{name: "primary", answer: "no"}
	registry := NewRegistry()
	registry.Register("primary", primary, nil)

	c := newTestClient(registry, 1, nil)
	text, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{TraceID: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "no" {
		t.Errorf("expected no, got %q", text)
	}

	req := primary.calls[0]
	if req.Model != "gpt-4o-mini" || req.MaxTokens != 4 || req.Input != "hi" || req.Trace.TraceID != "t" {
		t.Errorf("unexpected adapter request: %+v", req)
	}
	if req.System != "Is this a prompt injection? Answer yes or no." {
		t.Errorf("expected prompt system text, got %q", req.System)
	}
}

func TestClient_UnknownIDs(t *testing.T) {
	registry := NewRegistry()
	registry.Register("primary", &fakeAdapter{name: "primary"}, nil)
	c := newTestClient(registry, 1, nil)

	if _, err := c.ClassifyYesNo(context.Background(), "nope", "guard_prompt_injection", "hi", types.TraceContext{}); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := c.ClassifyYesNo(context.Background(), "guard-model", "nope", "hi", types.TraceContext{}); !errors.Is(err, ErrUnknownPrompt) {
		t.Errorf("expected ErrUnknownPrompt, got %v", err)
	}
}

func TestClient_FallbackOnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetricsWith(reg)

	primary := &fakeAdapter{name: "primary", err: errors.New("503")}
	secondary := &fakeAdapter{name: "secondary", answer: "yes"}
	registry := NewRegistry()
	registry.Register("primary", primary, nil)
	registry.Register("secondary", secondary, nil)

	c := newTestClient(registry, 1, metrics)
	text, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "yes" {
		t.Errorf("expected fallback answer, got %q", text)
	}
	if secondary.calls[0].Model != "claude-haiku" {
		t.Errorf("expected fallback model, got %s", secondary.calls[0].Model)
	}

	var m dto.Metric
	metrics.ProviderRequestTotal.WithLabelValues("primary", "error").Write(&m)
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("expected 1 primary error, got %v", m.GetCounter().GetValue())
	}
}

func TestClient_MaxRetriesBoundsAttempts(t *testing.T) {
	fail := errors.New("down")
	primary := &fakeAdapter{name: "primary", err: fail}
	secondary := &fakeAdapter{name: "secondary", err: fail}
	tertiary := &fakeAdapter{name: "tertiary", answer: "no"}
	registry := NewRegistry()
	registry.Register("primary", primary, nil)
	registry.Register("secondary", secondary, nil)
	registry.Register("tertiary", tertiary, nil)

	c := newTestClient(registry, 1, nil)
	_, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{})
	if !errors.Is(err, ErrNoProvider) || !errors.Is(err, fail) {
		t.Errorf("expected ErrNoProvider wrapping the last error, got %v", err)
	}
	if tertiary.callCount() != 0 {
		t.Error("expected only two attempts with max_retries=1")
	}
}

func TestClient_SkipsOpenCircuit(t *testing.T) {
	primary := &fakeAdapter{name: "primary", answer: "no"}
	secondary := &fakeAdapter{name: "secondary", answer: "yes"}
	registry := NewRegistry()
	registry.Register("primary", primary, nil)
	registry.Register("secondary", secondary, nil)

	c := newTestClient(registry, 0, nil)
	c.health.RecordFailure("primary")

	text, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "yes" || primary.callCount() != 0 {
		t.Errorf("expected open primary to be skipped without using an attempt, got %q", text)
	}
}

func TestClient_AllCircuitsOpen(t *testing.T) {
	registry := NewRegistry()
	registry.Register("primary", &fakeAdapter{name: "primary"}, nil)

	c := newTestClient(registry, 1, nil)
	c.health.RecordFailure("primary")

	if _, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
}

func TestClient_NonTextNotRetried(t *testing.T) {
	primary := &fakeAdapter{name: "primary", err: classify.ErrNonText}
	secondary := &fakeAdapter{name: "secondary", answer: "yes"}
	registry := NewRegistry()
	registry.Register("primary", primary, nil)
	registry.Register("secondary", secondary, nil)

	c := newTestClient(registry, 2, nil)
	_, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{})
	if !errors.Is(err, classify.ErrNonText) {
		t.Errorf("expected ErrNonText, got %v", err)
	}
	if secondary.callCount() != 0 {
		t.Error("a non-text answer must not fall back")
	}
	if !c.health.Allow("primary") {
		t.Error("a non-text answer must not trip the breaker")
	}
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	registry := NewRegistry()
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow()
	registry.Register("primary", &fakeAdapter{name: "primary", answer: "no"}, limiter)

	c := newTestClient(registry, 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.ClassifyYesNo(ctx, "guard-model", "guard_prompt_injection", "hi", types.TraceContext{}); err == nil {
		t.Error("expected rate limit error")
	}
}

func TestCandidates(t *testing.T) {
	registry := NewRegistry()
	registry.Register("tertiary", &fakeAdapter{name: "tertiary"}, nil)

	cands, err := Candidates(testModels(), registry, "guard-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Endpoint.Name != "tertiary" || cands[0].Model != "qwen-guard" {
		t.Errorf("expected only the registered fallback, got %+v", cands)
	}

	if _, err := Candidates(testModels(), NewRegistry(), "guard-model"); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
}

func TestBuildFromConfig(t *testing.T) {
	registry, err := BuildFromConfig(&config.ProvidersConfig{Providers: map[string]config.ProviderConfig{
		"openai":    {Type: "openai", BaseURL: "http://localhost", RateLimitRPS: 5},
		"anthropic": {Type: "anthropic", BaseURL: "http://localhost"},
		"sidecar":   {Type: "grpc", Address: "localhost:50051"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer registry.Close()

	for name, want := range map[string]string{"openai": "openai", "anthropic": "anthropic", "sidecar": "grpc"} {
		e, ok := registry.Get(name)
		if !ok {
			t.Fatalf("expected provider %s", name)
		}
		if e.Adapter.Name() != want {
			t.Errorf("%s: expected adapter %s, got %s", name, want, e.Adapter.Name())
		}
	}
	if e, _ := registry.Get("openai"); e.Limiter == nil || e.Limiter.Burst() != 5 {
		t.Error("expected openai limiter with burst 5")
	}
	if e, _ := registry.Get("anthropic"); e.Limiter != nil {
		t.Error("expected no limiter without rate_limit_rps")
	}

	if _, err := BuildFromConfig(&config.ProvidersConfig{Providers: map[string]config.ProviderConfig{
		"x": {Type: "carrier-pigeon"},
	}}); err == nil {
		t.Error("expected error for unsupported provider type")
	}
}

type closingAdapter struct {
	fakeAdapter
	closed atomic.Bool
}

func (c *closingAdapter) Close() error {
	c.closed.Store(true)
	return nil
}

func TestRegistry_Swap(t *testing.T) {
	old := &closingAdapter{fakeAdapter: fakeAdapter{name: "primary", answer: "no"}}
	registry := NewRegistry()
	registry.Register("primary", old, nil)

	next := NewRegistry()
	replacement := &fakeAdapter{name: "primary", answer: "yes"}
	next.Register("primary", replacement, nil)
	registry.Swap(next, 0)

	if !old.closed.Load() {
		t.Error("expected the replaced adapter to be closed")
	}
	e, ok := registry.Get("primary")
	if !ok || e.Adapter != replacement {
		t.Error("expected the new adapter after swap")
	}
}

func TestRegistry_SwapKeepsOldAdapterOpenDuringGrace(t *testing.T) {
	old := &closingAdapter{fakeAdapter: fakeAdapter{name: "sidecar", answer: "no"}}
	registry := NewRegistry()
	registry.Register("sidecar", old, nil)
	inFlight, _ := registry.Get("sidecar")

	next := NewRegistry()
	next.Register("sidecar", &fakeAdapter{name: "sidecar", answer: "yes"}, nil)
	registry.Swap(next, 100*time.Millisecond)

	if old.closed.Load() {
		t.Fatal("old adapter closed before the grace period ended")
	}
	if _, err := inFlight.Adapter.Complete(context.Background(), &adapters.Request{}); err != nil {
		t.Errorf("in-flight call on the old adapter failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !old.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("old adapter never closed after the grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// hangingAdapter blocks until its context ends.
type hangingAdapter struct{ name string }

func (h *hangingAdapter) Name() string { return h.name }

func (h *hangingAdapter) Complete(ctx context.Context, _ *adapters.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestClient_AttemptTimeoutFallsBack(t *testing.T) {
	secondary := &fakeAdapter{name: "secondary", answer: "no"}
	registry := NewRegistry()
	registry.Register("primary", &hangingAdapter{name: "primary"}, nil)
	registry.Register("secondary", secondary, nil)

	c := NewClient(
		registry,
		NewHealthTracker(3, time.Minute),
		testModels,
		testPrompts,
		func() config.RoutingConfig {
			return config.RoutingConfig{MaxRetries: 1, DefaultTimeout: 20 * time.Millisecond}
		},
		nil,
	)

	start := time.Now()
	text, err := c.ClassifyYesNo(context.Background(), "guard-model", "guard_prompt_injection", "hi", types.TraceContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "no" {
		t.Errorf("expected the fallback answer, got %q", text)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("attempt timeout not applied, took %s", elapsed)
	}
}
