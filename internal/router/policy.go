package router

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

const policyQuery = "data.gate.route.route"

// DefaultPolicy selects the same routes as StateMachine.
const DefaultPolicy = `package gate.route

import rego.v1

default route := "normal"

route := "reject" if input.is_blocked

route := "simple" if {
	not input.is_blocked
	input.complexity == "simple"
}

route := "deep" if {
	not input.is_blocked
	input.complexity != "simple"
	input.deep_research
}
`

// PolicySelector selects routes with a Rego policy. Evaluation failures are
// returned as errors; there is no fallback route.
type PolicySelector struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.RoutePolicyConfig
}

// NewPolicySelector creates a selector. Call Load or LoadFromModules before use.
func NewPolicySelector(cfg func() config.RoutePolicyConfig) *PolicySelector {
	return &PolicySelector{cfg: cfg}
}

// Load compiles the .rego files under the configured bundle path.
func (p *PolicySelector) Load() error {
	path := p.cfg().BundlePath
	modules, err := LoadRegoFiles(path)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		return fmt.Errorf("no rego files in %s", path)
	}
	if err := p.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("route policy loaded", "path", path, "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from module sources keyed by file name.
func (p *PolicySelector) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(policyQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	p.mu.Lock()
	p.prepared = &prepared
	p.mu.Unlock()
	return nil
}

func (p *PolicySelector) Select(ctx context.Context, in Input) (types.RouteID, error) {
	p.mu.RLock()
	prepared := p.prepared
	p.mu.RUnlock()

	if prepared == nil {
		return "", fmt.Errorf("route policy not loaded")
	}

	timeout := p.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(in))
	if err != nil {
		return "", fmt.Errorf("route policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("route policy returned no result")
	}

	raw, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("route policy returned %T, want string", results[0].Expressions[0].Value)
	}
	id, ok := types.ParseRouteID(raw)
	if !ok {
		return "", fmt.Errorf("%w: policy returned %q", ErrUnknownRoute, raw)
	}
	return id, nil
}

// LoadRegoFiles reads all .rego files from dir.
func LoadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
