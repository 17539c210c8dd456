package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// ErrInconsistentRoute is returned when a selector disagrees with the safety
// verdict: blocked messages must go to reject and only they may.
var ErrInconsistentRoute = errors.New("route inconsistent with safety verdict")

// Input is what route selection sees.
type Input struct {
	IsBlocked    bool              `json:"is_blocked"`
	BlockReason  types.BlockReason `json:"block_reason"`
	Complexity   types.Complexity  `json:"complexity"`
	DeepResearch bool              `json:"deep_research"`
	SimpleTask   bool              `json:"simple_task"`
}

// NewInput flattens a verdict and an optional complexity result.
func NewInput(blocked bool, reason types.BlockReason, c *types.ComplexityResult) Input {
	in := Input{IsBlocked: blocked, BlockReason: reason}
	if c != nil {
		in.Complexity = c.Complexity
		in.DeepResearch = c.DeepResearch
		in.SimpleTask = c.SimpleTask
	}
	return in
}

// Selector picks a route id.
type Selector interface {
	Select(ctx context.Context, in Input) (types.RouteID, error)
}

// StateMachine is the built-in selector.
type StateMachine struct{}

func (StateMachine) Select(_ context.Context, in Input) (types.RouteID, error) {
	return Decide(in), nil
}

// Decide maps a verdict to a route. Anything not simple is handled as
// complex, including super_complex and a missing complexity.
func Decide(in Input) types.RouteID {
	switch {
	case in.IsBlocked:
		return types.RouteReject
	case in.Complexity == types.ComplexitySimple:
		return types.RouteSimple
	case in.DeepResearch:
		return types.RouteDeep
	default:
		return types.RouteNormal
	}
}

// Router resolves the selected route against the current table.
type Router struct {
	tables   *TableRef
	selector Selector
}

// New returns a router. A nil selector uses StateMachine.
func New(tables *TableRef, selector Selector) *Router {
	if selector == nil {
		selector = StateMachine{}
	}
	return &Router{tables: tables, selector: selector}
}

// Route builds the decision. Errors mean no decision could be made and the
// caller must fail closed.
func (r *Router) Route(ctx context.Context, blocked bool, reason types.BlockReason, complexity *types.ComplexityResult) (*types.GateDecision, error) {
	in := NewInput(blocked, reason, complexity)
	id, err := r.selector.Select(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("select route: %w", err)
	}
	if (id == types.RouteReject) != blocked {
		return nil, fmt.Errorf("%w: blocked=%v route=%s", ErrInconsistentRoute, blocked, id)
	}

	table := r.tables.Load()
	if table == nil {
		return nil, fmt.Errorf("%w: no routing table loaded", ErrUnknownRoute)
	}
	target, err := table.Lookup(id)
	if err != nil {
		return nil, err
	}

	d := &types.GateDecision{
		IsBlocked: blocked,
		Route:     id,
		ModelID:   target.ModelID,
		PromptID:  target.PromptID,
		ToolSet:   target.ToolSet,
	}
	if blocked {
		d.BlockReason = reason
	} else {
		d.Complexity = complexity
	}
	return d, nil
}

// RefusalCategory is the only block information that may be shown to users.
// Detector details stay in logs and the audit trail.
func RefusalCategory(reason types.BlockReason) string {
	switch reason {
	case types.ReasonBannedWord:
		return "prohibited_content"
	case types.ReasonPromptInjection:
		return "unsafe_instruction"
	case types.ReasonSensitivePolitics:
		return "sensitive_topic"
	default:
		return "rejected"
	}
}
