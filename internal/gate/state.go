package gate

import (
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/filter"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// State is a step of one evaluation.
type State string

const (
	StateStart        State = "start"
	StateFanOutSafety State = "fan_out_safety"
	StateAggregate    State = "aggregate"
	StateBlocked      State = "blocked"
	StateClassify     State = "classify"
	StateRoute        State = "route"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// gateState belongs to a single request and is never shared.
type gateState struct {
	req        *types.GateRequest
	started    time.Time
	path       []State
	results    []types.SafetyResult
	verdict    filter.Verdict
	complexity *types.ComplexityResult
	decision   *types.GateDecision
}

func newGateState(req *types.GateRequest) *gateState {
	return &gateState{
		req:     req,
		started: time.Now(),
		path:    []State{StateStart},
	}
}

func (s *gateState) enter(next State) {
	s.path = append(s.path, next)
}

func (s *gateState) current() State {
	return s.path[len(s.path)-1]
}

func (s *gateState) elapsedMs() float64 {
	return float64(time.Since(s.started).Microseconds()) / 1000
}
