package filter

import (
	"context"
	"log/slog"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// Outcome labels a detector run for logs and metrics. Heuristic flags are
// counted separately with the "flag" label.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeBlock   Outcome = "block"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCancelled marks a detector stopped because the verdict was
	// already decided or the request went away.
	OutcomeCancelled Outcome = "cancelled"
)

// Detector is the interface all safety detectors implement.
//
// Detect must never return a blocking result because of its own failure:
// errors are logged and mapped to a pass. Implementations should respect
// ctx cancellation but the orchestrator does not rely on it.
type Detector interface {
	Name() string
	Enabled() bool
	Detect(ctx context.Context, req *types.GateRequest) types.SafetyResult
}

// TimeoutOverride is implemented by detectors with their own time budget.
// A zero Timeout falls back to the orchestrator default.
type TimeoutOverride interface {
	Timeout() time.Duration
}

// AskModel runs a model-backed yes/no check for detector and maps a yes to a
// block with reason. Any error is logged and read as a pass.
func AskModel(ctx context.Context, asker classify.Asker, detector string, reason types.BlockReason, req *types.GateRequest) types.SafetyResult {
	yes, raw, err := asker.Ask(ctx, req.MessageContent, req.Trace)
	if err != nil {
		slog.Error("detector model call failed, not blocking",
			"detector", detector,
			"request_id", req.RequestID,
			"error", err,
		)
		return types.Failed(detector, err)
	}
	if yes {
		return types.Block(detector, reason, raw)
	}
	return types.Pass(detector)
}

// OutcomeOf labels a finished detector result.
func OutcomeOf(r types.SafetyResult) Outcome {
	switch {
	case r.Blocked:
		return OutcomeBlock
	case r.Error != "":
		return OutcomeError
	default:
		return OutcomePass
	}
}

// Merge folds detector results into one verdict. It is pure and independent
// of the order of results.
func Merge(results []types.SafetyResult) (bool, types.BlockReason) {
	var v Verdict
	for _, r := range results {
		v.Add(r)
	}
	return v.Blocked(), v.Reason()
}

// Verdict accumulates results as detectors complete. The zero value is an
// empty, not-blocked verdict.
type Verdict struct {
	blocked bool
	reason  types.BlockReason
}

// Add folds one result into the verdict.
func (v *Verdict) Add(r types.SafetyResult) {
	if !r.Blocked {
		return
	}
	v.blocked = true
	reason := r.Reason
	if !reason.Valid() {
		// A blocking result always carries a category; an unlabeled one
		// ranks lowest so it can never mask a labeled reason.
		reason = types.ReasonSensitivePolitics
	}
	if reason.Outranks(v.reason) {
		v.reason = reason
	}
}

func (v *Verdict) Blocked() bool { return v.blocked }

func (v *Verdict) Reason() types.BlockReason { return v.reason }

// Decisive reports whether no further result can change the verdict.
func (v *Verdict) Decisive() bool {
	return v.reason == types.ReasonBannedWord
}
