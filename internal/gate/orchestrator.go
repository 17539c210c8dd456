package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bezhai/inner-bot-server-sub001/internal/audit"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// Classifier assigns a complexity to a message that passed the safety checks.
type Classifier interface {
	Classify(ctx context.Context, req *types.GateRequest) types.ComplexityResult
}

// Router turns a verdict and complexity into a decision.
type Router interface {
	Route(ctx context.Context, blocked bool, reason types.BlockReason, complexity *types.ComplexityResult) (*types.GateDecision, error)
}

// Auditor receives every decision. It must not block.
type Auditor interface {
	Record(rec audit.Record)
}

// Orchestrator runs the safety detectors concurrently, merges their results,
// classifies messages that pass and routes the outcome.
type Orchestrator struct {
	detectors  []filter.Detector
	classifier Classifier
	router     Router
	cfg        func() config.GateConfig
	metrics    *telemetry.Metrics
	auditor    Auditor
}

func NewOrchestrator(
	detectors []filter.Detector,
	classifier Classifier,
	router Router,
	cfg func() config.GateConfig,
	metrics *telemetry.Metrics,
	auditor Auditor,
) *Orchestrator {
	return &Orchestrator{
		detectors:  detectors,
		classifier: classifier,
		router:     router,
		cfg:        cfg,
		metrics:    metrics,
		auditor:    auditor,
	}
}

// Evaluate decides what happens to one inbound message.
//
// Detector failures and timeouts never surface here; they count as "not
// blocked". An error means no decision could be made (no route, cancelled
// request, internal fault) and the caller must not forward the message.
func (o *Orchestrator) Evaluate(ctx context.Context, req types.GateRequest) (*types.GateDecision, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}

	st, err := o.evaluate(ctx, &req)
	if err != nil {
		slog.Error("gate evaluation failed",
			"request_id", req.RequestID,
			"state", st.current(),
			"error", err,
		)
		if o.metrics != nil {
			o.metrics.RecordEvaluation("error", "", st.elapsedMs())
		}
		return nil, err
	}

	d := st.decision
	d.RequestID = req.RequestID
	o.observe(st)
	return d, nil
}

func (o *Orchestrator) evaluate(ctx context.Context, req *types.GateRequest) (st *gateState, err error) {
	st = newGateState(req)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gate panic in %s: %v", st.current(), r)
		}
		if err != nil {
			st.enter(StateFailed)
		}
	}()

	if err := ctx.Err(); err != nil {
		return st, fmt.Errorf("request cancelled before evaluation: %w", err)
	}

	st.enter(StateFanOutSafety)
	o.fanOut(ctx, st)

	st.enter(StateAggregate)
	if err := ctx.Err(); err != nil && !st.verdict.Decisive() {
		return st, fmt.Errorf("request cancelled before a verdict: %w", err)
	}

	blocked, reason := filter.Merge(st.results)
	if blocked {
		st.enter(StateBlocked)
	} else {
		st.enter(StateClassify)
		c := o.classifier.Classify(ctx, req)
		st.complexity = &c
	}

	st.enter(StateRoute)
	d, err := o.router.Route(ctx, blocked, reason, st.complexity)
	if err != nil {
		return st, fmt.Errorf("route: %w", err)
	}
	st.decision = d
	st.enter(StateDone)
	return st, nil
}

// fanOut runs every enabled detector and folds results as they arrive. It
// returns only once every detector has produced a result or been resolved
// by its timeout.
func (o *Orchestrator) fanOut(ctx context.Context, st *gateState) {
	cfg := o.cfg()

	var active []filter.Detector
	for _, d := range o.detectors {
		if d.Enabled() {
			active = append(active, d)
		}
	}
	if len(active) == 0 {
		return
	}

	// fanCtx is cancelled once the verdict is decisive.
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan types.SafetyResult, len(active))
	var g errgroup.Group
	for _, d := range active {
		g.Go(func() error {
			results <- o.runDetector(fanCtx, d, st.req, cfg.DetectorTimeout)
			return nil
		})
	}
	go func() {
		g.Wait()
		close(results)
	}()

	for r := range results {
		st.results = append(st.results, r)
		st.verdict.Add(r)
		if cfg.CancelOnDecisive && st.verdict.Decisive() {
			cancel()
		}
	}
}

// runDetector bounds one detector by its timeout. A detector that overruns
// or panics resolves to a non-blocking result; its goroutine is abandoned.
func (o *Orchestrator) runDetector(ctx context.Context, d filter.Detector, req *types.GateRequest, defaultTimeout time.Duration) types.SafetyResult {
	name := d.Name()
	timeout := defaultTimeout
	if t, ok := d.(filter.TimeoutOverride); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}
	dctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan types.SafetyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("detector panicked, not blocking",
					"detector", name,
					"request_id", req.RequestID,
					"panic", r,
				)
				done <- types.Failed(name, fmt.Errorf("panic: %v", r))
			}
		}()
		done <- d.Detect(dctx, req)
	}()

	var r types.SafetyResult
	var outcome filter.Outcome
	select {
	case r = <-done:
		outcome = filter.OutcomeOf(r)
	case <-dctx.Done():
		outcome = filter.OutcomeTimeout
		if ctx.Err() != nil {
			outcome = filter.OutcomeCancelled
		}
		r = types.SafetyResult{Detector: name, Error: string(outcome)}
		slog.Warn("detector did not finish, not blocking",
			"detector", name,
			"request_id", req.RequestID,
			"outcome", outcome,
			"timeout", timeout,
		)
	}
	if r.Detector == "" {
		r.Detector = name
	}

	if o.metrics != nil {
		o.metrics.RecordDetector(name, string(outcome), float64(time.Since(start).Microseconds())/1000)
		if len(r.Flags) > 0 {
			o.metrics.RecordDetectorFlag(name)
		}
	}
	return r
}

func (o *Orchestrator) observe(st *gateState) {
	d := st.decision
	elapsed := st.elapsedMs()

	if o.metrics != nil {
		o.metrics.RecordEvaluation(string(d.Route), string(d.BlockReason), elapsed)
	}

	attrs := []any{
		"request_id", st.req.RequestID,
		"route", d.Route,
		"is_blocked", d.IsBlocked,
		"duration_ms", elapsed,
	}
	if d.IsBlocked {
		attrs = append(attrs, "block_reason", d.BlockReason)
		for _, r := range st.results {
			if r.Blocked {
				attrs = append(attrs, "detector", r.Detector, "detail", r.Detail)
				break
			}
		}
	}
	if st.complexity != nil {
		attrs = append(attrs, "complexity", st.complexity.Complexity)
	}
	if st.req.Trace.ChatID != "" {
		attrs = append(attrs, "chat_id", st.req.Trace.ChatID)
	}
	slog.Info("gate decision", attrs...)

	if o.auditor != nil {
		o.auditor.Record(audit.Record{
			RequestID:  st.req.RequestID,
			Trace:      st.req.Trace,
			Decision:   *d,
			Results:    st.results,
			DurationMs: elapsed,
		})
	}
}
