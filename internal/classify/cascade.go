package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// Signal names the stage answer a result remembers.
type Signal string

const (
	SignalNone         Signal = ""
	SignalDeepResearch Signal = "deep_research"
	SignalSimpleTask   Signal = "simple_task"
)

// Stage is one entry of the cascade decision list.
type Stage struct {
	Name   string
	Asker  Asker
	OnYes  types.Complexity
	Signal Signal
}

// Cascade asks its stages in order. The first yes decides the complexity;
// when every stage says no (or fails) the message is complex. Stage errors
// are logged and read as no.
type Cascade struct {
	stages  []Stage
	timeout time.Duration
	metrics *telemetry.Metrics
}

func NewCascade(stages []Stage, timeout time.Duration, metrics *telemetry.Metrics) *Cascade {
	return &Cascade{
		stages:  stages,
		timeout: timeout,
		metrics: metrics,
	}
}

// BuildStages turns configured stages into a decision list backed by client.
func BuildStages(cfg []config.StageConfig, client ModelClient) ([]Stage, error) {
	stages := make([]Stage, 0, len(cfg))
	for _, sc := range cfg {
		if sc.Name == "" {
			return nil, fmt.Errorf("cascade stage without name")
		}
		onYes, ok := types.ParseComplexity(sc.OnYes)
		if !ok {
			return nil, fmt.Errorf("cascade stage %s: invalid on_yes %q", sc.Name, sc.OnYes)
		}
		signal := Signal(sc.Signal)
		switch signal {
		case SignalNone, SignalDeepResearch, SignalSimpleTask:
		default:
			return nil, fmt.Errorf("cascade stage %s: invalid signal %q", sc.Name, sc.Signal)
		}
		stages = append(stages, Stage{
			Name:   sc.Name,
			Asker:  NewYesNo(client, sc.ModelID, sc.PromptID),
			OnYes:  onYes,
			Signal: signal,
		})
	}
	return stages, nil
}

// Classify never fails. Confidence is 1.0: the stages return no calibrated
// score.
func (c *Cascade) Classify(ctx context.Context, req *types.GateRequest) types.ComplexityResult {
	for _, stage := range c.stages {
		yes := c.ask(ctx, stage, req)
		if !yes {
			continue
		}
		result := types.ComplexityResult{Complexity: stage.OnYes, Confidence: 1.0}
		switch stage.Signal {
		case SignalDeepResearch:
			result.DeepResearch = true
		case SignalSimpleTask:
			result.SimpleTask = true
		}
		return result
	}
	return types.ComplexityResult{Complexity: types.ComplexityComplex, Confidence: 1.0}
}

func (c *Cascade) ask(ctx context.Context, stage Stage, req *types.GateRequest) bool {
	stageCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	yes, raw, err := stage.Asker.Ask(stageCtx, req.MessageContent, req.Trace)
	answer := "no"
	switch {
	case err != nil:
		answer = "error"
		slog.Warn("cascade stage failed, treating as no",
			"stage", stage.Name,
			"request_id", req.RequestID,
			"error", err,
		)
	case yes:
		answer = "yes"
	}
	if c.metrics != nil {
		c.metrics.RecordStage(stage.Name, answer)
	}
	slog.Debug("cascade stage answered",
		"stage", stage.Name,
		"request_id", req.RequestID,
		"answer", answer,
		"raw", raw,
	)
	return answer == "yes"
}
