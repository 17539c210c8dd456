package politics

import (
	"context"
	"errors"
	"testing"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

type fakeClient struct {
	answer string
	err    error
	trace  types.TraceContext
}

func (f *fakeClient) ClassifyYesNo(_ context.Context, _, _, _ string, trace types.TraceContext) (string, error) {
	f.trace = trace
	return f.answer, f.err
}

func cfg() config.PoliticsFilterConfig {
	return config.PoliticsFilterConfig{Enabled: true, ModelID: "guard-model", PromptID: "guard_sensitive_politics"}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		err     error
		blocked bool
		outcome string
	}{
		{"yes", "YES", nil, true, "block"},
		{"y", "y", nil, true, "block"},
		{"no", "no", nil, false, "pass"},
		{"garbage", "¯\\_(ツ)_/¯", nil, false, "pass"},
		{"non text", "", classify.ErrNonText, false, "error"},
		{"transport", "", errors.New("EOF"), false, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(&fakeClient{answer: tt.answer, err: tt.err}, cfg)
			r := d.Detect(context.Background(), &types.GateRequest{MessageContent: "x"})
			if r.Blocked != tt.blocked {
				t.Errorf("expected blocked=%v, got %v", tt.blocked, r.Blocked)
			}
			if tt.blocked && r.Reason != types.ReasonSensitivePolitics {
				t.Errorf("expected sensitive_politics, got %q", r.Reason)
			}
			if (tt.outcome == "error") != (r.Error != "") {
				t.Errorf("expected outcome %s, got error %q", tt.outcome, r.Error)
			}
		})
	}
}

func TestDetect_PassesTraceThrough(t *testing.T) {
	client := &fakeClient{answer: "no"}
	d := NewDetector(client, cfg)

	trace := types.TraceContext{TraceID: "t-1", ChatID: "c-9"}
	d.Detect(context.Background(), &types.GateRequest{MessageContent: "x", Trace: trace})
	if client.trace.TraceID != "t-1" || client.trace.ChatID != "c-9" {
		t.Errorf("trace not passed through: %+v", client.trace)
	}
}

func TestEnabledFollowsConfig(t *testing.T) {
	enabled := true
	d := NewDetector(&fakeClient{}, func() config.PoliticsFilterConfig {
		c := cfg()
		c.Enabled = enabled
		return c
	})
	if !d.Enabled() {
		t.Error("expected enabled")
	}
	enabled = false
	if d.Enabled() {
		t.Error("expected disabled after config change")
	}
}
