package politics

import (
	"context"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

const Name = "sensitive_politics"

// Detector asks a model whether a message touches sensitive political content.
type Detector struct {
	client classify.ModelClient
	cfg    func() config.PoliticsFilterConfig
}

func NewDetector(client classify.ModelClient, cfg func() config.PoliticsFilterConfig) *Detector {
	return &Detector{client: client, cfg: cfg}
}

func (d *Detector) Name() string           { return Name }
func (d *Detector) Enabled() bool          { return d.cfg().Enabled }
func (d *Detector) Timeout() time.Duration { return d.cfg().Timeout }

func (d *Detector) Detect(ctx context.Context, req *types.GateRequest) types.SafetyResult {
	cfg := d.cfg()
	asker := classify.NewYesNo(d.client, cfg.ModelID, cfg.PromptID)
	return filter.AskModel(ctx, asker, Name, types.ReasonSensitivePolitics, req)
}
