package injection

import (
	"context"
	"log/slog"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/classify"
	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/filter"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

const Name = "prompt_injection"

// Detector asks a model whether a message is a prompt-injection attempt.
// Local heuristics run alongside and are recorded as flags.
type Detector struct {
	client classify.ModelClient
	rules  []Rule
	cfg    func() config.InjectionFilterConfig
}

func NewDetector(client classify.ModelClient, cfg func() config.InjectionFilterConfig) *Detector {
	return &Detector{client: client, rules: DefaultRules(), cfg: cfg}
}

func (d *Detector) Name() string           { return Name }
func (d *Detector) Enabled() bool          { return d.cfg().Enabled }
func (d *Detector) Timeout() time.Duration { return d.cfg().Timeout }

// Scan returns the heuristic rules matching text.
func (d *Detector) Scan(text string) []Rule {
	var hits []Rule
	for _, r := range d.rules {
		if r.Regex.MatchString(text) {
			hits = append(hits, r)
		}
	}
	return hits
}

// Flag is the result flag of a rule hit, "<category>:<name>".
func (r Rule) Flag() string {
	return r.Category + ":" + r.Name
}

func (d *Detector) Detect(ctx context.Context, req *types.GateRequest) types.SafetyResult {
	cfg := d.cfg()

	var flags []string
	if cfg.Heuristics {
		for _, hit := range d.Scan(req.MessageContent) {
			flags = append(flags, hit.Flag())
		}
		if len(flags) > 0 {
			slog.Info("injection heuristics matched",
				"request_id", req.RequestID,
				"rules", flags,
			)
		}
	}

	asker := classify.NewYesNo(d.client, cfg.ModelID, cfg.PromptID)
	result := filter.AskModel(ctx, asker, Name, types.ReasonPromptInjection, req)
	result.Flags = flags
	return result
}
