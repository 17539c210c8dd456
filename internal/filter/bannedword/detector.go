package bannedword

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

const Name = "banned_word"

// Store supplies the current block-list. It is read on every call.
type Store interface {
	BannedWords(ctx context.Context) ([]string, error)
}

// Detector blocks messages that contain a banned word after normalization.
type Detector struct {
	store   Store
	cfg     func() config.BannedWordFilterConfig
	metrics *telemetry.Metrics
}

func NewDetector(store Store, cfg func() config.BannedWordFilterConfig, metrics *telemetry.Metrics) *Detector {
	return &Detector{store: store, cfg: cfg, metrics: metrics}
}

func (d *Detector) Name() string           { return Name }
func (d *Detector) Enabled() bool          { return d.cfg().Enabled }
func (d *Detector) Timeout() time.Duration { return d.cfg().Timeout }

// Detect fails open: a store error is logged and read as an empty list.
func (d *Detector) Detect(ctx context.Context, req *types.GateRequest) types.SafetyResult {
	words, err := d.store.BannedWords(ctx)
	if err != nil {
		slog.Error("banned word store unavailable, skipping check",
			"request_id", req.RequestID,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.RecordStoreError("banned_words")
		}
		return types.Failed(Name, err)
	}

	if word, ok := Match(req.MessageContent, words); ok {
		return types.Block(Name, types.ReasonBannedWord, word)
	}
	return types.Pass(Name)
}

// Match reports the first banned word contained in text. Both sides are
// normalized with Normalize; words that normalize to nothing are ignored.
func Match(text string, words []string) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	normalized := Normalize(text)
	for _, w := range words {
		nw := Normalize(w)
		if nw == "" {
			continue
		}
		if strings.Contains(normalized, nw) {
			return w, true
		}
	}
	return "", false
}

// Normalize folds compatibility forms (full-width letters and digits), drops
// all whitespace and lowercases.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
