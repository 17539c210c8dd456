package classify

import (
	"context"
	"errors"
	"strings"

	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// ErrNonText is returned by a ModelClient when the model answers with
// something other than text (tool calls, empty choices).
var ErrNonText = errors.New("classifier returned non-text output")

// ModelClient sends one classification prompt to a model and returns the
// raw text answer. Implementations resolve modelID and promptID against
// their own registries.
type ModelClient interface {
	ClassifyYesNo(ctx context.Context, modelID, promptID, input string, trace types.TraceContext) (string, error)
}

// ParseYesNo interprets a model answer. Only "yes" (any case, surrounding
// whitespace ignored, trailing text allowed) or a bare "y" count as yes.
func ParseYesNo(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(s, "yes") || s == "y"
}

// Asker is a binary classifier over a message.
type Asker interface {
	Ask(ctx context.Context, input string, trace types.TraceContext) (bool, string, error)
}

// YesNo binds a model and a prompt into an Asker.
type YesNo struct {
	client   ModelClient
	modelID  string
	promptID string
}

func NewYesNo(client ModelClient, modelID, promptID string) *YesNo {
	return &YesNo{client: client, modelID: modelID, promptID: promptID}
}

// Ask returns the parsed answer and the raw model text. On error the answer
// is always false.
func (y *YesNo) Ask(ctx context.Context, input string, trace types.TraceContext) (bool, string, error) {
	raw, err := y.client.ClassifyYesNo(ctx, y.modelID, y.promptID, input, trace)
	if err != nil {
		return false, "", err
	}
	return ParseYesNo(raw), raw, nil
}
