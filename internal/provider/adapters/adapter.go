package adapters

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// defaultMaxTokens bounds a yes/no answer when the prompt sets no limit.
const defaultMaxTokens = 8

// Request is one classification prompt sent to a provider.
type Request struct {
	Model       string
	System      string
	Input       string
	MaxTokens   int
	Temperature *float64
	Trace       types.TraceContext
}

func (r *Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// Adapter sends a classification prompt to one provider and returns the text
// answer. Adapters return classify.ErrNonText when the provider answered
// without text.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req *Request) (string, error)
}

// StatusError is a non-200 answer from an HTTP provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// setTraceHeaders forwards the trace context so provider-side logs can be
// joined with ours.
func setTraceHeaders(h http.Header, trace types.TraceContext) {
	if trace.TraceID != "" {
		h.Set("X-Trace-ID", trace.TraceID)
	}
	if trace.SessionID != "" {
		h.Set("X-Session-ID", trace.SessionID)
	}
}
