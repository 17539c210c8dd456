package types

import "time"

// GateRequest is one inbound message submitted to the gate.
type GateRequest struct {
	RequestID      string       `json:"request_id,omitempty"`
	MessageContent string       `json:"message_content"`
	Trace          TraceContext `json:"trace_context"`

	ReceivedAt time.Time `json:"-"`
}

// TraceContext is passed through to model calls untouched. The gate never
// interprets it beyond logging.
type TraceContext struct {
	TraceID   string            `json:"trace_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}
