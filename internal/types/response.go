package types

// RouteID selects the downstream handler for a message.
type RouteID string

const (
	RouteReject RouteID = "reject"
	RouteNormal RouteID = "normal"
	RouteDeep   RouteID = "deep"
	RouteSimple RouteID = "simple"
)

// AllRoutes lists every route a routing table must define.
var AllRoutes = []RouteID{RouteReject, RouteNormal, RouteDeep, RouteSimple}

func ParseRouteID(s string) (RouteID, bool) {
	switch RouteID(s) {
	case RouteReject, RouteNormal, RouteDeep, RouteSimple:
		return RouteID(s), true
	default:
		return "", false
	}
}

type ToolID string

// RouteTarget is the model, prompt and tools bound to a route.
type RouteTarget struct {
	ModelID  string   `json:"model_id" yaml:"model_id"`
	PromptID string   `json:"prompt_id" yaml:"prompt_id"`
	ToolSet  []ToolID `json:"tool_set" yaml:"tool_set"`
}

// GateDecision is handed to the chat-dispatch layer, which alone invokes
// ModelID/PromptID with ToolSet.
type GateDecision struct {
	RequestID   string            `json:"request_id,omitempty"`
	IsBlocked   bool              `json:"is_blocked"`
	BlockReason BlockReason       `json:"block_reason"`
	Route       RouteID           `json:"route"`
	ModelID     string            `json:"model_id"`
	PromptID    string            `json:"prompt_id"`
	ToolSet     []ToolID          `json:"tool_set"`
	Complexity  *ComplexityResult `json:"complexity,omitempty"`
}
