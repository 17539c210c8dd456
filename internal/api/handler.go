package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/httputil"
	"github.com/bezhai/inner-bot-server-sub001/internal/provider"
	"github.com/bezhai/inner-bot-server-sub001/internal/router"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

const maxBodyBytes = 1 << 20

// Evaluator is the gate as seen by the HTTP layer.
type Evaluator interface {
	Evaluate(ctx context.Context, req types.GateRequest) (*types.GateDecision, error)
}

// Handler holds dependencies for the gate HTTP handlers.
type Handler struct {
	gate    Evaluator
	tables  *router.TableRef
	health  func() []provider.ProviderHealth
	version string
}

func NewHandler(gate Evaluator, tables *router.TableRef, health func() []provider.ProviderHealth, version string) *Handler {
	return &Handler{
		gate:    gate,
		tables:  tables,
		health:  health,
		version: version,
	}
}

type evaluateResponse struct {
	*types.GateDecision
	RefusalCategory string `json:"refusal_category,omitempty"`
}

// Evaluate handles POST /v1/gate/evaluate
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	receivedAt := time.Now()

	var req types.GateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteBadRequestError(w, reqID, "request body too large")
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	if req.RequestID == "" {
		req.RequestID = reqID
	}
	req.ReceivedAt = receivedAt

	decision, err := h.gate.Evaluate(r.Context(), req)
	if err != nil {
		slog.Error("gate evaluation failed", "request_id", req.RequestID, "error", err)
		httputil.WriteGateError(w, req.RequestID, "The gate could not decide; do not forward this message")
		return
	}

	resp := evaluateResponse{GateDecision: decision}
	if decision.IsBlocked {
		resp.RefusalCategory = router.RefusalCategory(decision.BlockReason)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Routes handles GET /v1/gate/routes
func (h *Handler) Routes(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	table := h.tables.Load()
	if table == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "route table not loaded")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, routeListResponse{
		Object: "list",
		Data:   table.Entries(),
	})
}

type routeListResponse struct {
	Object string         `json:"object"`
	Data   []router.Entry `json:"data"`
}

// Health handles GET /health. It reports provider breaker states but stays
// 200: an open breaker degrades classification, it does not stop the gate.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Version: h.version}
	if h.health != nil {
		resp.Providers = h.health()
		for _, p := range resp.Providers {
			if p.State != provider.StateClosed.String() {
				resp.Status = "degraded"
				break
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version"`
	Providers []provider.ProviderHealth `json:"providers,omitempty"`
}
