package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// Record is one gate decision with the evidence behind it. Detector details
// are kept here and in logs only.
type Record struct {
	ID         uuid.UUID
	RequestID  string
	Trace      types.TraceContext
	Decision   types.GateDecision
	Results    []types.SafetyResult
	DurationMs float64
	CreatedAt  time.Time
}

// Execer is the subset of pgxpool.Pool the writer needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer persists records to gate_decisions in the background. Writes never
// block or fail a request: when the buffer is full the record is dropped.
type Writer struct {
	db      Execer
	cfg     func() config.AuditConfig
	records chan Record
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts the background writer. A nil db yields a writer that
// discards everything.
func NewWriter(db Execer, cfg func() config.AuditConfig, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 1024
	}
	w := &Writer{db: db, cfg: cfg, records: make(chan Record, buffer)}
	if db != nil {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// Record queues rec for writing.
func (w *Writer) Record(rec Record) {
	if w == nil || w.db == nil || !w.cfg().Enabled {
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.records <- rec:
	default:
		slog.Warn("audit buffer full, dropping decision", "request_id", rec.RequestID)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.records)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for rec := range w.records {
		if err := w.write(rec); err != nil {
			slog.Error("audit write failed", "request_id", rec.RequestID, "error", err)
		}
	}
}

func (w *Writer) write(rec Record) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("marshal detector results: %w", err)
	}
	trace, err := json.Marshal(rec.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	var complexity *string
	if rec.Decision.Complexity != nil {
		c := string(rec.Decision.Complexity.Complexity)
		complexity = &c
	}
	var reason *string
	if rec.Decision.IsBlocked {
		r := string(rec.Decision.BlockReason)
		reason = &r
	}

	timeout := w.cfg().WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err = w.db.Exec(ctx, `
		INSERT INTO gate_decisions
			(id, request_id, is_blocked, block_reason, route, model_id, prompt_id,
			 complexity, detector_results, trace_context, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID,
		rec.RequestID,
		rec.Decision.IsBlocked,
		reason,
		string(rec.Decision.Route),
		rec.Decision.ModelID,
		rec.Decision.PromptID,
		complexity,
		results,
		trace,
		rec.DurationMs,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert gate_decisions: %w", err)
	}
	return nil
}
