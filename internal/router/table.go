package router

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/types"
)

// ErrUnknownRoute is returned when a route id has no entry in the table.
var ErrUnknownRoute = errors.New("unknown route")

// Table maps every route id to its target. It is never mutated after
// NewTable returns; reloads build a new Table.
type Table struct {
	targets map[types.RouteID]types.RouteTarget
}

// NewTable validates routes and builds an immutable table. Every route in
// types.AllRoutes must be present with a model and a prompt.
func NewTable(routes map[string]types.RouteTarget) (*Table, error) {
	targets := make(map[types.RouteID]types.RouteTarget, len(routes))
	for name, target := range routes {
		id, ok := types.ParseRouteID(name)
		if !ok {
			return nil, fmt.Errorf("routing table: unknown route %q", name)
		}
		if target.ModelID == "" {
			return nil, fmt.Errorf("routing table: route %s has no model_id", id)
		}
		if target.PromptID == "" {
			return nil, fmt.Errorf("routing table: route %s has no prompt_id", id)
		}
		target.ToolSet = append([]types.ToolID{}, target.ToolSet...)
		targets[id] = target
	}
	for _, id := range types.AllRoutes {
		if _, ok := targets[id]; !ok {
			return nil, fmt.Errorf("routing table: missing route %s", id)
		}
	}
	return &Table{targets: targets}, nil
}

// NewTableFromConfig builds a table from routes.yaml.
func NewTableFromConfig(cfg *config.RoutesConfig) (*Table, error) {
	if cfg == nil {
		return nil, fmt.Errorf("routing table: no routes configured")
	}
	return NewTable(cfg.Routes)
}

// Lookup returns a copy of the target for id.
func (t *Table) Lookup(id types.RouteID) (types.RouteTarget, error) {
	target, ok := t.targets[id]
	if !ok {
		return types.RouteTarget{}, fmt.Errorf("%w: %s", ErrUnknownRoute, id)
	}
	target.ToolSet = append([]types.ToolID{}, target.ToolSet...)
	return target, nil
}

// Entry is one row of the table, used for listing.
type Entry struct {
	Route types.RouteID `json:"route"`
	types.RouteTarget
}

// Entries lists the table sorted by route id.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.targets))
	for id := range t.targets {
		target, _ := t.Lookup(id)
		entries = append(entries, Entry{Route: id, RouteTarget: target})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Route < entries[j].Route })
	return entries
}

// TableRef holds the current table and swaps it atomically on reload.
type TableRef struct {
	p atomic.Pointer[Table]
}

func NewTableRef(t *Table) *TableRef {
	ref := &TableRef{}
	ref.p.Store(t)
	return ref
}

func (r *TableRef) Load() *Table   { return r.p.Load() }
func (r *TableRef) Store(t *Table) { r.p.Store(t) }
