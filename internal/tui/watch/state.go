package watch

import (
	"encoding/json"
	"sort"

	"github.com/mattjoyce/modhost/internal/events"
	"github.com/mattjoyce/modhost/internal/journal"
)

// Board is what the view knows about the host, rebuilt from the event feed.
type Board struct {
	BootID  string
	Startup string // running, complete or failed
	Error   string
	// Dispatched lists categories in the order they ran.
	Dispatched []string
	Modules    map[string]ModuleState
	LastSeq    int64
}

// ModuleState is the latest outcome of one module.
type ModuleState struct {
	ID      string
	Outcome string
	Path    string
	Detail  string
}

func newBoard() *Board {
	return &Board{Modules: make(map[string]ModuleState)}
}

// Apply folds one event into the board. A startup.begin for a new boot id
// resets it.
func (b *Board) Apply(e events.Event) {
	if e.Seq > b.LastSeq {
		b.LastSeq = e.Seq
	}

	switch e.Kind {
	case events.StartupBegin:
		var d struct {
			BootID string `json:"boot_id"`
		}
		_ = json.Unmarshal(e.Data, &d)
		if d.BootID != b.BootID {
			*b = Board{Modules: make(map[string]ModuleState), LastSeq: b.LastSeq}
		}
		b.BootID = d.BootID
		b.Startup = "running"

	case events.ModuleLoaded, events.ModuleFailed:
		var a journal.Attempt
		if err := json.Unmarshal(e.Data, &a); err != nil || a.ModuleID == "" {
			return
		}
		b.Modules[a.ModuleID] = ModuleState{ID: a.ModuleID, Outcome: a.Outcome, Path: a.Path, Detail: a.Detail}

	case events.CategoryDispatched:
		var d struct {
			Category string `json:"category"`
		}
		if err := json.Unmarshal(e.Data, &d); err == nil && d.Category != "" {
			b.Dispatched = append(b.Dispatched, d.Category)
		}

	case events.StartupComplete:
		b.Startup = "complete"

	case events.StartupFailed:
		var d struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(e.Data, &d)
		b.Startup = "failed"
		b.Error = d.Error
	}
}

// SortedModules returns module states ordered by id.
func (b *Board) SortedModules() []ModuleState {
	out := make([]ModuleState, 0, len(b.Modules))
	for _, m := range b.Modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
