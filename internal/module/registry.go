package module

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/modhost/internal/log"
)

// ErrOrderViolation marks registration-order programmer errors: registering
// after (or during) a category's dispatch, re-entrant dispatch, and binding an
// operation table twice.
var ErrOrderViolation = errors.New("registration order violation")

// InitFunc is an init routine contributed by a feature group.
type InitFunc func()

// Entry is a single registered init routine. Entries are immutable once
// registered.
type Entry struct {
	Name     string
	Category Category
	Origin   Origin
	Fn       InitFunc
}

// OrderError describes an order violation.
type OrderError struct {
	Op       string
	Category Category
	Entry    string
	State    State
}

func (e *OrderError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%s %q in category %s while %s: %v", e.Op, e.Entry, e.Category, e.State, ErrOrderViolation)
	}
	return fmt.Sprintf("%s category %s while %s: %v", e.Op, e.Category, e.State, ErrOrderViolation)
}

func (e *OrderError) Unwrap() error { return ErrOrderViolation }

// Registry holds pending init entries and per-category dispatch state.
type Registry struct {
	entries [numCategories][]Entry
	state   [numCategories]State
	logger  *slog.Logger
}

// NewRegistry creates an empty registry with every category Pending.
func NewRegistry() *Registry {
	return &Registry{logger: log.WithComponent("module")}
}

// Check reports the error Register would return for e, without adding it.
func (r *Registry) Check(e Entry) error {
	if !e.Category.Valid() {
		return fmt.Errorf("register %q: invalid init category %d", e.Name, int(e.Category))
	}
	if e.Fn == nil {
		return fmt.Errorf("register %q in category %s: init function is nil", e.Name, e.Category)
	}
	if st := r.state[e.Category]; st != Pending {
		return &OrderError{Op: "register", Category: e.Category, Entry: e.Name, State: st}
	}
	return nil
}

// Register appends an entry to its category. It fails if the category has
// already started dispatching, since the entry would never run.
func (r *Registry) Register(e Entry) error {
	if e.Origin == "" {
		e.Origin = Static
	}
	if err := r.Check(e); err != nil {
		var oerr *OrderError
		if errors.As(err, &oerr) {
			r.logger.Error("init entry registered too late", "category", e.Category.String(), "entry", e.Name, "origin", string(e.Origin), "state", oerr.State.String())
		}
		return err
	}

	r.entries[e.Category] = append(r.entries[e.Category], e)
	r.logger.Debug("registered init entry",
		"category", e.Category.String(),
		"entry", e.Name,
		"origin", string(e.Origin),
		"position", len(r.entries[e.Category]),
	)
	return nil
}

// Dispatch runs every entry of category c in registration order and marks the
// category Done. Dispatching a Done category is a no-op. Dispatching a category
// from within one of its own entries is rejected.
//
// Entries are not expected to fail; a panicking entry propagates to the caller
// and leaves the category Running.
func (r *Registry) Dispatch(c Category) error {
	if !c.Valid() {
		return fmt.Errorf("dispatch: invalid init category %d", int(c))
	}
	switch r.state[c] {
	case Done:
		return nil
	case Running:
		r.logger.Error("re-entrant dispatch", "category", c.String())
		return &OrderError{Op: "dispatch", Category: c, State: Running}
	}

	r.state[c] = Running
	entries := r.entries[c]
	r.logger.Debug("dispatching category", "category", c.String(), "entries", len(entries))
	for _, e := range entries {
		e.Fn()
	}
	r.state[c] = Done
	r.logger.Info("category ready", "category", c.String(), "entries", len(entries))
	return nil
}

// State returns the dispatch state of c.
func (r *Registry) State(c Category) State {
	if !c.Valid() {
		return Pending
	}
	return r.state[c]
}

// Entries returns a copy of the entries registered under c, in order.
func (r *Registry) Entries(c Category) []Entry {
	if !c.Valid() {
		return nil
	}
	out := make([]Entry, len(r.entries[c]))
	copy(out, r.entries[c])
	return out
}

// Reset drops all entries and returns every category to Pending.
// It exists for tests that reuse a registry across cases.
func (r *Registry) Reset() {
	for c := range r.entries {
		r.entries[c] = nil
		r.state[c] = Pending
	}
}

// Host is the surface a feature group sees while registering. The boot
// sequencer hands one to static groups; the loader hands one to loadable
// modules, tagged with the Dynamic origin.
type Host interface {
	// Register adds fn under category c.
	Register(c Category, name string, fn InitFunc) error
	// Bind publishes impl as the implementation of an optional subsystem.
	Bind(subsystem string, impl any) error
}

// Checker is implemented by hosts that can tell, without side effects,
// whether a Register or Bind call would be accepted. The loader uses it to
// validate a module's whole registration before applying any of it.
type Checker interface {
	CheckRegister(c Category, name string, fn InitFunc) error
	CheckBind(subsystem string, impl any) error
}

// RegisterFunc is the registration entry point of a feature group. Loadable
// modules export one under the ModuleRegister symbol.
type RegisterFunc = func(h Host) error
