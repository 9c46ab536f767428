// Package binder implements operation tables for optional subsystems.
//
// A Table starts out holding a stand-in implementation that documents what
// happens when the subsystem is unavailable. Binding the real implementation
// happens once, during the subsystem's registration; after that the table is
// read-only and safe for concurrent readers.
package binder

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/mattjoyce/modhost/internal/log"
	"github.com/mattjoyce/modhost/internal/module"
)

type slot[T any] struct {
	ops   T
	bound bool
}

// Table is the call surface of one optional subsystem.
type Table[T any] struct {
	name    string
	current atomic.Pointer[slot[T]]
	logger  *slog.Logger
}

// NewTable creates a table named name whose entries default to unavailable.
func NewTable[T any](name string, unavailable T) *Table[T] {
	t := &Table[T]{name: name, logger: log.WithComponent("binder")}
	t.current.Store(&slot[T]{ops: unavailable})
	return t
}

// Name returns the subsystem id.
func (t *Table[T]) Name() string { return t.name }

// Ops returns the implementation callers should dispatch through.
func (t *Table[T]) Ops() T { return t.current.Load().ops }

// Bound reports whether a real implementation has been bound.
func (t *Table[T]) Bound() bool { return t.current.Load().bound }

// Bind replaces every entry with impl. A table can be bound once.
func (t *Table[T]) Bind(impl T) error {
	if any(impl) == nil {
		return fmt.Errorf("bind %s: implementation is nil", t.name)
	}
	next := &slot[T]{ops: impl, bound: true}
	prev := t.current.Load()
	if prev.bound || !t.current.CompareAndSwap(prev, next) {
		return fmt.Errorf("bind %s: already bound: %w", t.name, module.ErrOrderViolation)
	}
	t.logger.Debug("bound operation table", "subsystem", t.name, "impl", fmt.Sprintf("%T", impl))
	return nil
}

func (t *Table[T]) convert(impl any) (T, error) {
	ops, ok := impl.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("bind %s: %T does not implement %T", t.name, impl, &zero)
	}
	return ops, nil
}

func (t *Table[T]) checkAny(impl any) error {
	if _, err := t.convert(impl); err != nil {
		return err
	}
	if t.Bound() {
		return fmt.Errorf("bind %s: already bound: %w", t.name, module.ErrOrderViolation)
	}
	return nil
}

func (t *Table[T]) bindAny(impl any) error {
	ops, err := t.convert(impl)
	if err != nil {
		return err
	}
	return t.Bind(ops)
}

// Bindable is the type-erased view of a Table used by Set.
type Bindable interface {
	Name() string
	Bound() bool
	checkAny(impl any) error
	bindAny(impl any) error
}

// Set indexes the operation tables of a host by subsystem id.
type Set struct {
	tables map[string]Bindable
}

// NewSet creates a set holding tables.
func NewSet(tables ...Bindable) *Set {
	s := &Set{tables: make(map[string]Bindable, len(tables))}
	for _, t := range tables {
		s.tables[t.Name()] = t
	}
	return s
}

// Add registers a table with the set.
func (s *Set) Add(t Bindable) error {
	if _, exists := s.tables[t.Name()]; exists {
		return fmt.Errorf("subsystem %q already has an operation table", t.Name())
	}
	s.tables[t.Name()] = t
	return nil
}

// Bind publishes impl on the table for subsystem.
func (s *Set) Bind(subsystem string, impl any) error {
	t, ok := s.tables[subsystem]
	if !ok {
		return fmt.Errorf("bind: unknown subsystem %q", subsystem)
	}
	return t.bindAny(impl)
}

// Check reports the error Bind would return for subsystem and impl, without
// binding anything.
func (s *Set) Check(subsystem string, impl any) error {
	t, ok := s.tables[subsystem]
	if !ok {
		return fmt.Errorf("bind: unknown subsystem %q", subsystem)
	}
	return t.checkAny(impl)
}

// Status maps each subsystem id to whether it is bound.
func (s *Set) Status() map[string]bool {
	out := make(map[string]bool, len(s.tables))
	for name, t := range s.tables {
		out[name] = t.Bound()
	}
	return out
}

// Names returns the subsystem ids in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
