// Package module holds the init-function registry that the host composes
// itself from.
//
// Every feature group (block drivers, display backends, trace backends, ...)
// contributes one or more init functions under a Category. Registration is an
// explicit call made by the feature group's RegisterFunc, invoked either by
// the boot sequencer for statically linked groups or by the loader for groups
// shipped as loadable modules. The host then dispatches categories one at a
// time; each dispatch runs the category's entries in registration order,
// exactly once.
//
// Per-category state machine:
//
//	Pending -> Running -> Done
//
// Registering into a category that is Running or Done, and dispatching a
// category that is Running, are order violations (ErrOrderViolation). They are
// programmer errors and the host treats them as fatal.
//
// The registry is meant for the single-threaded startup path and is not safe
// for concurrent mutation.
package module
