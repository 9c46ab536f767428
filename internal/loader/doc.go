// Package loader opens loadable modules and hands them to the registry.
//
// A module id is prefix+name ("block-" + "curl", "ui-" + "remote"). The id
// maps to <id>.so (<id>.dll on Windows) inside each search directory. A file
// is accepted as a module when it exports:
//
//	ModuleMarker   any value; identifies the file as a module
//	ModuleStamp    string; must equal the host's compatibility token
//	ModuleRegister func(module.Host) error; the module's registration entry
//
// Load distinguishes three recoverable failures: ErrNotFound (no file, or it
// cannot be opened), ErrNotAModule (not a Go plugin, or no marker or entry
// point) and ErrVersionMismatch (marker present, stamp missing or different).
// None of them changes the loaded set, and ModuleRegister is never called for
// a rejected file. Opening a Go plugin does run its package init functions,
// so a module rejected for its stamp has still executed its init code.
// Module authors should keep init free of side effects and do all their work
// in ModuleRegister.
//
// The Register and Bind calls a module makes are held back until its
// ModuleRegister returns nil and every call has been checked against the
// host; only then are they applied. An id whose ModuleRegister ran and failed
// is not searched for again.
package loader
