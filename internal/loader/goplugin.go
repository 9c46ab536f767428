//go:build (linux || darwin || freebsd) && cgo

package loader

import (
	"debug/elf"
	"debug/macho"
	"fmt"
	"plugin"
	"strings"
)

// PluginOpener opens modules built with -buildmode=plugin.
//
// Files are inspected before plugin.Open: the runtime aborts the whole process
// when asked to open a shared object that is not a Go plugin, so anything
// without the Go plugin tables and a ModuleMarker export is turned away as
// ErrNotAModule first.
//
// Go plugins cannot be unloaded, and plugin.Open runs the package init
// functions of the plugin before any symbol can be checked. A rejected plugin
// (a stamp mismatch, say) stays mapped and its init code has already run;
// only its ModuleRegister is never called. Modules should keep init free of
// side effects.
type PluginOpener struct{}

// NewOpener returns the dynamic-loading facility for this platform.
func NewOpener() Opener { return PluginOpener{} }

// Supported reports whether this platform can load modules.
func Supported() bool { return true }

func (PluginOpener) Open(path string) (Library, error) {
	if err := checkPluginObject(path); err != nil {
		return nil, err
	}
	p, err := plugin.Open(path)
	if err != nil {
		msg := err.Error()
		switch {
		// The runtime refuses plugins linked against other versions of
		// shared packages before any of our symbols can be checked.
		case strings.Contains(msg, "different version of package"):
			return nil, fmt.Errorf("%w: %v", ErrVersionMismatch, err)
		case strings.Contains(msg, "invalid ELF header"),
			strings.Contains(msg, "wrong ELF class"),
			strings.Contains(msg, "not a mach-o file"):
			return nil, fmt.Errorf("%w: %v", ErrNotAModule, err)
		}
		return nil, err
	}
	return pluginLibrary{p: p}, nil
}

// checkPluginObject reads the symbol tables of the object at path and fails
// with ErrNotAModule unless it is a Go plugin exporting ModuleMarker.
func checkPluginObject(path string) error {
	names, err := objectSymbols(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotAModule, path, err)
	}
	goPlugin, marker := false, false
	for _, name := range names {
		if strings.HasPrefix(name, "go:plugin.") || strings.HasPrefix(name, "go.plugin.") {
			goPlugin = true
		}
		if strings.HasSuffix(name, "."+MarkerSymbol) {
			marker = true
		}
	}
	if !goPlugin {
		return fmt.Errorf("%w: %s is not a Go plugin", ErrNotAModule, path)
	}
	if !marker {
		return fmt.Errorf("%w: %s does not export %s", ErrNotAModule, path, MarkerSymbol)
	}
	return nil
}

// objectSymbols returns the static and dynamic symbol names of an ELF or
// Mach-O object. Mach-O names drop their leading underscore.
func objectSymbols(path string) ([]string, error) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		var names []string
		for _, load := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
			syms, err := load()
			if err != nil {
				continue
			}
			for _, s := range syms {
				names = append(names, s.Name)
			}
		}
		return names, nil
	}
	f, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("not an ELF or Mach-O object")
	}
	defer f.Close()
	if f.Symtab == nil {
		return nil, nil
	}
	names := make([]string, 0, len(f.Symtab.Syms))
	for _, s := range f.Symtab.Syms {
		names = append(names, strings.TrimPrefix(s.Name, "_"))
	}
	return names, nil
}

type pluginLibrary struct {
	p *plugin.Plugin
}

func (l pluginLibrary) Lookup(symbol string) (any, error) {
	sym, err := l.p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (pluginLibrary) Close() error { return nil }
