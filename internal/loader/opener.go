package loader

//go:generate mockgen -destination=mocks/mock_opener.go -package=mocks github.com/mattjoyce/modhost/internal/loader Opener,Library

// Well-known symbol names exported by every loadable module.
const (
	MarkerSymbol   = "ModuleMarker"
	StampSymbol    = "ModuleStamp"
	RegisterSymbol = "ModuleRegister"
)

// Opener is the platform dynamic-loading facility.
type Opener interface {
	// Open loads the shared library at path. Errors that mean the library is
	// built against a different host should wrap ErrVersionMismatch, and errors
	// that mean the file is not a loadable module at all should wrap
	// ErrNotAModule. All other errors are treated as "not found".
	Open(path string) (Library, error)
}

// Library is an opened shared library.
type Library interface {
	// Lookup resolves an exported symbol. Variables resolve to a pointer.
	Lookup(symbol string) (any, error)
	// Close releases the library. Backends that cannot unload must make sure
	// nothing from the library stays reachable.
	Close() error
}
