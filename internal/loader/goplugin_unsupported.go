//go:build !((linux || darwin || freebsd) && cgo)

package loader

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("dynamic modules are not supported on " + runtime.GOOS + " or without cgo")

type unsupportedOpener struct{}

// NewOpener returns the dynamic-loading facility for this platform.
func NewOpener() Opener { return unsupportedOpener{} }

// Supported reports whether this platform can load modules.
func Supported() bool { return false }

func (unsupportedOpener) Open(string) (Library, error) {
	return nil, errUnsupported
}
