//go:build modplugin

// Command ui-remote is the remote display backend built as a loadable module:
//
//	go build -tags modplugin -buildmode=plugin \
//	  -ldflags "-X main.ModuleStamp=$(modhost stamp)" \
//	  -o ui-remote.so ./plugins/ui-remote
//
// The host must be built with -tags display_module so the backend is not
// linked in twice.
package main

import (
	"github.com/mattjoyce/modhost/internal/display/remote"
	"github.com/mattjoyce/modhost/internal/module"
)

// ModuleMarker identifies this shared object as a modhost module.
var ModuleMarker bool

// ModuleStamp is the compatibility token of the host this module was built
// for. It is set at link time.
var ModuleStamp string

// ModuleRegister adds the display-backend init entry and binds the display
// operation table.
func ModuleRegister(h module.Host) error {
	return remote.Register(h)
}

func main() {}
