//go:build !display_module

package main

import (
	"github.com/mattjoyce/modhost/internal/boot"
	"github.com/mattjoyce/modhost/internal/config"
	"github.com/mattjoyce/modhost/internal/display/remote"
)

const displayBuiltin = true

// builtinModules lists the feature groups linked into this binary. The
// remote display is built in unless the binary is built with the
// display_module tag, in which case it ships as the ui-remote module.
func builtinModules(cfg *config.Config) []boot.StaticModule {
	return []boot.StaticModule{{
		ID: remote.ModuleID,
		Register: remote.RegisterWith(remote.Options{
			Addr:     cfg.Display.Addr,
			Port:     cfg.Display.Port,
			TLSPort:  cfg.Display.TLSPort,
			Password: cfg.Display.Password,
		}),
	}}
}
