//go:build display_module

package main

import (
	"os"
	"strconv"

	"github.com/mattjoyce/modhost/internal/boot"
	"github.com/mattjoyce/modhost/internal/config"
)

const displayBuiltin = false

// builtinModules links nothing in: the remote display is loaded as the
// ui-remote module. The module reads its settings from the environment, so
// the display section of the config is exported for it.
func builtinModules(cfg *config.Config) []boot.StaticModule {
	setenvDefault("MODHOST_DISPLAY_ADDR", cfg.Display.Addr)
	if cfg.Display.Port > 0 {
		setenvDefault("MODHOST_DISPLAY_PORT", strconv.Itoa(cfg.Display.Port))
	}
	if cfg.Display.TLSPort > 0 {
		setenvDefault("MODHOST_DISPLAY_TLS_PORT", strconv.Itoa(cfg.Display.TLSPort))
	}
	setenvDefault("MODHOST_DISPLAY_PASSWORD", cfg.Display.Password)
	return nil
}

func setenvDefault(key, value string) {
	if value == "" {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	_ = os.Setenv(key, value)
}
