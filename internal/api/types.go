package api

import (
	"time"

	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/journal"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	BootID        string `json:"boot_id,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ModulesLoaded int    `json:"modules_loaded"`
	// Pending counts categories that have not been dispatched.
	Pending int `json:"pending_categories"`
}

// CategoryResponse describes one init category.
type CategoryResponse struct {
	Name    string          `json:"name"`
	State   string          `json:"state"`
	Entries []EntryResponse `json:"entries"`
}

// EntryResponse describes one registered init entry.
type EntryResponse struct {
	Name   string `json:"name"`
	Origin string `json:"origin"`
}

// ModuleResponse describes a loaded or built-in module.
type ModuleResponse struct {
	ID       string     `json:"id"`
	Origin   string     `json:"origin"`
	Path     string     `json:"path,omitempty"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// HistoryResponse is returned by GET /v1/modules/{id}/history.
type HistoryResponse struct {
	Module   string            `json:"module"`
	Attempts []journal.Attempt `json:"attempts"`
}

// DisplayResponse is returned by GET /v1/display.
type DisplayResponse struct {
	Bound bool          `json:"bound"`
	Info  *display.Info `json:"info,omitempty"`
	Error string        `json:"error,omitempty"`
}
