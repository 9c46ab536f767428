// Package display is the call surface of the optional remote-display backend.
//
// The backend may be linked into the host, loaded later as a module, or not
// available at all. Callers always go through a Table; before a real
// implementation is bound the table answers with the Unavailable stand-in:
//
//   - InUse reports false and Init is a no-op.
//   - AddClient, SetPassword, SetPasswordExpiry, MigrateInfo and Query fail
//     with ErrUnavailable.
//   - StartUsing and DisplayInit must never be called unless the backend is
//     available; the stand-in panics with a *MisuseError.
package display

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/modhost/internal/binder"
	"github.com/mattjoyce/modhost/internal/log"
)

// Subsystem is the id the backend binds under.
const Subsystem = "display"

var (
	// ErrUnavailable is returned by stand-in operations when no backend is bound.
	ErrUnavailable = errors.New("remote display support is not available")
	// ErrNotActive is returned by Using when the backend is not in use.
	ErrNotActive = errors.New("remote display is not in use")
)

// Ops is the operation set a remote-display backend implements.
type Ops interface {
	InUse() bool
	StartUsing()
	Init()
	DisplayInit()
	AddClient(csock int, skipAuth, tls bool) error
	SetPassword(password string, failIfConnected, disconnectIfConnected bool) error
	SetPasswordExpiry(expires time.Time) error
	MigrateInfo(hostname string, port, tlsPort int, subject string) error
	Query() (*Info, error)
}

// Info is the status report returned by Query.
type Info struct {
	Enabled        bool         `json:"enabled"`
	Migrated       bool         `json:"migrated"`
	Host           string       `json:"host,omitempty"`
	Port           int          `json:"port,omitempty"`
	TLSPort        int          `json:"tls_port,omitempty"`
	Auth           string       `json:"auth"`
	PasswordExpiry *time.Time   `json:"password_expiry,omitempty"`
	Migration      *Migration   `json:"migration,omitempty"`
	Clients        []ClientInfo `json:"clients"`
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	Socket int  `json:"socket"`
	TLS    bool `json:"tls"`
}

// Migration holds the connection info handed to clients for a migration.
type Migration struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	TLSPort int    `json:"tls_port,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// MisuseError is the panic value raised when an operation reserved for an
// available backend is called on the stand-in.
type MisuseError struct {
	Op string
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("%s called but remote display support is disabled", e.Op)
}

// Unavailable is the stand-in used until a backend is bound.
type Unavailable struct{}

func (Unavailable) InUse() bool { return false }

func (Unavailable) StartUsing() { abort("StartUsing") }

func (Unavailable) Init() {}

func (Unavailable) DisplayInit() { abort("DisplayInit") }

func (Unavailable) AddClient(int, bool, bool) error { return ErrUnavailable }

func (Unavailable) SetPassword(string, bool, bool) error { return ErrUnavailable }

func (Unavailable) SetPasswordExpiry(time.Time) error { return ErrUnavailable }

func (Unavailable) MigrateInfo(string, int, int, string) error { return ErrUnavailable }

func (Unavailable) Query() (*Info, error) { return nil, ErrUnavailable }

func abort(op string) {
	err := &MisuseError{Op: op}
	log.WithComponent("display").Error("fatal misuse of unavailable subsystem", "op", op)
	panic(err)
}

// Table is the display operation table.
type Table = binder.Table[Ops]

// NewTable creates an unbound display table.
func NewTable() *Table {
	return binder.NewTable[Ops](Subsystem, Unavailable{})
}

// Using returns ErrNotActive unless the bound backend is in use.
func Using(t *Table) error {
	if !t.Ops().InUse() {
		return ErrNotActive
	}
	return nil
}
