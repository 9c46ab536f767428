// Package remote is the in-process remote-display backend. It is linked into
// the host by default and can also be built as the ui-remote loadable module.
package remote

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/log"
	"github.com/mattjoyce/modhost/internal/module"
)

// ModuleID is the loadable-module id of this backend.
const ModuleID = "ui-remote"

var (
	ErrConnected    = errors.New("clients are connected")
	ErrNotInUse     = errors.New("remote display is not in use")
	ErrNotReady     = errors.New("remote display is not initialized")
	ErrInvalidInput = errors.New("invalid argument")
)

// Options configures the listener the backend reports.
type Options struct {
	Addr    string `env:"MODHOST_DISPLAY_ADDR" envDefault:"127.0.0.1"`
	Port    int    `env:"MODHOST_DISPLAY_PORT" envDefault:"5930"`
	TLSPort int    `env:"MODHOST_DISPLAY_TLS_PORT"`
	// Password enables ticket auth when non-empty.
	Password string `env:"MODHOST_DISPLAY_PASSWORD"`
}

// OptionsFromEnv reads Options from the environment.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parse display env: %w", err)
	}
	return opts, nil
}

// Server is the backend state.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	inUse       bool
	initialized bool
	displayUp   bool
	password    string
	expiry      *time.Time
	clients     []display.ClientInfo
	migration   *display.Migration
}

// New creates a backend with opts.
func New(opts Options) *Server {
	return &Server{
		opts:     opts,
		password: opts.Password,
		logger:   log.WithModule(ModuleID),
	}
}

func (s *Server) InUse() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

func (s *Server) StartUsing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inUse = true
}

func (s *Server) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inUse || s.initialized {
		return
	}
	s.initialized = true
	s.logger.Info("remote display listening", "addr", s.opts.Addr, "port", s.opts.Port, "tls_port", s.opts.TLSPort)
}

// DisplayInit attaches the display channels. It requires Init to have run.
func (s *Server) DisplayInit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		panic(fmt.Errorf("display init: %w", ErrNotReady))
	}
	s.displayUp = true
}

func (s *Server) AddClient(csock int, skipAuth, tls bool) error {
	if csock < 0 {
		return fmt.Errorf("add client: socket %d: %w", csock, ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.displayUp {
		return fmt.Errorf("add client: %w", ErrNotReady)
	}
	if !skipAuth && s.password == "" {
		s.logger.Debug("client accepted without ticket", "socket", csock)
	}
	s.clients = append(s.clients, display.ClientInfo{Socket: csock, TLS: tls})
	return nil
}

func (s *Server) SetPassword(password string, failIfConnected, disconnectIfConnected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inUse {
		return ErrNotInUse
	}
	if len(s.clients) > 0 {
		if failIfConnected {
			return fmt.Errorf("set password: %w", ErrConnected)
		}
		if disconnectIfConnected {
			s.logger.Info("disconnecting clients after password change", "clients", len(s.clients))
			s.clients = nil
		}
	}
	s.password = password
	return nil
}

// SetPasswordExpiry sets when the ticket expires. A zero time clears it.
func (s *Server) SetPasswordExpiry(expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inUse {
		return ErrNotInUse
	}
	if expires.IsZero() {
		s.expiry = nil
		return nil
	}
	t := expires.UTC()
	s.expiry = &t
	return nil
}

func (s *Server) MigrateInfo(hostname string, port, tlsPort int, subject string) error {
	if hostname == "" {
		return fmt.Errorf("migrate info: hostname is empty: %w", ErrInvalidInput)
	}
	if port <= 0 && tlsPort <= 0 {
		return fmt.Errorf("migrate info: need port or tls port: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inUse {
		return ErrNotInUse
	}
	s.migration = &display.Migration{Host: hostname, Port: port, TLSPort: tlsPort, Subject: subject}
	return nil
}

func (s *Server) Query() (*display.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := &display.Info{
		Enabled: s.inUse,
		Auth:    "none",
		Clients: append([]display.ClientInfo{}, s.clients...),
	}
	if !s.inUse {
		return info, nil
	}
	info.Host = s.opts.Addr
	info.Port = s.opts.Port
	info.TLSPort = s.opts.TLSPort
	if s.password != "" {
		info.Auth = "ticket"
	}
	if s.expiry != nil {
		t := *s.expiry
		info.PasswordExpiry = &t
	}
	if s.migration != nil {
		m := *s.migration
		info.Migration = &m
		info.Migrated = true
	}
	return info, nil
}

// RegisterWith returns a RegisterFunc that adds the display-backend init
// entry of a backend built from opts and binds it to the display table.
func RegisterWith(opts Options) module.RegisterFunc {
	return func(h module.Host) error {
		srv := New(opts)
		if err := h.Register(module.DisplayBackend, ModuleID, srv.Init); err != nil {
			return fmt.Errorf("register %s: %w", ModuleID, err)
		}
		if err := h.Bind(display.Subsystem, display.Ops(srv)); err != nil {
			return fmt.Errorf("register %s: %w", ModuleID, err)
		}
		return nil
	}
}

// Register is the module entry point; it takes its options from the environment.
func Register(h module.Host) error {
	opts, err := OptionsFromEnv()
	if err != nil {
		return err
	}
	return RegisterWith(opts)(h)
}
