package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/modhost/internal/binder"
	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/module"
)

type testHost struct {
	reg  *module.Registry
	subs *binder.Set
}

func (h *testHost) Register(c module.Category, name string, fn module.InitFunc) error {
	return h.reg.Register(module.Entry{Name: name, Category: c, Fn: fn})
}

func (h *testHost) Bind(subsystem string, impl any) error {
	return h.subs.Bind(subsystem, impl)
}

func TestRegisterBindsTableAndAddsInitEntry(t *testing.T) {
	tbl := display.NewTable()
	h := &testHost{reg: module.NewRegistry(), subs: binder.NewSet(tbl)}

	require.NoError(t, RegisterWith(Options{Addr: "0.0.0.0", Port: 5900})(h))
	assert.True(t, tbl.Bound())

	entries := h.reg.Entries(module.DisplayBackend)
	require.Len(t, entries, 1)
	assert.Equal(t, ModuleID, entries[0].Name)

	ops := tbl.Ops()
	ops.StartUsing()
	require.NoError(t, h.reg.Dispatch(module.DisplayBackend))
	ops.DisplayInit()

	info, err := ops.Query()
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, "0.0.0.0", info.Host)
	assert.Equal(t, 5900, info.Port)
}

func TestRegisterTwiceFails(t *testing.T) {
	tbl := display.NewTable()
	h := &testHost{reg: module.NewRegistry(), subs: binder.NewSet(tbl)}

	require.NoError(t, RegisterWith(Options{})(h))
	err := RegisterWith(Options{})(h)
	assert.ErrorIs(t, err, module.ErrOrderViolation)
}

func TestRegisterReadsEnvironment(t *testing.T) {
	t.Setenv("MODHOST_DISPLAY_PORT", "6000")
	t.Setenv("MODHOST_DISPLAY_PASSWORD", "hunter2")

	tbl := display.NewTable()
	h := &testHost{reg: module.NewRegistry(), subs: binder.NewSet(tbl)}
	require.NoError(t, Register(h))

	ops := tbl.Ops()
	ops.StartUsing()
	info, err := ops.Query()
	require.NoError(t, err)
	assert.Equal(t, 6000, info.Port)
	assert.Equal(t, "127.0.0.1", info.Host)
	assert.Equal(t, "ticket", info.Auth)
}

func startedServer(t *testing.T) *Server {
	t.Helper()
	s := New(Options{Addr: "127.0.0.1", Port: 5930})
	s.StartUsing()
	s.Init()
	s.DisplayInit()
	return s
}

func TestDisplayInitRequiresInit(t *testing.T) {
	s := New(Options{})
	assert.Panics(t, s.DisplayInit)

	s.Init() // not in use: no-op
	assert.Panics(t, s.DisplayInit)
}

func TestAddClient(t *testing.T) {
	s := New(Options{})
	assert.ErrorIs(t, s.AddClient(4, false, false), ErrNotReady)

	s = startedServer(t)
	assert.ErrorIs(t, s.AddClient(-1, false, false), ErrInvalidInput)
	require.NoError(t, s.AddClient(4, false, true))

	info, err := s.Query()
	require.NoError(t, err)
	assert.Equal(t, []display.ClientInfo{{Socket: 4, TLS: true}}, info.Clients)
}

func TestSetPassword(t *testing.T) {
	s := New(Options{})
	assert.ErrorIs(t, s.SetPassword("pw", false, false), ErrNotInUse)

	s = startedServer(t)
	require.NoError(t, s.AddClient(7, true, false))

	assert.ErrorIs(t, s.SetPassword("pw", true, false), ErrConnected)

	require.NoError(t, s.SetPassword("pw", false, true))
	info, err := s.Query()
	require.NoError(t, err)
	assert.Empty(t, info.Clients)
	assert.Equal(t, "ticket", info.Auth)
}

func TestSetPasswordKeepsClientsWhenNotDisconnecting(t *testing.T) {
	s := startedServer(t)
	require.NoError(t, s.AddClient(7, true, false))
	require.NoError(t, s.SetPassword("pw", false, false))

	info, err := s.Query()
	require.NoError(t, err)
	assert.Len(t, info.Clients, 1)
}

func TestSetPasswordExpiry(t *testing.T) {
	s := startedServer(t)
	when := time.Date(2030, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	require.NoError(t, s.SetPasswordExpiry(when))

	info, err := s.Query()
	require.NoError(t, err)
	require.NotNil(t, info.PasswordExpiry)
	assert.True(t, when.Equal(*info.PasswordExpiry))

	require.NoError(t, s.SetPasswordExpiry(time.Time{}))
	info, err = s.Query()
	require.NoError(t, err)
	assert.Nil(t, info.PasswordExpiry)
}

func TestMigrateInfo(t *testing.T) {
	s := startedServer(t)
	assert.ErrorIs(t, s.MigrateInfo("", 5900, 0, ""), ErrInvalidInput)
	assert.ErrorIs(t, s.MigrateInfo("dst", 0, 0, ""), ErrInvalidInput)
	require.NoError(t, s.MigrateInfo("dst", 0, 5901, "CN=dst"))

	info, err := s.Query()
	require.NoError(t, err)
	assert.True(t, info.Migrated)
	assert.Equal(t, &display.Migration{Host: "dst", TLSPort: 5901, Subject: "CN=dst"}, info.Migration)
}

func TestQueryWhenNotInUse(t *testing.T) {
	info, err := New(Options{Port: 1}).Query()
	require.NoError(t, err)
	assert.False(t, info.Enabled)
	assert.Zero(t, info.Port)
	assert.Equal(t, "none", info.Auth)
}
