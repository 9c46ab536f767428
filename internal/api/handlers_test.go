package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mattjoyce/modhost/internal/binder"
	"github.com/mattjoyce/modhost/internal/display"
	"github.com/mattjoyce/modhost/internal/display/remote"
	"github.com/mattjoyce/modhost/internal/events"
	"github.com/mattjoyce/modhost/internal/journal"
	"github.com/mattjoyce/modhost/internal/loader"
	"github.com/mattjoyce/modhost/internal/module"
	"github.com/mattjoyce/modhost/internal/storage"
)

type fixture struct {
	registry *module.Registry
	loader   *loader.Loader
	table    *display.Table
	journal  *journal.Store
	events   *events.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := module.NewRegistry()
	for _, name := range []string{"b1", "b2"} {
		if err := reg.Register(module.Entry{Name: name, Category: module.Block, Fn: func() {}}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := reg.Register(module.Entry{Name: remote.ModuleID, Category: module.DisplayBackend, Origin: module.Dynamic, Fn: func() {}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Dispatch(module.Block); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	l := loader.New(loader.Config{})
	l.MarkBuiltin(remote.ModuleID)

	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := journal.NewStore(db)
	if _, err := store.Record(context.Background(), journal.Attempt{
		BootID: "boot-1", ModuleID: "block-curl", Outcome: "not_found", HostStamp: "abc",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	hub := events.NewHub(0)
	hub.Publish(events.StartupBegin, map[string]string{"boot_id": "boot-1"})
	hub.Publish(events.CategoryDispatched, map[string]string{"boot_id": "boot-1", "category": "block"})

	return &fixture{registry: reg, loader: l, table: display.NewTable(), journal: store, events: hub}
}

func (f *fixture) server(cfg Config) *Server {
	return New(cfg, Deps{
		Registry:   f.registry,
		Modules:    f.loader,
		Subsystems: binder.NewSet(f.table),
		History:    f.journal,
		Display:    f.table,
		Events:     f.events,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.server(Config{BootID: "boot-1", APIKey: "k"}).Handler(), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decode[HealthzResponse](t, rr)
	if resp.Status != "ok" || resp.BootID != "boot-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ModulesLoaded != 1 {
		t.Fatalf("expected 1 module, got %d", resp.ModulesLoaded)
	}
	if resp.Pending != len(module.Categories())-1 {
		t.Fatalf("expected %d pending categories, got %d", len(module.Categories())-1, resp.Pending)
	}
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{}).Handler()

	rr := get(t, h, "/v1/categories")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	cats := decode[[]CategoryResponse](t, rr)
	if len(cats) != len(module.Categories()) {
		t.Fatalf("expected every category, got %d", len(cats))
	}
	if cats[0].Name != "migration" || cats[0].State != "pending" || len(cats[0].Entries) != 0 {
		t.Fatalf("unexpected first category: %+v", cats[0])
	}

	rr = get(t, h, "/v1/categories/block")
	block := decode[CategoryResponse](t, rr)
	if block.State != "done" || len(block.Entries) != 2 || block.Entries[1].Name != "b2" || block.Entries[0].Origin != "static" {
		t.Fatalf("unexpected block category: %+v", block)
	}

	rr = get(t, h, "/v1/categories/display-backend")
	db := decode[CategoryResponse](t, rr)
	if db.Entries[0].Origin != "dynamic" {
		t.Fatalf("expected dynamic origin, got %+v", db)
	}

	if rr := get(t, h, "/v1/categories/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown category, got %d", rr.Code)
	}
}

func TestModules(t *testing.T) {
	f := newFixture(t)
	rr := get(t, f.server(Config{}).Handler(), "/v1/modules")
	mods := decode[[]ModuleResponse](t, rr)
	if len(mods) != 1 || mods[0].ID != remote.ModuleID || mods[0].Origin != "static" {
		t.Fatalf("unexpected modules: %+v", mods)
	}
}

func TestModuleHistory(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{}).Handler()

	rr := get(t, h, "/v1/modules/block-curl/history?limit=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[HistoryResponse](t, rr)
	if resp.Module != "block-curl" || len(resp.Attempts) != 1 || resp.Attempts[0].Outcome != "not_found" {
		t.Fatalf("unexpected history: %+v", resp)
	}

	rr = get(t, h, "/v1/modules/ui-other/history")
	if resp := decode[HistoryResponse](t, rr); len(resp.Attempts) != 0 {
		t.Fatalf("expected no attempts, got %+v", resp.Attempts)
	}

	for _, limit := range []string{"0", "-1", "abc", "501"} {
		if rr := get(t, h, "/v1/modules/block-curl/history?limit="+limit); rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", limit, rr.Code)
		}
	}
}

func TestModuleHistoryJournalDisabled(t *testing.T) {
	f := newFixture(t)
	s := New(Config{}, Deps{Registry: f.registry, Modules: f.loader, Subsystems: binder.NewSet()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if rr := get(t, s.Handler(), "/v1/modules/block-curl/history"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := get(t, s.Handler(), "/v1/display"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDisplayUnbound(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{}).Handler()

	subs := decode[map[string]bool](t, get(t, h, "/v1/subsystems"))
	if bound, ok := subs[display.Subsystem]; !ok || bound {
		t.Fatalf("expected unbound display subsystem, got %v", subs)
	}

	resp := decode[DisplayResponse](t, get(t, h, "/v1/display"))
	if resp.Bound || resp.Info != nil || resp.Error == "" {
		t.Fatalf("unexpected display response: %+v", resp)
	}
}

func TestDisplayBound(t *testing.T) {
	f := newFixture(t)
	srv := remote.New(remote.Options{Addr: "127.0.0.1", Port: 5930, Password: "pw"})
	if err := f.table.Bind(srv); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	srv.StartUsing()
	h := f.server(Config{}).Handler()

	subs := decode[map[string]bool](t, get(t, h, "/v1/subsystems"))
	if !subs[display.Subsystem] {
		t.Fatalf("expected bound display subsystem, got %v", subs)
	}

	resp := decode[DisplayResponse](t, get(t, h, "/v1/display"))
	if !resp.Bound || resp.Info == nil || !resp.Info.Enabled || resp.Info.Port != 5930 || resp.Info.Auth != "ticket" {
		t.Fatalf("unexpected display response: %+v", resp)
	}
}

func TestAPIKeyGuardsV1(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{APIKey: "secret"}).Handler()

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"basic auth", []string{"Authorization", "Basic abc"}, http.StatusUnauthorized},
		{"empty bearer", []string{"Authorization", "Bearer   "}, http.StatusUnauthorized},
		{"wrong key", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"valid key", []string{"Authorization", "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := get(t, h, "/v1/modules", tt.header...); rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	if !ValidateAPIKey("provided", "provided") {
		t.Fatalf("expected true for matching keys")
	}
	if ValidateAPIKey("provided", "other") {
		t.Fatalf("expected false for mismatched keys")
	}
	if ValidateAPIKey("", "configured") {
		t.Fatalf("expected false for empty provided key")
	}
	if ValidateAPIKey("provided", "") {
		t.Fatalf("expected false for empty configured key")
	}
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
	req.Header.Set("Authorization", "Bearer test-key")
	key, err := ExtractAPIKey(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if key != "test-key" {
		t.Fatalf("expected key %q, got %q", "test-key", key)
	}
}
