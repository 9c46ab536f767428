package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/modhost/internal/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestRecordFillsDefaults(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	a, err := s.Record(context.Background(), Attempt{BootID: "b1", ModuleID: "ui-remote", Outcome: "success", HostStamp: "abc"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.AttemptedAt.IsZero())
	assert.Equal(t, time.UTC, a.AttemptedAt.Location())
}

func TestRecordValidation(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	_, err := s.Record(context.Background(), Attempt{Outcome: "success"})
	assert.ErrorContains(t, err, "module id is empty")

	_, err = s.Record(context.Background(), Attempt{ModuleID: "ui-remote"})
	assert.ErrorContains(t, err, "outcome is empty")
}

func TestRecentNewestFirstAndFiltered(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	attempts := []Attempt{
		{ModuleID: "block-curl", Outcome: "not_found", Detail: "no such file", AttemptedAt: base},
		{ModuleID: "ui-remote", Outcome: "version_mismatch", Path: "/mods/ui-remote.so", AttemptedAt: base.Add(time.Minute)},
		{ModuleID: "ui-remote", Outcome: "success", Path: "/mods/ui-remote.so", AttemptedAt: base.Add(2 * time.Minute)},
	}
	for _, a := range attempts {
		a.BootID = "boot"
		a.HostStamp = "stamp"
		_, err := s.Record(ctx, a)
		require.NoError(t, err)
	}

	all, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "success", all[0].Outcome)
	assert.Equal(t, "block-curl", all[2].ModuleID)
	assert.Equal(t, "no such file", all[2].Detail)
	assert.Empty(t, all[2].Path)
	assert.True(t, base.Equal(all[2].AttemptedAt))

	remote, err := s.Recent(ctx, "ui-remote", 1)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "success", remote[0].Outcome)
	assert.Equal(t, "/mods/ui-remote.so", remote[0].Path)
}
