package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/soyeahso/depot/internal/logging"
	"github.com/soyeahso/depot/internal/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(MemoryPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func report(id string, kind plugin.Kind, started time.Time) *plugin.Report {
	return &plugin.Report{
		ID:         id,
		Kind:       kind,
		Root:       "/srv/plugins/" + kind.Plural(),
		StartedAt:  started,
		FinishedAt: started.Add(150 * time.Millisecond),
		Loaded:     []string{"yum", "deb"},
		Skipped:    []string{"legacy"},
		Failures: []plugin.Failure{
			{Candidate: "/srv/plugins/broken", Err: errors.New("missing plugin.yaml")},
		},
	}
}

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "depot.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopen applies no migrations twice.
	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate(context.Background()))

	v, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestMigrations_RejectsNewerSchema(t *testing.T) {
	db := testDB(t)
	_, err := db.sql.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	assert.ErrorContains(t, db.migrate(context.Background()), "newer than this build")
}

func TestOpen_ForeignKeysOn(t *testing.T) {
	db := testDB(t)
	var on int
	require.NoError(t, db.sql.QueryRow("PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"discovery_runs", "discovery_failures"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestRunStore_RecordAndGet(t *testing.T) {
	rs := NewRunStore(testDB(t))
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, rs.Record(ctx, report("run-1", plugin.KindImporter, started)))

	run, err := rs.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "importer", run.Kind)
	assert.Equal(t, "/srv/plugins/importers", run.Root)
	assert.True(t, run.StartedAt.Equal(started))
	assert.Equal(t, 150*time.Millisecond, run.FinishedAt.Sub(run.StartedAt))
	assert.Equal(t, []string{"yum", "deb"}, run.Loaded)
	assert.Equal(t, []string{"legacy"}, run.Skipped)
	assert.Equal(t, []string{}, run.Removed)
	assert.Equal(t, []RunFailure{{Candidate: "/srv/plugins/broken", Error: "missing plugin.yaml"}}, run.Failures)
}

func TestRunStore_GetMissing(t *testing.T) {
	rs := NewRunStore(testDB(t))
	_, err := rs.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRunStore_DuplicateID(t *testing.T) {
	rs := NewRunStore(testDB(t))
	ctx := context.Background()
	r := report("dup", plugin.KindImporter, time.Now())
	require.NoError(t, rs.Record(ctx, r))
	assert.Error(t, rs.Record(ctx, r))

	// The failed insert left nothing behind.
	run, err := rs.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, run.Failures, 1)
}

func TestRunStore_List(t *testing.T) {
	rs := NewRunStore(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, rs.Record(ctx, report("a", plugin.KindImporter, base)))
	require.NoError(t, rs.Record(ctx, report("b", plugin.KindDistributor, base.Add(time.Minute))))
	require.NoError(t, rs.Record(ctx, report("c", plugin.KindImporter, base.Add(2*time.Minute))))

	all, err := rs.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)

	imps, err := rs.List(ctx, "importer", 0)
	require.NoError(t, err)
	require.Len(t, imps, 2)
	for _, r := range imps {
		assert.Equal(t, "importer", r.Kind)
		assert.Len(t, r.Failures, 1)
	}

	latest, err := rs.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "c", latest[0].ID)
}

func TestRunStore_Prune(t *testing.T) {
	db := testDB(t)
	rs := NewRunStore(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, rs.Record(ctx, report(id, plugin.KindImporter, base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := rs.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	runs, err := rs.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "c", runs[0].ID)

	var orphans int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM discovery_failures WHERE run_id != 'c'").Scan(&orphans))
	assert.Zero(t, orphans)
}
