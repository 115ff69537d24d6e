package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsule/internal/job"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := OpenSQLite(path, NewKeyer("test"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path, NewKeyer("test"))
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := OpenSQLite(path, NewKeyer("test"))
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	s := createTestSQLite(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestSQLite_StoreAndFetch(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	jobs := testJobs(t)
	key := s.ForJob(job.CSS, jobs[0].Tree())

	_, ok, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "fresh database misses")

	require.NoError(t, s.Store(ctx, key, jobs))

	got, ok, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, jobs[1].Tree().Canonical(jobs[1].Tree().Root()), got[1].Tree().Canonical(got[1].Tree().Root()))
}

func TestSQLite_EmptyEntryIsAHit(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	var key job.Key
	key[31] = 7

	require.NoError(t, s.Store(ctx, key, nil))

	got, ok, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSQLite_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	jobs := testJobs(t)
	var key job.Key

	require.NoError(t, s.Store(ctx, key, jobs[:1]))
	require.NoError(t, s.Store(ctx, key, jobs), "duplicate store is silently ignored")

	got, ok, err := s.Fetch(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestSQLite_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	jobs := testJobs(t)

	s1, err := OpenSQLite(path, NewKeyer("test"))
	require.NoError(t, err)
	key := s1.ForJob(job.CSS, jobs[0].Tree())
	require.NoError(t, s1.Store(ctx, key, jobs))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(path, NewKeyer("test"))
	require.NoError(t, err)
	defer s2.Close()

	_, ok, err := s2.Fetch(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_CorruptPayloadIsAMissWithError(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	var key job.Key
	_, err := s.db.Exec("INSERT INTO cache_entries (key, job_count, payload, stored_at) VALUES (?, 0, ?, 0)", key.String(), []byte{42})
	require.NoError(t, err)

	_, ok, err := s.Fetch(ctx, key)

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSQLite_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	s := createTestSQLite(t)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	jobs := testJobs(t)

	var k1, k2 job.Key
	k2[0] = 1
	require.NoError(t, s.Store(ctx, k1, jobs))
	require.NoError(t, s.Store(ctx, k2, jobs[:1]))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Entries)
	assert.Equal(t, int64(3), st.Jobs)
	assert.Positive(t, st.Bytes)
	assert.Equal(t, int64(1700000000), st.Oldest)

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}
