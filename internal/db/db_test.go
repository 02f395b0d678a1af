package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/traffic.replay/internal/session"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pragmas.db")
	first, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	checks := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"},
		{"temp_store", "2"},
		{"foreign_keys", "1"},
	}
	for _, c := range checks {
		var got string
		require.NoError(t, db.QueryRow("PRAGMA "+c.pragma).Scan(&got))
		assert.Equal(t, c.want, got, c.pragma)
	}
	assert.Equal(t, path, db.Path())
}

func TestMigrations(t *testing.T) {
	latest, err := LatestMigrationVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	v, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(MigrationsFS()))
	require.NoError(t, db.MigrateUp(MigrationsFS()), "second up is a no-op")
	v, _, err = db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	require.NoError(t, db.MigrateDown(MigrationsFS()))
	v, _, err = db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='stream_runs'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	info := session.Info{
		ID:               "abc",
		Dataset:          "highD",
		FileID:           1,
		TotalFrames:      100,
		FrameStep:        2,
		ParticipantCount: 12,
		CreatedAt:        created,
		Speed:            trajectory.SpeedSummary{Samples: 10, Mean: 28.5, P85: 33},
	}
	require.NoError(t, db.RecordSession(ctx, info))
	info.TotalFrames = 50
	require.NoError(t, db.RecordSession(ctx, info), "re-recording replaces the row")

	got, err := db.RecentSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].SessionID)
	assert.Equal(t, 50, got[0].TotalFrames)
	assert.Equal(t, 2, got[0].FrameStep)
	assert.Equal(t, 28.5, got[0].MeanSpeed)
	assert.Equal(t, 33.0, got[0].P85Speed)
	assert.True(t, created.Equal(got[0].CreatedAt))
}

func TestRecordStreamRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []session.StreamRun{
		{SessionID: "s1", ClientID: "c1", Transport: "ws", FPS: 25, TotalFrames: 10, FramesSent: 10, Outcome: "completed"},
		{SessionID: "s1", ClientID: "c2", Transport: "grpc", FPS: 10, TotalFrames: 10, FramesSent: 3, Outcome: "cancelled"},
		{SessionID: "s2", ClientID: "c1", Transport: "ws", FPS: 25, TotalFrames: 4, FramesSent: 1, Outcome: "send_error", Error: "broken pipe"},
	}
	for i := range runs {
		runs[i].StartedAt = base.Add(time.Duration(i) * time.Minute)
		runs[i].FinishedAt = runs[i].StartedAt.Add(time.Second)
		require.NoError(t, db.RecordStreamRun(ctx, runs[i]))
	}

	all, err := db.RecentStreamRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s2", all[0].SessionID, "newest first")
	assert.Equal(t, "broken pipe", all[0].Error)
	assert.Equal(t, "", all[1].Error)

	s1, err := db.RecentStreamRuns(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, "c2", s1[0].ClientID)
	assert.Equal(t, 3, s1[0].FramesSent)
	assert.True(t, runs[1].FinishedAt.Equal(s1[0].FinishedAt))

	counts, err := db.OutcomeCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"completed": 1, "cancelled": 1, "send_error": 1}, counts)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordSession(context.Background(), session.Info{ID: "x", Dataset: "highD", CreatedAt: time.Now()}))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusNotFound, rec.Code, "backup route is registered")

	// The debug mux may refuse non-tailnet callers; exercise the handler directly.
	rec = httptest.NewRecorder()
	db.serveBackup(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "trafficreplay-backup-")

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	head := make([]byte, 16)
	_, err = io.ReadFull(zr, head)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(head))
}
