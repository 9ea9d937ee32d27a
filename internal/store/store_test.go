package store

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/session"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })
	monitoring.SetLogger(nil)

	db, err := Open(filepath.Join(t.TempDir(), "museosc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_AppliesPragmasAndMigrations(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// migrating again is a no-op
	require.NoError(t, db.MigrateUp())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "museosc.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveEndpoint(context.Background(), network.Endpoint{Host: "192.168.1.5", Port: 9000}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	ep, ok, err := db.LoadEndpoint(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, network.Endpoint{Host: "192.168.1.5", Port: 9000}, ep)
	assert.Equal(t, path, db.Path())
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	_, _, err = db.GetPreference(context.Background(), PrefPort)
	assert.Error(t, err, "preferences table should be gone")
}

func TestPreferences(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.LoadEndpoint(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.ResetPreferences(ctx))
	ep, ok, err := db.LoadEndpoint(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultEndpoint, ep)

	require.NoError(t, db.SetPreference(ctx, PrefPort, "7000"))
	v, ok, err := db.GetPreference(ctx, PrefPort)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7000", v)

	assert.ErrorIs(t, db.SaveEndpoint(ctx, network.Endpoint{Host: "", Port: 1}), network.ErrInvalidEndpoint)

	require.NoError(t, db.SetPreference(ctx, PrefPort, "many"))
	_, _, err = db.LoadEndpoint(ctx)
	assert.Error(t, err)
}

func TestSessionsAndConnections(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	info := session.Info{
		ID:        "3f1c2a7e-0000-4000-8000-000000000001",
		DeviceID:  "00:06:66:aa:bb:cc",
		Endpoint:  network.Endpoint{Host: "127.0.0.1", Port: 5000},
		Namespace: "muse",
		Started:   t0,
	}
	require.NoError(t, db.StartSession(ctx, info))
	require.NoError(t, db.RecordConnection(ctx, "", packet.ConnectionEvent{Previous: packet.StateDisconnected, Current: packet.StateConnecting, DeviceID: info.DeviceID}, t0.Add(-time.Second)))
	require.NoError(t, db.RecordConnection(ctx, info.ID, packet.ConnectionEvent{Previous: packet.StateConnecting, Current: packet.StateConnected, DeviceID: info.DeviceID, Version: "Consumer - 7.3.4 - 2"}, t0.Add(time.Second)))

	sessions, err := db.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Ended.IsZero())
	assert.Equal(t, 2*time.Minute, sessions[0].Duration(t0.Add(2*time.Minute)))

	info.Ended = t0.Add(time.Minute)
	require.NoError(t, db.EndSession(ctx, info, network.Counters{Sent: 120, Dropped: 3, Failed: 1}))

	sessions, err = db.RecentSessions(ctx, 10)
	require.NoError(t, err)
	want := []SessionRecord{{
		ID:        info.ID,
		DeviceID:  info.DeviceID,
		Endpoint:  info.Endpoint,
		Namespace: "muse",
		Started:   t0,
		Ended:     t0.Add(time.Minute),
		Sent:      120,
		Dropped:   3,
		Failed:    1,
	}}
	if diff := cmp.Diff(want, sessions); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, time.Minute, sessions[0].Duration(t0.Add(time.Hour)))

	events, err := db.ConnectionEvents(ctx, info.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CONNECTING -> CONNECTED", events[0].Event.Transition())
	assert.Equal(t, "Consumer - 7.3.4 - 2", events[0].Event.Version)
	assert.Equal(t, t0.Add(time.Second), events[0].At)

	orphans, err := db.ConnectionEvents(ctx, "")
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "", orphans[0].SessionID)

	err = db.EndSession(ctx, session.Info{ID: "missing"}, network.Counters{})
	assert.Error(t, err)
}

func TestAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func seedSession(t *testing.T, db *DB) session.Info {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	info := session.Info{
		ID:       "3f1c2a7e-0000-4000-8000-000000000002",
		DeviceID: "00:06:66:aa:bb:cc",
		Endpoint: network.Endpoint{Host: "127.0.0.1", Port: 5000},
		Started:  t0,
	}
	require.NoError(t, db.StartSession(ctx, info))
	require.NoError(t, db.RecordConnection(ctx, info.ID, packet.ConnectionEvent{Previous: packet.StateConnecting, Current: packet.StateConnected, DeviceID: info.DeviceID}, t0))
	info.Ended = t0.Add(90 * time.Second)
	require.NoError(t, db.EndSession(ctx, info, network.Counters{Sent: 10}))
	return info
}

func TestAdminRoutes_Sessions(t *testing.T) {
	db := openTestDB(t)
	info := seedSession(t, db)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.RemoteAddr = "127.0.0.1:12345"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/debug/sessions.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, info.ID, sessions[0].ID)
	assert.Equal(t, "127.0.0.1:5000", sessions[0].Endpoint)
	assert.Equal(t, 90.0, sessions[0].Seconds)
	require.NotNil(t, sessions[0].Ended)

	rec = get("/debug/sessions.json?id=" + info.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []eventView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "CONNECTED", events[0].Current)
}

func TestRunCommand(t *testing.T) {
	db := openTestDB(t)
	info := seedSession(t, db)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, RunCommand(ctx, &out, db, []string{"migrate", "status"}))
	assert.Equal(t, "schema version 1 (dirty: false)\n", out.String())

	out.Reset()
	require.NoError(t, RunCommand(ctx, &out, db, []string{"sessions", "5"}))
	assert.Contains(t, out.String(), info.ID)
	assert.Contains(t, out.String(), "1m30s")

	out.Reset()
	require.NoError(t, RunCommand(ctx, &out, db, []string{"events", info.ID}))
	assert.Contains(t, out.String(), "CONNECTING -> CONNECTED")

	out.Reset()
	require.NoError(t, RunCommand(ctx, &out, db, []string{"events", "missing"}))
	assert.Contains(t, out.String(), "no connection events")

	out.Reset()
	require.NoError(t, RunCommand(ctx, &out, db, []string{"reset-endpoint"}))
	ep, ok, err := db.LoadEndpoint(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultEndpoint, ep)

	for _, args := range [][]string{nil, {"migrate"}, {"migrate", "sideways"}, {"events"}, {"bogus"}} {
		assert.ErrorIs(t, RunCommand(ctx, &out, db, args), ErrUsage, "%v", args)
	}
	assert.Error(t, RunCommand(ctx, &out, db, []string{"sessions", "zero"}))

	out.Reset()
	require.NoError(t, RunCommand(ctx, &out, db, []string{"migrate", "down"}))
	assert.Equal(t, "schema version 0 (dirty: false)\n", out.String())
}

func TestOpenUnmigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	db, err := OpenUnmigrated(path)
	require.NoError(t, err)
	defer db.Close()

	var out bytes.Buffer
	require.NoError(t, RunCommand(context.Background(), &out, db, []string{"migrate", "status"}))
	assert.Equal(t, "schema version 0 (dirty: false)\n", out.String())

	out.Reset()
	require.NoError(t, RunCommand(context.Background(), &out, db, []string{"migrate", "up"}))
	assert.Equal(t, "schema version 1 (dirty: false)\n", out.String())
}
