package store

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/museosc/internal/httputil"
	"github.com/banshee-data/museosc/internal/monitoring"
)

// sessionView is the JSON shape of a stored session.
type sessionView struct {
	ID       string     `json:"id"`
	DeviceID string     `json:"device_id"`
	Endpoint string     `json:"endpoint"`
	Started  time.Time  `json:"started"`
	Ended    *time.Time `json:"ended"`
	Seconds  float64    `json:"seconds"`
	Sent     uint64     `json:"sent"`
	Dropped  uint64     `json:"dropped"`
	Failed   uint64     `json:"failed"`
}

type eventView struct {
	At       time.Time `json:"at"`
	Previous string    `json:"previous"`
	Current  string    `json:"current"`
	DeviceID string    `json:"device_id"`
	Version  string    `json:"version,omitempty"`
}

// AttachAdminRoutes mounts tailsql, session history and a backup download
// under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{Label: "museosc sessions"})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.KVFunc("Schema", func() any {
		v, dirty, err := db.MigrateVersion()
		if err != nil {
			return err.Error()
		}
		if dirty {
			return fmt.Sprintf("v%d (dirty)", v)
		}
		return fmt.Sprintf("v%d", v)
	})
	debug.Handle("sessions.json", "Recent sessions; ?id= lists one session's connection events", http.HandlerFunc(db.serveSessions))
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveSessions(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		events, err := db.ConnectionEvents(r.Context(), id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		out := make([]eventView, 0, len(events))
		for _, e := range events {
			out = append(out, eventView{
				At:       e.At,
				Previous: e.Event.Previous.String(),
				Current:  e.Event.Current.String(),
				DeviceID: e.Event.DeviceID,
				Version:  e.Event.Version,
			})
		}
		httputil.WriteJSONOK(w, out)
		return
	}

	records, err := db.RecentSessions(r.Context(), 50)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	now := time.Now()
	out := make([]sessionView, 0, len(records))
	for _, rec := range records {
		v := sessionView{
			ID:       rec.ID,
			DeviceID: rec.DeviceID,
			Endpoint: rec.Endpoint.String(),
			Started:  rec.Started,
			Seconds:  rec.Duration(now).Seconds(),
			Sent:     rec.Sent,
			Dropped:  rec.Dropped,
			Failed:   rec.Failed,
		}
		if !rec.Ended.IsZero() {
			ended := rec.Ended
			v.Ended = &ended
		}
		out = append(out, v)
	}
	httputil.WriteJSONOK(w, out)
}

// serveBackup snapshots the database with VACUUM INTO and streams it gzipped.
func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	snapshot := filepath.Join(os.TempDir(), fmt.Sprintf("museosc-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", snapshot); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("backup failed: %v", err))
		return
	}
	defer os.Remove(snapshot)

	f, err := os.Open(snapshot)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("backup failed: %v", err))
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", "application/gzip")
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(snapshot)))
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("backup stream interrupted: %v", err)
	}
}
