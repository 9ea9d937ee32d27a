package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/session"
)

// StartSession records a new session. It implements session.Recorder.
func (db *DB) StartSession(ctx context.Context, info session.Info) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, device_id, host, port, namespace, started_unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.DeviceID, info.Endpoint.Host, info.Endpoint.Port, info.Namespace, info.Started.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", info.ID, err)
	}
	return nil
}

// EndSession stores the end time and transmit counters of a session.
func (db *DB) EndSession(ctx context.Context, info session.Info, c network.Counters) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET ended_unix_nanos = ?, sent = ?, dropped = ?, failed = ? WHERE session_id = ?`,
		info.Ended.UnixNano(), c.Sent, c.Dropped, c.Failed, info.ID)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", info.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", info.ID)
	}
	return nil
}

// RecordConnection appends a device connection event. sessionID may be empty
// for events outside a session.
func (db *DB) RecordConnection(ctx context.Context, sessionID string, evt packet.ConnectionEvent, at time.Time) error {
	var sid sql.NullString
	if sessionID != "" {
		sid = sql.NullString{String: sessionID, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO connection_events (session_id, device_id, previous, current, version, at_unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sid, evt.DeviceID, evt.Previous.String(), evt.Current.String(), evt.Version, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert connection event: %w", err)
	}
	return nil
}

// SessionRecord is a stored session row.
type SessionRecord struct {
	ID        string
	DeviceID  string
	Endpoint  network.Endpoint
	Namespace string
	Started   time.Time
	// Ended is zero while the session is open.
	Ended   time.Time
	Sent    uint64
	Dropped uint64
	Failed  uint64
}

// Duration is the session length so far, or in total once ended.
func (r SessionRecord) Duration(now time.Time) time.Duration {
	if r.Ended.IsZero() {
		return now.Sub(r.Started)
	}
	return r.Ended.Sub(r.Started)
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, device_id, host, port, namespace, started_unix_nanos, ended_unix_nanos, sent, dropped, failed
		 FROM sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Endpoint.Host, &r.Endpoint.Port, &r.Namespace,
			&started, &ended, &r.Sent, &r.Dropped, &r.Failed); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started).UTC()
		if ended.Valid {
			r.Ended = time.Unix(0, ended.Int64).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ConnectionRecord is a stored connection event.
type ConnectionRecord struct {
	SessionID string
	Event     packet.ConnectionEvent
	At        time.Time
}

// ConnectionEvents returns the events of one session in order. An empty
// sessionID selects events recorded outside any session.
func (db *DB) ConnectionEvents(ctx context.Context, sessionID string) ([]ConnectionRecord, error) {
	query := `SELECT session_id, device_id, previous, current, version, at_unix_nanos
		FROM connection_events WHERE session_id = ? ORDER BY at_unix_nanos, event_id`
	args := []interface{}{sessionID}
	if sessionID == "" {
		query = `SELECT session_id, device_id, previous, current, version, at_unix_nanos
			FROM connection_events WHERE session_id IS NULL ORDER BY at_unix_nanos, event_id`
		args = nil
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection events: %w", err)
	}
	defer rows.Close()

	var out []ConnectionRecord
	for rows.Next() {
		var r ConnectionRecord
		var sid sql.NullString
		var prev, cur string
		var at int64
		if err := rows.Scan(&sid, &r.Event.DeviceID, &prev, &cur, &r.Event.Version, &at); err != nil {
			return nil, err
		}
		r.SessionID = sid.String
		r.Event.Previous = packet.ParseConnectionState(prev)
		r.Event.Current = packet.ParseConnectionState(cur)
		r.At = time.Unix(0, at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ session.Recorder = (*DB)(nil)
