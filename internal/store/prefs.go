package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/banshee-data/museosc/internal/network"
)

// Preference keys.
const (
	PrefIPAddress = "ip_address"
	PrefPort      = "port_num"
)

const upsertPreference = `INSERT INTO preferences (key, value, updated_unix_nanos) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_unix_nanos = excluded.updated_unix_nanos`

// DefaultEndpoint is what ResetPreferences stores.
var DefaultEndpoint = network.Endpoint{Host: "10.0.0.0", Port: 5000}

// GetPreference returns the stored value for key.
func (db *DB) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return v, true, nil
}

// SetPreference stores value under key.
func (db *DB) SetPreference(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, upsertPreference, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// SaveEndpoint stores ep as the default send target.
func (db *DB) SaveEndpoint(ctx context.Context, ep network.Endpoint) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for key, value := range map[string]string{PrefIPAddress: ep.Host, PrefPort: strconv.Itoa(ep.Port)} {
		if _, err := tx.ExecContext(ctx, upsertPreference, key, value, now); err != nil {
			return fmt.Errorf("failed to save endpoint: %w", err)
		}
	}
	return tx.Commit()
}

// LoadEndpoint returns the stored send target. ok is false when none was
// saved.
func (db *DB) LoadEndpoint(ctx context.Context) (ep network.Endpoint, ok bool, err error) {
	host, hostOK, err := db.GetPreference(ctx, PrefIPAddress)
	if err != nil {
		return network.Endpoint{}, false, err
	}
	portStr, portOK, err := db.GetPreference(ctx, PrefPort)
	if err != nil {
		return network.Endpoint{}, false, err
	}
	if !hostOK || !portOK {
		return network.Endpoint{}, false, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return network.Endpoint{}, false, fmt.Errorf("stored port %q is not a number", portStr)
	}
	return network.Endpoint{Host: host, Port: port}, true, nil
}

// ResetPreferences restores the stored endpoint to DefaultEndpoint.
func (db *DB) ResetPreferences(ctx context.Context) error {
	return db.SaveEndpoint(ctx, DefaultEndpoint)
}
