package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

// ErrUsage is returned for an unknown or incomplete command.
var ErrUsage = errors.New("usage: museosc [flags] migrate up|down|status | sessions [limit] | events <session-id> | reset-endpoint")

// RunCommand runs one of the database maintenance subcommands and writes its
// report to w.
func RunCommand(ctx context.Context, w io.Writer, db *DB, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "migrate":
		if len(args) < 2 {
			return ErrUsage
		}
		return runMigrate(w, db, args[1])
	case "sessions":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			limit = n
		}
		return printSessions(ctx, w, db, limit)
	case "events":
		if len(args) < 2 {
			return ErrUsage
		}
		return printEvents(ctx, w, db, args[1])
	case "reset-endpoint":
		if err := db.ResetPreferences(ctx); err != nil {
			return err
		}
		fmt.Fprintf(w, "endpoint reset to %s\n", DefaultEndpoint)
		return nil
	}
	return ErrUsage
}

func runMigrate(w io.Writer, db *DB, action string) error {
	switch action {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
	case "status":
	default:
		return ErrUsage
	}
	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d (dirty: %v)\n", v, dirty)
	if dirty {
		fmt.Fprintln(w, "a migration failed part way; inspect the database before migrating again")
	}
	return nil
}

func printSessions(ctx context.Context, w io.Writer, db *DB, limit int) error {
	records, err := db.RecentSessions(ctx, limit)
	if err != nil {
		return err
	}
	now := time.Now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tDEVICE\tENDPOINT\tSTARTED\tDURATION\tSENT\tDROPPED\tFAILED")
	for _, r := range records {
		dur := r.Duration(now).Truncate(time.Second).String()
		if r.Ended.IsZero() {
			dur += " (open)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.DeviceID, r.Endpoint, r.Started.Local().Format(time.DateTime), dur, r.Sent, r.Dropped, r.Failed)
	}
	return tw.Flush()
}

func printEvents(ctx context.Context, w io.Writer, db *DB, sessionID string) error {
	events, err := db.ConnectionEvents(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(w, "no connection events for session %s\n", sessionID)
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s  %s -> %s  %s %s\n",
			e.At.Local().Format(time.DateTime), e.Event.Previous, e.Event.Current, e.Event.DeviceID, e.Event.Version)
	}
	return nil
}
