// Package db persists raw noise samples and derived daily summaries in
// SQLite, and answers the range queries history views are built from.
//
// Raw samples are append-only facts; summaries are mutable per-day
// snapshots keyed by calendar day and overwritten whole on recomputation.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/audera-data/quietwatch/internal/noise"
)

const dayKeyFormat = "2006-01-02"

type DB struct {
	*sql.DB
	loc *time.Location
}

// NewDB opens (creating if necessary) the database at path and ensures the
// base schema exists. Calendar days are keyed in the local time zone.
func NewDB(path string) (*DB, error) {
	return NewDBInLocation(path, time.Local)
}

// NewDBInLocation opens the database at path with day keys computed in the
// given location.
func NewDBInLocation(path string, loc *time.Location) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	db.loc = loc

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			id                TEXT PRIMARY KEY,
			timestamp_ns      BIGINT NOT NULL,
			decibel           DOUBLE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON samples(timestamp_ns);
		CREATE TABLE IF NOT EXISTS daily_summaries (
			day               TEXT PRIMARY KEY,
			quiet_score       DOUBLE NOT NULL,
			average_decibel   DOUBLE NOT NULL,
			sample_count      BIGINT NOT NULL,
			quietest_hour     BIGINT,
			noisiest_hour     BIGINT,
			updated_at_ns     BIGINT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// OpenDB opens the database at path without touching the schema. Used by
// the migrate CLI, where migrations manage the schema themselves.
func OpenDB(path string) (*DB, error) {
	// WAL keeps readers (history queries) from blocking the sampling
	// writer; busy_timeout covers the day-boundary race where a foreground
	// and a background cycle hit the same database. Both ride the DSN so
	// they apply to every pooled connection, not just the one a PRAGMA
	// statement would happen to run on.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	return &DB{DB: sqlDB, loc: time.Local}, nil
}

// Location returns the time zone used to key calendar days.
func (db *DB) Location() *time.Location {
	return db.loc
}

// dayKey normalizes an instant to its calendar-day key.
func (db *DB) dayKey(t time.Time) string {
	return t.In(db.loc).Format(dayKeyFormat)
}

// parseDayKey converts a day key back to local midnight of that day.
func (db *DB) parseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(dayKeyFormat, key, db.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse day key %q: %w", key, err)
	}
	return t, nil
}

// InsertSample appends one raw sample.
func (db *DB) InsertSample(ctx context.Context, s noise.Sample) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO samples (id, timestamp_ns, decibel) VALUES (?, ?, ?)`,
		s.ID, s.Timestamp.UnixNano(), s.Decibel,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// SamplesForDay returns all samples captured during the calendar day
// containing the given instant, in timestamp order. Equal timestamps keep
// insertion order.
func (db *DB) SamplesForDay(ctx context.Context, day time.Time) ([]noise.Sample, error) {
	start := noise.DayStart(day.In(db.loc))
	end := start.AddDate(0, 0, 1)

	rows, err := db.QueryContext(ctx,
		`SELECT id, timestamp_ns, decibel FROM samples
		 WHERE timestamp_ns >= ? AND timestamp_ns < ?
		 ORDER BY timestamp_ns, rowid`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []noise.Sample
	for rows.Next() {
		var (
			id string
			ns int64
			dB float64
		)
		if err := rows.Scan(&id, &ns, &dB); err != nil {
			return nil, err
		}
		samples = append(samples, noise.Sample{
			ID:        id,
			Timestamp: time.Unix(0, ns).In(db.loc),
			Decibel:   dB,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteSamplesForDay bulk-purges the raw samples of one calendar day and
// returns the number of rows removed. The day's summary is retained as a
// historical snapshot: raw data is discarded quickly, aggregates are kept.
func (db *DB) DeleteSamplesForDay(ctx context.Context, day time.Time) (int64, error) {
	start := noise.DayStart(day.In(db.loc))
	end := start.AddDate(0, 0, 1)

	result, err := db.ExecContext(ctx,
		`DELETE FROM samples WHERE timestamp_ns >= ? AND timestamp_ns < ?`,
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete samples: %w", err)
	}
	return result.RowsAffected()
}

// SampleDays returns local midnight for every calendar day that has at
// least one raw sample, oldest first. Each day costs one indexed
// single-row lookup: the cursor skips from the first sample of a day
// straight to that day's end, so cost scales with days, not samples.
func (db *DB) SampleDays(ctx context.Context) ([]time.Time, error) {
	var days []time.Time
	cursor := int64(math.MinInt64)
	for {
		var ns int64
		err := db.QueryRowContext(ctx,
			`SELECT timestamp_ns FROM samples WHERE timestamp_ns >= ?
			 ORDER BY timestamp_ns LIMIT 1`,
			cursor,
		).Scan(&ns)
		if err == sql.ErrNoRows {
			return days, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query sample days: %w", err)
		}
		day := noise.DayStart(time.Unix(0, ns).In(db.loc))
		days = append(days, day)
		cursor = day.AddDate(0, 0, 1).UnixNano()
	}
}

// AttachAdminRoutes mounts localhost-only debugging endpoints on the given
// mux: a tailSQL console over the live database and an on-demand gzipped
// backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://quietwatch.db", db.DB, &tailsql.DBOptions{
		Label: "Quietwatch DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
