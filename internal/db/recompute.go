package db

import (
	"context"
	"time"

	"github.com/audera-data/quietwatch/internal/noise"
)

// RecomputeDay rebuilds one day's summary from whatever raw samples remain
// for that day and upserts it. Safe to re-run at any time: the computation
// is deterministic and the upsert overwrites the whole row.
func (db *DB) RecomputeDay(ctx context.Context, analytics *noise.Analytics, day time.Time) (*DaySummary, error) {
	samples, err := db.SamplesForDay(ctx, day)
	if err != nil {
		return nil, err
	}
	view := analytics.ComputeDay(samples, noise.DayStart(day.In(db.loc)))
	return db.UpsertDaySummary(ctx, view)
}

// RecomputeAll rebuilds the summary of every day that has raw samples,
// returning the number of days recomputed. Days whose raw samples were
// purged keep their historical summaries untouched.
func (db *DB) RecomputeAll(ctx context.Context, analytics *noise.Analytics) (int, error) {
	days, err := db.SampleDays(ctx)
	if err != nil {
		return 0, err
	}
	for i, day := range days {
		if _, err := db.RecomputeDay(ctx, analytics, day); err != nil {
			return i, err
		}
	}
	return len(days), nil
}
