package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/audera-data/quietwatch/internal/noise"
)

// DaySummary is the persisted aggregate for one calendar day. At most one
// row exists per day; recomputation overwrites every field at once, never
// partially.
type DaySummary struct {
	Day            time.Time `json:"day"`
	QuietScore     float64   `json:"quiet_score"`
	AverageDecibel float64   `json:"average_decibel"`
	SampleCount    int       `json:"sample_count"`
	QuietestHour   *int      `json:"quietest_hour"`
	NoisiestHour   *int      `json:"noisiest_hour"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpsertDaySummary stores the scalar projection of a computed day view,
// inserting or overwriting the day's row. The single conflict-clause
// statement keeps concurrent upserts for the same day from interleaving:
// the last writer wins whole, and only one row per day can ever exist.
func (db *DB) UpsertDaySummary(ctx context.Context, view noise.DayView) (*DaySummary, error) {
	day := noise.DayStart(view.Day.In(db.loc))
	now := time.Now()

	_, err := db.ExecContext(ctx, `
		INSERT INTO daily_summaries (
			day, quiet_score, average_decibel, sample_count,
			quietest_hour, noisiest_hour, updated_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			quiet_score = excluded.quiet_score,
			average_decibel = excluded.average_decibel,
			sample_count = excluded.sample_count,
			quietest_hour = excluded.quietest_hour,
			noisiest_hour = excluded.noisiest_hour,
			updated_at_ns = excluded.updated_at_ns
	`,
		db.dayKey(day), view.QuietScore, view.AverageDecibel, view.SampleCount,
		hourValue(view.QuietestHour), hourValue(view.NoisiestHour), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert day summary: %w", err)
	}

	return &DaySummary{
		Day:            day,
		QuietScore:     view.QuietScore,
		AverageDecibel: view.AverageDecibel,
		SampleCount:    view.SampleCount,
		QuietestHour:   view.QuietestHour,
		NoisiestHour:   view.NoisiestHour,
		UpdatedAt:      now,
	}, nil
}

// GetDaySummary returns the summary for the calendar day containing the
// given instant, or nil if none has been computed yet. Absence of data is
// not an error.
func (db *DB) GetDaySummary(ctx context.Context, day time.Time) (*DaySummary, error) {
	row := db.QueryRowContext(ctx, `
		SELECT day, quiet_score, average_decibel, sample_count,
		       quietest_hour, noisiest_hour, updated_at_ns
		FROM daily_summaries
		WHERE day = ?
	`, db.dayKey(day))

	summary, err := db.scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get day summary: %w", err)
	}
	return summary, nil
}

// SummariesForLastDays returns the summaries in the inclusive window of the
// last n calendar days ending at the day containing ref, newest day first.
// Days with no summary are simply absent from the result.
func (db *DB) SummariesForLastDays(ctx context.Context, n int, ref time.Time) ([]DaySummary, error) {
	if n < 1 {
		return nil, fmt.Errorf("day count must be at least 1, got %d", n)
	}

	end := noise.DayStart(ref.In(db.loc))
	start := end.AddDate(0, 0, -(n - 1))

	rows, err := db.QueryContext(ctx, `
		SELECT day, quiet_score, average_decibel, sample_count,
		       quietest_hour, noisiest_hour, updated_at_ns
		FROM daily_summaries
		WHERE day >= ? AND day <= ?
		ORDER BY day DESC
	`, db.dayKey(start), db.dayKey(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []DaySummary
	for rows.Next() {
		summary, err := db.scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// WeeklyAverage returns the mean quiet score over the last seven calendar
// days ending at the day containing ref, or nil if no summaries exist in
// that window. A window without data has no average, it is not zero.
func (db *DB) WeeklyAverage(ctx context.Context, ref time.Time) (*float64, error) {
	summaries, err := db.SummariesForLastDays(ctx, 7, ref)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(summaries))
	for i, s := range summaries {
		scores[i] = s.QuietScore
	}
	avg := stat.Mean(scores, nil)
	return &avg, nil
}

// scanSummary reads one daily_summaries row via the given scan function.
func (db *DB) scanSummary(scan func(dest ...any) error) (*DaySummary, error) {
	var (
		dayKey        string
		s             DaySummary
		quietest      sql.NullInt64
		noisiest      sql.NullInt64
		updatedAtNano int64
	)
	if err := scan(&dayKey, &s.QuietScore, &s.AverageDecibel, &s.SampleCount,
		&quietest, &noisiest, &updatedAtNano); err != nil {
		return nil, err
	}

	day, err := db.parseDayKey(dayKey)
	if err != nil {
		return nil, err
	}
	s.Day = day
	s.UpdatedAt = time.Unix(0, updatedAtNano).In(db.loc)
	if quietest.Valid {
		h := int(quietest.Int64)
		s.QuietestHour = &h
	}
	if noisiest.Valid {
		h := int(noisiest.Int64)
		s.NoisiestHour = &h
	}
	return &s, nil
}

// hourValue converts an optional hour to its nullable SQL representation.
func hourValue(h *int) any {
	if h == nil {
		return nil
	}
	return *h
}
