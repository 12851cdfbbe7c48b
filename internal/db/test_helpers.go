package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/audera-data/quietwatch/internal/noise"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	db, err := NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	return db
}

func cleanupTestDB(t *testing.T, db *DB) {
	t.Helper()
	fname := t.Name() + ".db"
	db.Close()
	_ = os.Remove(fname)
	_ = os.Remove(fname + "-shm")
	_ = os.Remove(fname + "-wal")
}

func intPtr(i int) *int {
	return &i
}

// insertTestSample inserts one sample at the given time and returns it.
func insertTestSample(t *testing.T, db *DB, ts time.Time, decibel float64) noise.Sample {
	t.Helper()
	s := noise.Sample{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Decibel:   decibel,
	}
	if err := db.InsertSample(context.Background(), s); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}
	return s
}

// testDayView builds a minimal day view for summary upsert tests.
func testDayView(day time.Time, score float64) noise.DayView {
	return noise.DayView{
		Day:            day,
		QuietScore:     score,
		AverageDecibel: 45,
		SampleCount:    10,
		QuietestHour:   intPtr(3),
		NoisiestHour:   intPtr(17),
	}
}
