package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sensorlog/internal/readings/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-recent-readings.sql
var getRecentReadingsSQL string

//go:embed sql/get-latest-reading.sql
var getLatestReadingSQL string

//go:embed sql/count-readings.sql
var countReadingsSQL string

//go:embed sql/prune-by-age.sql
var pruneByAgeSQL string

//go:embed sql/prune-by-rows.sql
var pruneByRowsSQL string

// TimestampLayout is the stored form of readings.ts. It is fixed width so
// that string order matches time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// ErrInvalidLimit is returned by QueryRecent for a non-positive limit.
var ErrInvalidLimit = errors.New("limit must be positive")

// StorageError reports a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type ReadingRepository interface {
	Insert(ctx context.Context, temperature, pressure, humidity float64) (types.Reading, error)
	QueryRecent(ctx context.Context, limit int) ([]types.Reading, error)
	Latest(ctx context.Context) (types.Reading, bool, error)
	Count(ctx context.Context) (int, error)
	Prune(ctx context.Context, retention types.Retention) (int64, error)
}

type Option func(*repositoryImpl)

// WithClock replaces time.Now as the source of insert timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *repositoryImpl) {
		r.now = now
	}
}

type repositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB, opts ...Option) ReadingRepository {
	r := &repositoryImpl{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert appends a reading. The stored timestamp is never earlier than the
// newest one already in the log.
func (r *repositoryImpl) Insert(ctx context.Context, temperature, pressure, humidity float64) (types.Reading, error) {
	ts := r.now().UTC().Format(TimestampLayout)

	var (
		rec    types.Reading
		stored string
	)
	err := r.db.QueryRowContext(ctx, insertReadingSQL, ts, temperature, pressure, humidity).Scan(&rec.ID, &stored)
	if err != nil {
		return types.Reading{}, &StorageError{Op: "insert", Err: err}
	}
	t, err := time.Parse(TimestampLayout, stored)
	if err != nil {
		return types.Reading{}, &StorageError{Op: "insert", Err: fmt.Errorf("parse timestamp %q: %w", stored, err)}
	}
	rec.Timestamp = t
	rec.Temperature = temperature
	rec.Pressure = pressure
	rec.Humidity = humidity
	return rec, nil
}

// QueryRecent returns up to limit of the newest readings, oldest first.
func (r *repositoryImpl) QueryRecent(ctx context.Context, limit int) ([]types.Reading, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := r.db.QueryContext(ctx, getRecentReadingsSQL, limit)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close recent readings rows", "error", err)
		}
	}()

	out, err := scanReadings(rows)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *repositoryImpl) Latest(ctx context.Context) (types.Reading, bool, error) {
	rows, err := r.db.QueryContext(ctx, getLatestReadingSQL)
	if err != nil {
		return types.Reading{}, false, &StorageError{Op: "latest", Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest reading rows", "error", err)
		}
	}()

	out, err := scanReadings(rows)
	if err != nil {
		return types.Reading{}, false, &StorageError{Op: "latest", Err: err}
	}
	if len(out) == 0 {
		return types.Reading{}, false, nil
	}
	return out[0], true, nil
}

func (r *repositoryImpl) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countReadingsSQL).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Prune removes the oldest readings outside the retention bounds and
// returns how many rows were deleted.
func (r *repositoryImpl) Prune(ctx context.Context, retention types.Retention) (int64, error) {
	if !retention.Enabled() {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "prune", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var removed int64
	if retention.MaxAge > 0 {
		cutoff := r.now().Add(-retention.MaxAge).UTC().Format(TimestampLayout)
		res, err := tx.ExecContext(ctx, pruneByAgeSQL, cutoff)
		if err != nil {
			return 0, &StorageError{Op: "prune", Err: fmt.Errorf("by age: %w", err)}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, &StorageError{Op: "prune", Err: err}
		}
		removed += n
	}
	if retention.MaxRows > 0 {
		res, err := tx.ExecContext(ctx, pruneByRowsSQL, retention.MaxRows)
		if err != nil {
			return 0, &StorageError{Op: "prune", Err: fmt.Errorf("by rows: %w", err)}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, &StorageError{Op: "prune", Err: err}
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "prune", Err: err}
	}
	return removed, nil
}

func scanReadings(rows *sql.Rows) ([]types.Reading, error) {
	out := []types.Reading{}
	for rows.Next() {
		var rec types.Reading
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Temperature, &rec.Pressure, &rec.Humidity); err != nil {
			return nil, err
		}
		t, err := time.Parse(TimestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		rec.Timestamp = t
		out = append(out, rec)
	}
	return out, rows.Err()
}
