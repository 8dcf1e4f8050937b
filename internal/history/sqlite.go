package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/internal/history/migrations"
	"github.com/signalsfoundry/clock-correlator/internal/storage/sqlitemigrate"
	"github.com/signalsfoundry/clock-correlator/model"
)

const historyColumns = `seq, sclk_coarse, sclk_fine, encoded_sclk, tdt_g, clock_change_rate, rate_mode, created_at`

// SQLiteStore persists the correlation history in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite history store and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlitemigrate.Open(ctx, path, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("open correlation history: %w", err)
	}
	return &SQLiteStore{sqlDB: db, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Seed writes the first record. It fails if the history has any records.
func (s *SQLiteStore) Seed(ctx context.Context, rec model.HistoryRecord) (model.HistoryRecord, error) {
	if err := checkSeed(rec); err != nil {
		return model.HistoryRecord{}, err
	}
	rec.Seq = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM correlation_history`).Scan(&n); err != nil {
			return fmt.Errorf("count history: %w", err)
		}
		if n > 0 {
			return ErrAlreadySeeded
		}
		return insertRecord(ctx, tx, rec)
	})
	if err != nil {
		return model.HistoryRecord{}, err
	}
	return rec, nil
}

// Tail returns the last record.
func (s *SQLiteStore) Tail(ctx context.Context) (model.HistoryRecord, error) {
	rec, err := scanRecord(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM correlation_history ORDER BY seq DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return model.HistoryRecord{}, core.ErrEmptyHistory
	}
	if err != nil {
		return model.HistoryRecord{}, fmt.Errorf("read history tail: %w", err)
	}
	return rec, nil
}

// Count returns the number of records, seed included.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM correlation_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// RecordAtOrBefore returns the most recent non-sentinel record at least
// minLookBackHours older than tdtG.
func (s *SQLiteStore) RecordAtOrBefore(ctx context.Context, tdtG, minLookBackHours float64) (model.HistoryRecord, bool, error) {
	rec, err := scanRecord(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM correlation_history
		 WHERE tdt_g <= ? AND tdt_g != 0 AND encoded_sclk != 0
		 ORDER BY seq DESC LIMIT 1`,
		lookBackLimit(tdtG, minLookBackHours)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.HistoryRecord{}, false, nil
	}
	if err != nil {
		return model.HistoryRecord{}, false, fmt.Errorf("look back through history: %w", err)
	}
	return rec, true, nil
}

// Records returns the history in sequence order.
func (s *SQLiteStore) Records(ctx context.Context) ([]model.HistoryRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+historyColumns+` FROM correlation_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Commit applies c in one transaction. The tail is re-read inside the
// transaction, so a concurrent writer surfaces as a monotonicity or stale
// tail error instead of a forked history.
func (s *SQLiteStore) Commit(ctx context.Context, c core.Commit) (model.HistoryRecord, error) {
	var out model.HistoryRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		tail, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT `+historyColumns+` FROM correlation_history ORDER BY seq DESC LIMIT 1`))
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrEmptyHistory
		}
		if err != nil {
			return fmt.Errorf("read history tail: %w", err)
		}

		rec, err := prepareCommit(tail, c)
		if err != nil {
			return err
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = s.now().UTC()
		}

		if c.TailRate != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE correlation_history SET clock_change_rate = ? WHERE seq = ?`,
				c.TailRate, tail.Seq,
			); err != nil {
				return fmt.Errorf("update tail rate: %w", err)
			}
		}
		if err := insertRecord(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return model.HistoryRecord{}, err
	}
	return out, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history transaction: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec model.HistoryRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO correlation_history (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Seq,
		rec.SclkCoarse,
		rec.SclkFine,
		rec.EncodedSclk,
		rec.TdtG,
		rec.ClockChangeRate,
		string(rec.RateMode),
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		if sqlitemigrate.IsUniqueViolation(err) {
			return fmt.Errorf("%w: record %d already exists", ErrStaleTail, rec.Seq)
		}
		return fmt.Errorf("insert history record %d: %w", rec.Seq, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (model.HistoryRecord, error) {
	var (
		rec       model.HistoryRecord
		mode      string
		createdAt int64
	)
	if err := row.Scan(
		&rec.Seq,
		&rec.SclkCoarse,
		&rec.SclkFine,
		&rec.EncodedSclk,
		&rec.TdtG,
		&rec.ClockChangeRate,
		&mode,
		&createdAt,
	); err != nil {
		return model.HistoryRecord{}, err
	}
	rec.RateMode = model.RateMode(mode)
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}
