// Package sqlite provides a telemetry source over a raw telemetry table in
// SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/signalsfoundry/clock-correlator/internal/storage/sqlitemigrate"
	"github.com/signalsfoundry/clock-correlator/internal/telemetry/sqlite/migrations"
	"github.com/signalsfoundry/clock-correlator/model"
)

const sampleColumns = `ert_ns, ert_str, path_id, sclk_coarse, sclk_fine, tk_sclk_coarse, tk_sclk_fine,
	vcid, vcfc, mcfc, tk_vcid, tk_vcfc, tk_mcfc,
	supp_ert_ns, supp_vcid, supp_vcfc, supp_mcfc,
	tk_data_rate_bps, bitrate_delay_sec, frame_size_bits, validity`

// Store is a raw telemetry table. Unset sample fields are stored as NULL.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the telemetry database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlitemigrate.Open(ctx, path, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("open telemetry table: %w", err)
	}
	return &Store{sqlDB: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Connect verifies the database is reachable.
func (s *Store) Connect(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Disconnect is a no-op; the connection pool outlives query bursts.
func (s *Store) Disconnect(context.Context) error { return nil }

// Insert appends samples in one transaction.
func (s *Store) Insert(ctx context.Context, samples ...model.Sample) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin telemetry insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO telemetry_samples (`+sampleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare telemetry insert: %w", err)
	}
	defer stmt.Close()

	for i, smp := range samples {
		if smp.Ert.IsZero() {
			return fmt.Errorf("sample %d has no ERT", i)
		}
		var suppErt sql.NullInt64
		if !smp.SuppErt.IsZero() {
			suppErt = sql.NullInt64{Int64: smp.SuppErt.UnixNano(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			smp.Ert.UnixNano(),
			nullString(smp.ErtStr),
			nullInt(smp.PathID),
			nullInt(smp.SclkCoarse), nullInt(smp.SclkFine),
			nullInt(smp.TkSclkCoarse), nullInt(smp.TkSclkFine),
			nullInt(smp.Vcid), nullInt(smp.Vcfc), nullInt(smp.Mcfc),
			nullInt(smp.TkVcid), nullInt(smp.TkVcfc), nullInt(smp.TkMcfc),
			suppErt,
			nullInt(smp.SuppVcid), nullInt(smp.SuppVcfc), nullInt(smp.SuppMcfc),
			nullFloat(smp.TkDataRateBps), nullFloat(smp.BitrateDelaySec),
			nullInt(smp.FrameSizeBits),
			int(smp.Validity),
		); err != nil {
			return fmt.Errorf("insert telemetry sample %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit telemetry insert: %w", err)
	}
	return nil
}

// SamplesInRange returns samples with start <= ERT < stop ordered by ERT.
func (s *Store) SamplesInRange(ctx context.Context, start, stop time.Time) ([]model.Sample, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM telemetry_samples
		 WHERE ert_ns >= ? AND ert_ns < ?
		 ORDER BY ert_ns, id`,
		start.UnixNano(), stop.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query telemetry samples: %w", err)
	}
	defer rows.Close()

	var out []model.Sample
	for rows.Next() {
		smp, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan telemetry sample: %w", err)
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry samples: %w", err)
	}
	return out, nil
}

func scanSample(rows *sql.Rows) (model.Sample, error) {
	var (
		ertNs                                  int64
		ertStr                                 sql.NullString
		pathID, sclkC, sclkF, tkSclkC, tkSclkF sql.NullInt64
		vcid, vcfc, mcfc                       sql.NullInt64
		tkVcid, tkVcfc, tkMcfc                 sql.NullInt64
		suppErt, suppVcid, suppVcfc, suppMcfc  sql.NullInt64
		rate, delay                            sql.NullFloat64
		frameSize                              sql.NullInt64
		validity                               int
	)
	if err := rows.Scan(
		&ertNs, &ertStr, &pathID, &sclkC, &sclkF, &tkSclkC, &tkSclkF,
		&vcid, &vcfc, &mcfc, &tkVcid, &tkVcfc, &tkMcfc,
		&suppErt, &suppVcid, &suppVcfc, &suppMcfc,
		&rate, &delay, &frameSize, &validity,
	); err != nil {
		return model.Sample{}, err
	}

	smp := model.NewSample()
	smp.Ert = time.Unix(0, ertNs).UTC()
	smp.ErtStr = ertStr.String
	smp.PathID = intOrUnset(pathID)
	smp.SclkCoarse = intOrUnset(sclkC)
	smp.SclkFine = intOrUnset(sclkF)
	smp.TkSclkCoarse = intOrUnset(tkSclkC)
	smp.TkSclkFine = intOrUnset(tkSclkF)
	smp.Vcid = intOrUnset(vcid)
	smp.Vcfc = intOrUnset(vcfc)
	smp.Mcfc = intOrUnset(mcfc)
	smp.TkVcid = intOrUnset(tkVcid)
	smp.TkVcfc = intOrUnset(tkVcfc)
	smp.TkMcfc = intOrUnset(tkMcfc)
	if suppErt.Valid {
		smp.SuppErt = time.Unix(0, suppErt.Int64).UTC()
	}
	smp.SuppVcid = intOrUnset(suppVcid)
	smp.SuppVcfc = intOrUnset(suppVcfc)
	smp.SuppMcfc = intOrUnset(suppMcfc)
	if rate.Valid {
		smp.TkDataRateBps = rate.Float64
	}
	if delay.Valid {
		smp.BitrateDelaySec = delay.Float64
	}
	smp.FrameSizeBits = intOrUnset(frameSize)
	smp.Validity = model.Validity(validity)
	return smp, nil
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: model.IsSet(v)}
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: model.IsSetFloat(v)}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func intOrUnset(v sql.NullInt64) int64 {
	if !v.Valid {
		return model.Unset
	}
	return v.Int64
}
