package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/clock-correlator/model"
)

func clockRecord(tdt, sclkSeconds float64, rate string) model.HistoryRecord {
	return model.HistoryRecord{
		SclkCoarse:      int64(sclkSeconds),
		EncodedSclk:     sclkSeconds * float64(testModulus),
		TdtG:            tdt,
		ClockChangeRate: rate,
		RateMode:        model.RateModePredicted,
	}
}

func clockTarget(tdt, sclkSeconds float64) model.Target {
	return model.Target{TdtG: tdt, EncodedSclk: sclkSeconds * float64(testModulus)}
}

func rateConfig(mode model.RateMode) RateConfig {
	return RateConfig{
		Mode:             mode,
		AssignedRate:     decimal.RequireFromString("0.99999998"),
		LookBackHours:    12,
		MaxLookBackHours: 48,
	}
}

func TestComputeRate(t *testing.T) {
	rate, err := ComputeRate(86400.000864, 0, decimal.NewFromInt(86400), decimal.Zero)
	if err != nil {
		t.Fatalf("ComputeRate: %v", err)
	}
	if want := decimal.RequireFromString("1.00000001"); !rate.Equal(want) {
		t.Fatalf("rate = %s, want %s", rate, want)
	}

	// Ground times carry microseconds; anything finer is rounded away.
	rounded, _ := ComputeRate(86400.0008641, 0, decimal.NewFromInt(86400), decimal.Zero)
	if !rounded.Equal(rate) {
		t.Fatalf("sub-microsecond ground time changed the rate: %s", rounded)
	}

	if _, err := ComputeRate(10, 5, decimal.NewFromInt(3), decimal.NewFromInt(3)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for equal clocks, got %v", err)
	}
}

func TestComputeRateIsSymmetricInItsEndpoints(t *testing.T) {
	cases := []struct{ tdtA, tdtB, sclkA, sclkB float64 }{
		{760104000.123456, 760017600.5, 375962471.0610809, 375876071.25},
		{1000, 4600.0036, 20, 3620},
		{7.5e8, 7.4e8, 3.9e8, 3.8e8 + 0.5},
	}
	for _, tc := range cases {
		fwd, err := ComputeRate(tc.tdtA, tc.tdtB, decimal.NewFromFloat(tc.sclkA), decimal.NewFromFloat(tc.sclkB))
		if err != nil {
			t.Fatalf("ComputeRate: %v", err)
		}
		rev, err := ComputeRate(tc.tdtB, tc.tdtA, decimal.NewFromFloat(tc.sclkB), decimal.NewFromFloat(tc.sclkA))
		if err != nil {
			t.Fatalf("ComputeRate: %v", err)
		}
		if diff := fwd.Sub(rev).Abs(); diff.GreaterThan(decimal.New(1, -11)) {
			t.Fatalf("swapping endpoints changed the rate by %s (%s vs %s)", diff, fwd, rev)
		}
	}
}

func TestDriftMsPerDay(t *testing.T) {
	drift, err := DriftMsPerDay(decimal.RequireFromString("1.00000001"))
	if err != nil {
		t.Fatalf("DriftMsPerDay: %v", err)
	}
	if got := drift.InexactFloat64(); math.Abs(got+0.864) > 1e-6 {
		t.Fatalf("drift = %v ms/day, want about -0.864", got)
	}
	if unit, err := DriftMsPerDay(decimal.NewFromInt(1)); err != nil || !unit.IsZero() {
		t.Fatalf("unit rate should not drift, got %v, %v", unit, err)
	}
	if _, err := DriftMsPerDay(decimal.Zero); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero rate, got %v", err)
	}
}

func TestComputeRateRejectsNonPositiveRates(t *testing.T) {
	// 0.2 microseconds apart: both ground times round to the same value.
	_, err := ComputeRate(7e8+2e-7, 7e8, decimal.NewFromInt(1001), decimal.NewFromInt(1000))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for sub-microsecond ground times, got %v", err)
	}
	if !strings.Contains(err.Error(), "700000000.000000") {
		t.Fatalf("error should name the rounded ground times: %v", err)
	}

	if _, err := ComputeRate(999, 1000, decimal.NewFromInt(1001), decimal.NewFromInt(1000)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for a negative rate, got %v", err)
	}
}

func TestRateEnginePredictedSubMicrosecondAdvance(t *testing.T) {
	ctx := context.Background()
	cfg := rateConfig(model.RateModePredicted)
	cfg.LookBackHours = 0

	// The look-back finds the tail itself, which the target beats by less
	// than the ground time resolution.
	tail := clockRecord(7e8, 1000, "1")
	h := newFakeHistory(seedRecord(), tail)
	tail, _ = h.Tail(ctx)
	tgt := clockTarget(7e8+2e-7, 1001)

	_, err := NewRateEngine(cfg, testModulus, nil).Compute(ctx, tgt, tail, h)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckMonotonic(t *testing.T) {
	tail := clockRecord(1000, 500, "1")
	tail.Seq = 7

	if err := CheckMonotonic(clockTarget(1001, 501), tail); err != nil {
		t.Fatalf("advancing target rejected: %v", err)
	}
	for _, tgt := range []model.Target{
		clockTarget(1000, 501),
		clockTarget(1001, 500),
		clockTarget(999, 499),
	} {
		err := CheckMonotonic(tgt, tail)
		var merr *MonotonicityError
		if !errors.As(err, &merr) || !errors.Is(err, ErrMonotonicity) {
			t.Fatalf("expected monotonicity error for %+v, got %v", tgt, err)
		}
		if merr.PriorRecordSeq != 7 || merr.PriorTdtG != 1000 {
			t.Fatalf("error should carry the prior record: %+v", merr)
		}
	}
}

func TestRateEngineFixedModes(t *testing.T) {
	ctx := context.Background()
	tail := clockRecord(1000, 1000, "1")
	h := newFakeHistory(tail)
	tgt := clockTarget(2000, 2000)

	res, err := NewRateEngine(rateConfig(model.RateModeNoDrift), testModulus, nil).Compute(ctx, tgt, tail, h)
	if err != nil || !res.Rate.Equal(decimal.NewFromInt(1)) || res.Mode != model.RateModeNoDrift {
		t.Fatalf("no-drift: %+v, %v", res, err)
	}

	res, err = NewRateEngine(rateConfig(model.RateModeAssigned), testModulus, nil).Compute(ctx, tgt, tail, h)
	if err != nil || res.Rate.String() != "0.99999998" || res.Mode != model.RateModeAssigned {
		t.Fatalf("assigned: %+v, %v", res, err)
	}

	if _, err := NewRateEngine(rateConfig(model.RateModeNoDrift), testModulus, nil).Compute(ctx, clockTarget(900, 2000), tail, h); !errors.Is(err, ErrMonotonicity) {
		t.Fatalf("expected monotonicity check before any mode, got %v", err)
	}
	if _, err := NewRateEngine(rateConfig("sideways"), testModulus, nil).Compute(ctx, tgt, tail, h); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown mode, got %v", err)
	}
}

func TestRateEnginePredicted(t *testing.T) {
	ctx := context.Background()
	prior := clockRecord(1000, 1000, "1")
	h := newFakeHistory(seedRecord(), prior)
	tail, _ := h.Tail(ctx)
	tgt := clockTarget(87400.000864, 87400)

	res, err := NewRateEngine(rateConfig(model.RateModePredicted), testModulus, nil).Compute(ctx, tgt, tail, h)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !res.Rate.Equal(decimal.RequireFromString("1.00000001")) {
		t.Fatalf("rate = %s", res.Rate)
	}
	if res.LookBack == nil || res.LookBack.Seq != 2 {
		t.Fatalf("look-back record = %+v", res.LookBack)
	}
	if res.DriftMsPerDay == nil || math.Abs(res.DriftMsPerDay.InexactFloat64()+0.864) > 1e-6 {
		t.Fatalf("drift = %v", res.DriftMsPerDay)
	}
}

func TestRateEnginePredictedInsufficientHistory(t *testing.T) {
	ctx := context.Background()
	engine := NewRateEngine(rateConfig(model.RateModePredicted), testModulus, nil)

	// Only a record one hour back, inside the minimum look-back.
	recent := clockRecord(83800, 83800, "1")
	h := newFakeHistory(seedRecord(), recent)
	_, err := engine.Compute(ctx, clockTarget(87400, 87400), recent, h)
	if !errors.Is(err, ErrInsufficientHistory) || !strings.Contains(err.Error(), "no record old enough") {
		t.Fatalf("expected insufficient history, got %v", err)
	}

	// A record 72 hours back, beyond the maximum look-back.
	stale := clockRecord(1000, 1000, "1")
	h = newFakeHistory(seedRecord(), stale)
	_, err = engine.Compute(ctx, clockTarget(1000+72*3600, 1000+72*3600), stale, h)
	var ierr *InsufficientHistoryError
	if !errors.As(err, &ierr) || !strings.Contains(err.Error(), "72.00 hours old") {
		t.Fatalf("expected stale history error, got %v", err)
	}
	if ierr.LookBackHours != 12 || ierr.MaxLookBackHours != 48 {
		t.Fatalf("error should carry the bounds: %+v", ierr)
	}
}

func TestRateEngineInterpolatedSeedOnly(t *testing.T) {
	ctx := context.Background()
	seed := clockRecord(1000, 1000, "1")
	seed.RateMode = model.RateModeAssigned
	h := newFakeHistory(seed)
	tail, _ := h.Tail(ctx)

	res, err := NewRateEngine(rateConfig(model.RateModeInterpolated), testModulus, nil).
		Compute(ctx, clockTarget(87400.000864, 87400), tail, h)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !res.SubstitutedPredicted || res.InterpolatedRate != nil || res.Mode != model.RateModePredicted {
		t.Fatalf("seed-only history should substitute a predicted rate: %+v", res)
	}
	if !res.Rate.Equal(decimal.RequireFromString("1.00000001")) {
		t.Fatalf("rate = %s", res.Rate)
	}
}

func TestRateEngineInterpolated(t *testing.T) {
	ctx := context.Background()
	h := newFakeHistory(clockRecord(1000, 1000, "1"), clockRecord(44200, 44200, "1"))
	tail, _ := h.Tail(ctx)
	cfg := rateConfig(model.RateModeInterpolated)
	cfg.LookBackHours = 13

	res, err := NewRateEngine(cfg, testModulus, nil).Compute(ctx, clockTarget(87400.000864, 87400), tail, h)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Mode != model.RateModeInterpolated || res.InterpolatedRate == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	// Interpolated against the tail, predicted against the record 24h back.
	if !res.InterpolatedRate.Equal(decimal.RequireFromString("1.00000002")) {
		t.Fatalf("interpolated rate = %s", res.InterpolatedRate)
	}
	if !res.Rate.Equal(decimal.RequireFromString("1.00000001")) || res.LookBack.Seq != 1 {
		t.Fatalf("predicted rate = %s against record %d", res.Rate, res.LookBack.Seq)
	}

	result := &Result{Target: clockTarget(87400.000864, 87400), Rate: res, Prior: tail}
	c := result.Commit(testEpoch)
	if c.TailSeq != 2 || c.TailRate != "1.00000002000" {
		t.Fatalf("commit should rewrite the tail rate: %+v", c)
	}
	if c.Record.ClockChangeRate != "1.00000001000" || c.Record.RateMode != model.RateModeInterpolated {
		t.Fatalf("unexpected record %+v", c.Record)
	}

	rec, err := h.Commit(ctx, c)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got := h.snapshot()
	if rec.Seq != 3 || got[1].ClockChangeRate != "1.00000002000" {
		t.Fatalf("history after commit = %+v", got)
	}
}
