package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// Rounding scales of the clock change rate computation. Ground times are
// known to microseconds; rates are carried to 11 fractional digits.
const (
	GroundTimeScale = 6
	RateScale       = 11

	secondsPerDay  = 86400
	secondsPerHour = 3600.0
)

var (
	decimalOne = decimal.NewFromInt(1)
	msPerDay   = decimal.NewFromInt(secondsPerDay * 1000)
)

// RateResult is the clock change rate computed for one new correlation.
type RateResult struct {
	Mode model.RateMode

	// Rate is assigned to the new correlation record.
	Rate decimal.Decimal

	// InterpolatedRate, set in interpolated mode, replaces the rate of the
	// record that preceded the new correlation.
	InterpolatedRate *decimal.Decimal

	// LookBack is the record the predicted rate was computed against.
	LookBack *model.HistoryRecord

	// DriftMsPerDay is ((1/rate) - 1) * 86400 * 1000 for predicted rates.
	DriftMsPerDay *decimal.Decimal

	// SubstitutedPredicted is set when interpolation was requested but
	// skipped because the history only holds its seed record.
	SubstitutedPredicted bool
}

// RateEngine computes clock change rates against the correlation history.
type RateEngine struct {
	cfg             RateConfig
	fineTickModulus int64
	log             logging.Logger
}

// NewRateEngine constructs an engine. log may be nil.
func NewRateEngine(cfg RateConfig, fineTickModulus int64, log logging.Logger) *RateEngine {
	if log == nil {
		log = logging.Noop()
	}
	return &RateEngine{cfg: cfg, fineTickModulus: fineTickModulus, log: log}
}

// CheckMonotonic requires the new target to strictly advance both the ground
// time and the encoded clock of the history tail.
func CheckMonotonic(t model.Target, tail model.HistoryRecord) error {
	if t.TdtG > tail.TdtG && t.EncodedSclk > tail.EncodedSclk {
		return nil
	}
	return &MonotonicityError{
		NewTdtG:        t.TdtG,
		PriorTdtG:      tail.TdtG,
		NewEncoded:     t.EncodedSclk,
		PriorEncoded:   tail.EncodedSclk,
		PriorRecordSeq: tail.Seq,
	}
}

// ClockSeconds converts an encoded clock in ticks to clock seconds.
func ClockSeconds(encoded float64, fineTickModulus int64) decimal.Decimal {
	return decimal.NewFromFloat(encoded).Div(decimal.NewFromInt(fineTickModulus))
}

// ComputeRate returns (tdtNew - tdtPrev) / (sclkNew - sclkPrev), with both
// ground times rounded to GroundTimeScale before subtraction and the
// quotient rounded to RateScale. Clock values are in clock seconds. A rate
// that is not positive after rounding is a ValidationError; this includes
// ground times closer than the rounding resolution.
func ComputeRate(tdtNew, tdtPrev float64, sclkNew, sclkPrev decimal.Decimal) (decimal.Decimal, error) {
	dSclk := sclkNew.Sub(sclkPrev)
	if dSclk.IsZero() {
		return decimal.Decimal{}, &ValidationError{Problems: []string{
			fmt.Sprintf("cannot compute clock change rate: clock values %s and %s are equal", sclkNew, sclkPrev),
		}}
	}
	newG := decimal.NewFromFloat(tdtNew).Round(GroundTimeScale)
	prevG := decimal.NewFromFloat(tdtPrev).Round(GroundTimeScale)
	rate := newG.Sub(prevG).DivRound(dSclk, RateScale)
	if !rate.IsPositive() {
		return decimal.Decimal{}, &ValidationError{Problems: []string{
			fmt.Sprintf("cannot compute clock change rate: rounded ground times %s and %s over clock values %s and %s give rate %s",
				newG.StringFixed(GroundTimeScale), prevG.StringFixed(GroundTimeScale), sclkNew, sclkPrev, rate),
		}}
	}
	return rate, nil
}

// DriftMsPerDay converts a rate into milliseconds of clock drift per day.
func DriftMsPerDay(rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Decimal{}, &ValidationError{Problems: []string{
			fmt.Sprintf("cannot compute clock drift from non-positive rate %s", rate),
		}}
	}
	return decimalOne.DivRound(rate, 2*RateScale).Sub(decimalOne).Mul(msPerDay), nil
}

// Compute checks monotonicity against tail and then computes the rate in the
// configured mode. history is only consulted in predicted and interpolated
// modes.
func (e *RateEngine) Compute(ctx context.Context, t model.Target, tail model.HistoryRecord, history HistoryReader) (RateResult, error) {
	if err := CheckMonotonic(t, tail); err != nil {
		return RateResult{}, err
	}

	switch e.cfg.Mode {
	case model.RateModeNoDrift:
		return RateResult{Mode: model.RateModeNoDrift, Rate: decimalOne}, nil

	case model.RateModeAssigned:
		return RateResult{Mode: model.RateModeAssigned, Rate: e.cfg.AssignedRate}, nil

	case model.RateModePredicted:
		return e.predicted(ctx, t, history)

	case model.RateModeInterpolated:
		count, err := history.Count(ctx)
		if err != nil {
			return RateResult{}, fmt.Errorf("count correlation history: %w", err)
		}
		if count == 1 {
			// The seed's rate must survive; there is nothing to interpolate.
			e.log.Warn(ctx, "history holds only its seed record; computing a predicted rate instead of interpolating",
				logging.Int64("seed_seq", tail.Seq))
			res, err := e.predicted(ctx, t, history)
			if err != nil {
				return RateResult{}, err
			}
			res.SubstitutedPredicted = true
			return res, nil
		}

		interp, err := ComputeRate(t.TdtG, tail.TdtG,
			ClockSeconds(t.EncodedSclk, e.fineTickModulus), ClockSeconds(tail.EncodedSclk, e.fineTickModulus))
		if err != nil {
			return RateResult{}, err
		}
		res, err := e.predicted(ctx, t, history)
		if err != nil {
			return RateResult{}, err
		}
		res.Mode = model.RateModeInterpolated
		res.InterpolatedRate = &interp
		return res, nil

	default:
		return RateResult{}, configErrorf("unknown clock change rate mode %q", e.cfg.Mode)
	}
}

func (e *RateEngine) predicted(ctx context.Context, t model.Target, history HistoryReader) (RateResult, error) {
	rec, ok, err := history.RecordAtOrBefore(ctx, t.TdtG, e.cfg.LookBackHours)
	if err != nil {
		return RateResult{}, fmt.Errorf("look back through correlation history: %w", err)
	}
	if !ok {
		return RateResult{}, &InsufficientHistoryError{
			LookBackHours:    e.cfg.LookBackHours,
			MaxLookBackHours: e.cfg.MaxLookBackHours,
			Msg:              "history has no record old enough",
		}
	}
	if ageHours := (t.TdtG - rec.TdtG) / secondsPerHour; ageHours > e.cfg.MaxLookBackHours {
		return RateResult{}, &InsufficientHistoryError{
			LookBackHours:    e.cfg.LookBackHours,
			MaxLookBackHours: e.cfg.MaxLookBackHours,
			Msg:              fmt.Sprintf("most recent eligible record %d is %.2f hours old", rec.Seq, ageHours),
		}
	}

	rate, err := ComputeRate(t.TdtG, rec.TdtG,
		ClockSeconds(t.EncodedSclk, e.fineTickModulus), ClockSeconds(rec.EncodedSclk, e.fineTickModulus))
	if err != nil {
		return RateResult{}, err
	}
	drift, err := DriftMsPerDay(rate)
	if err != nil {
		return RateResult{}, err
	}
	return RateResult{
		Mode:          model.RateModePredicted,
		Rate:          rate,
		LookBack:      &rec,
		DriftMsPerDay: &drift,
	}, nil
}
