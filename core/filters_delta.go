package core

import (
	"math"

	"github.com/signalsfoundry/clock-correlator/model"
)

// ertDeltaFilter requires the gaps between consecutive ERTs to agree with
// each other within a tolerance.
type ertDeltaFilter struct{}

func (ertDeltaFilter) Name() string { return FilterErtDelta }

func (ertDeltaFilter) Process(w model.Window, cfg FilterConfig) (Decision, error) {
	if cfg.ErtDeltaToleranceSec < 0 {
		return Decision{}, configErrorf("ERT delta tolerance must not be negative, got %g", cfg.ErtDeltaToleranceSec)
	}
	if len(w) == 0 {
		return Reject("empty window"), nil
	}
	if len(w) < 3 {
		return Accept(), nil
	}
	minD, maxD := math.Inf(1), math.Inf(-1)
	for i := 1; i < len(w); i++ {
		d := w[i].Ert.Sub(w[i-1].Ert).Seconds()
		if d <= 0 {
			return Reject("ERT of sample %d (%s) does not follow sample %d (%s)",
				i, w[i].ErtLabel(), i-1, w[i-1].ErtLabel()), nil
		}
		minD = math.Min(minD, d)
		maxD = math.Max(maxD, d)
	}
	if spread := maxD - minD; spread > cfg.ErtDeltaToleranceSec {
		return Reject("ERT deltas range from %.6fs to %.6fs, spread %.6fs exceeds tolerance %.6fs",
			minD, maxD, spread, cfg.ErtDeltaToleranceSec), nil
	}
	return Accept(), nil
}

// sclkDeltaFilter requires each clock delta between consecutive samples to
// match the corresponding ERT delta within a tolerance. The reported-later
// clock is preferred; the sample's own clock is used when the reported clock
// is absent on every sample.
type sclkDeltaFilter struct{}

func (sclkDeltaFilter) Name() string { return FilterSclkDelta }

func (sclkDeltaFilter) Process(w model.Window, cfg FilterConfig) (Decision, error) {
	if cfg.FineTickModulus <= 0 {
		return Decision{}, configErrorf("fine tick modulus must be positive, got %d", cfg.FineTickModulus)
	}
	if cfg.SclkDeltaToleranceSec < 0 {
		return Decision{}, configErrorf("SCLK delta tolerance must not be negative, got %g", cfg.SclkDeltaToleranceSec)
	}
	if len(w) == 0 {
		return Reject("empty window"), nil
	}

	allTk, allOwn := true, true
	for _, s := range w {
		allTk = allTk && s.HasTkSclk()
		allOwn = allOwn && s.HasSclk()
	}
	var clock func(model.Sample) float64
	switch {
	case allTk:
		clock = func(s model.Sample) float64 {
			return float64(s.TkSclkCoarse) + float64(s.TkSclkFine)/float64(cfg.FineTickModulus)
		}
	case allOwn:
		clock = func(s model.Sample) float64 {
			return float64(s.SclkCoarse) + float64(s.SclkFine)/float64(cfg.FineTickModulus)
		}
	default:
		return Reject("neither the reported nor the sample clock is present on every sample"), nil
	}

	for i := 1; i < len(w); i++ {
		dSclk := clock(w[i]) - clock(w[i-1])
		dErt := w[i].Ert.Sub(w[i-1].Ert).Seconds()
		if diff := math.Abs(dSclk - dErt); diff > cfg.SclkDeltaToleranceSec {
			return Reject("samples %d-%d: SCLK delta %.6fs differs from ERT delta %.6fs by %.6fs, tolerance %.6fs",
				i-1, i, dSclk, dErt, diff, cfg.SclkDeltaToleranceSec), nil
		}
	}
	return Accept(), nil
}
