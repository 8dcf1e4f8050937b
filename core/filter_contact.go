package core

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/clock-correlator/model"
)

// contactFilter checks that the new target lies on the line extrapolated
// from the prior correlation with the prior clock change rate, i.e. that the
// onboard clock has not been reset or jumped since the previous contact.
type contactFilter struct{}

func (contactFilter) Name() string { return FilterContact }

func (contactFilter) ProcessTarget(t model.Target, prior model.HistoryRecord, cfg FilterConfig) (Decision, error) {
	if cfg.FineTickModulus <= 0 {
		return Decision{}, configErrorf("fine tick modulus must be positive, got %d", cfg.FineTickModulus)
	}
	if cfg.ContactToleranceMillis <= 0 {
		return Decision{}, configErrorf("contact tolerance must be positive, got %g ms", cfg.ContactToleranceMillis)
	}
	if prior.IsSeedSentinel() {
		return Accept(), nil
	}

	rate := 1.0
	if prior.ClockChangeRate != "" {
		d, err := decimal.NewFromString(prior.ClockChangeRate)
		if err != nil {
			return Decision{}, configErrorf("history record %d has unparseable clock change rate %q", prior.Seq, prior.ClockChangeRate)
		}
		rate = d.InexactFloat64()
	}

	dSclk := (t.EncodedSclk - prior.EncodedSclk) / float64(cfg.FineTickModulus)
	predicted := prior.TdtG + dSclk*rate
	diffMs := math.Abs(t.TdtG-predicted) * 1000
	if diffMs > cfg.ContactToleranceMillis {
		return Reject("TDT(G) %.6f differs from %.6f predicted by record %d by %.3f ms, tolerance %.3f ms",
			t.TdtG, predicted, prior.Seq, diffMs, cfg.ContactToleranceMillis), nil
	}
	return Accept(), nil
}
