package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/clock-correlator/model"
)

// SelectionKind names a telemetry selection strategy.
type SelectionKind string

const (
	SelectSeparateConsecutive SelectionKind = "separate_consecutive"
	SelectSliding             SelectionKind = "sliding"
	SelectSampling            SelectionKind = "sampling"
)

// Config is everything one correlation attempt reads.
type Config struct {
	// FineTickModulus is the number of fine ticks per coarse tick.
	FineTickModulus int64

	Selection SelectionConfig
	Filters   FilterConfig
	Rate      RateConfig
	Target    TargetConfig
	Enrich    EnrichConfig
}

// SelectionConfig holds the timing parameters of the selection strategies.
type SelectionConfig struct {
	Kind SelectionKind

	// SamplesPerSet is the window size N.
	SamplesPerSet int

	Start time.Time
	Stop  time.Time

	// ExactTime, when set, selects the window whose target sample was
	// received exactly at this time, searched within +/- SupplementalMargin.
	ExactTime          time.Time
	SupplementalMargin time.Duration

	// QueryWidth and SamplingPeriod drive the sampling strategy.
	QueryWidth     time.Duration
	SamplingPeriod time.Duration

	// ReadAhead is the number of sampling sub-range queries issued
	// concurrently. Values below 2 keep queries strictly sequential.
	ReadAhead int
}

// FilterConfig carries per-filter thresholds. Only filters named in Order
// run.
type FilterConfig struct {
	Order []string

	FineTickModulus int64

	VcfcRollover int64
	VcfcOffset   int64
	McfcRollover int64
	McfcOffset   int64

	ErtDeltaToleranceSec  float64
	SclkDeltaToleranceSec float64

	MinDataRateBps float64
	MaxDataRateBps float64

	VcidGroups [][]int64

	ContactToleranceMillis float64
}

// RateConfig selects the clock-change-rate mode.
type RateConfig struct {
	Mode             model.RateMode
	AssignedRate     decimal.Decimal
	LookBackHours    float64
	MaxLookBackHours float64
}

// TargetConfig holds the constants used to build a correlation target.
type TargetConfig struct {
	TestMode bool

	// FixedOWLT, when non-nil in test mode, replaces the light time computed
	// by the time service.
	FixedOWLT *float64

	SpacecraftInternalDelaySec float64
}

// EnrichConfig controls derivation of missing sample fields.
type EnrichConfig struct {
	// BitrateDelayFrames is the number of frame transmission times the
	// onboard time-keeping event precedes ERT by.
	BitrateDelayFrames float64
}

// Defaults applied by DefaultConfig.
const (
	DefaultVcfcRollover int64 = 1 << 24
	DefaultMcfcRollover int64 = 256
)

// DefaultConfig returns a configuration with the conventional rollover
// boundaries, a five-sample separate-consecutive window and predicted rates.
func DefaultConfig() Config {
	return Config{
		FineTickModulus: 65536,
		Selection: SelectionConfig{
			Kind:          SelectSeparateConsecutive,
			SamplesPerSet: 5,
		},
		Filters: FilterConfig{
			Order:                 []string{FilterValidity},
			VcfcRollover:          DefaultVcfcRollover,
			VcfcOffset:            1,
			McfcRollover:          DefaultMcfcRollover,
			McfcOffset:            1,
			ErtDeltaToleranceSec:  0.001,
			SclkDeltaToleranceSec: 0.001,
		},
		Rate: RateConfig{
			Mode:             model.RateModePredicted,
			AssignedRate:     decimal.NewFromInt(1),
			LookBackHours:    24,
			MaxLookBackHours: 24 * 14,
		},
		Enrich: EnrichConfig{BitrateDelayFrames: 1},
	}
}

// Validate checks parameters that are contradictory on their own. Query
// width versus sampling period is checked by the sampling strategy itself.
func (c Config) Validate() error {
	if c.FineTickModulus <= 0 {
		return configErrorf("fine tick modulus must be positive, got %d", c.FineTickModulus)
	}
	if c.Selection.SamplesPerSet <= 0 {
		return configErrorf("samples per set must be positive, got %d", c.Selection.SamplesPerSet)
	}
	switch c.Selection.Kind {
	case SelectSeparateConsecutive, SelectSliding, SelectSampling:
	default:
		return configErrorf("unknown selection strategy %q", c.Selection.Kind)
	}
	if c.Selection.ExactTime.IsZero() {
		if c.Selection.Start.IsZero() || c.Selection.Stop.IsZero() {
			return configErrorf("selection start and stop times are required")
		}
		if !c.Selection.Start.Before(c.Selection.Stop) {
			return configErrorf("selection start %s is not before stop %s",
				c.Selection.Start.Format(time.RFC3339), c.Selection.Stop.Format(time.RFC3339))
		}
	} else if c.Selection.Kind == SelectSampling {
		return configErrorf("exact target time is only supported by the windowing strategies")
	}
	if !c.Rate.Mode.Valid() {
		return configErrorf("unknown clock change rate mode %q", c.Rate.Mode)
	}
	if c.Rate.Mode == model.RateModePredicted || c.Rate.Mode == model.RateModeInterpolated {
		if c.Rate.LookBackHours < 0 || c.Rate.MaxLookBackHours < c.Rate.LookBackHours {
			return configErrorf("look-back %.2fh must be non-negative and not exceed max look-back %.2fh",
				c.Rate.LookBackHours, c.Rate.MaxLookBackHours)
		}
	}
	if c.Rate.Mode == model.RateModeAssigned && !c.Rate.AssignedRate.IsPositive() {
		return configErrorf("assigned clock change rate must be positive, got %s", c.Rate.AssignedRate)
	}
	if c.Target.FixedOWLT != nil && !c.Target.TestMode {
		return configErrorf("a fixed light time is only permitted in test mode")
	}
	return nil
}

func (k SelectionKind) String() string { return string(k) }

func (c SelectionConfig) describe() string {
	if !c.ExactTime.IsZero() {
		return fmt.Sprintf("%s exact %s +/- %s", c.Kind, c.ExactTime.UTC().Format(time.RFC3339Nano), c.SupplementalMargin)
	}
	return fmt.Sprintf("%s [%s, %s)", c.Kind, c.Start.UTC().Format(time.RFC3339), c.Stop.UTC().Format(time.RFC3339))
}
