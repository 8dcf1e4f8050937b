package model

import "time"

// RateMode is the clock-change-rate computation mode.
type RateMode string

const (
	RateModeNoDrift      RateMode = "no-drift"
	RateModeAssigned     RateMode = "assigned"
	RateModePredicted    RateMode = "predicted"
	RateModeInterpolated RateMode = "interpolated"
)

// Valid reports whether m is a known mode.
func (m RateMode) Valid() bool {
	switch m {
	case RateModeNoDrift, RateModeAssigned, RateModePredicted, RateModeInterpolated:
		return true
	}
	return false
}

// Target is the correlation anchor derived from one accepted window. It is
// built once and never mutated.
type Target struct {
	Sample Sample
	Window Window

	StationID  int64
	StationErt time.Time

	// OWLT is the one-way light time from spacecraft to station, seconds.
	OWLT float64

	// EncodedSclk is the encoded onboard clock of the target with the fine
	// part forced to zero, in ticks.
	EncodedSclk float64

	// EtG is the ephemeris-time equivalent of the adjusted ground time,
	// seconds past J2000.
	EtG float64

	// TfOffset is the sub-tick correction, seconds.
	TfOffset float64

	// TdtG is the ground time in TDT, seconds past J2000.
	TdtG float64
}

// SclkCoarse returns the coarse clock the target was encoded from.
func (t Target) SclkCoarse() int64 { return t.Sample.TkSclkCoarse }

// HistoryRecord is one stored correlation triplet.
type HistoryRecord struct {
	Seq int64

	SclkCoarse  int64
	SclkFine    int64
	EncodedSclk float64

	TdtG float64

	// ClockChangeRate is kept as a decimal string so the stored precision is
	// never reduced by a float round trip.
	ClockChangeRate string
	RateMode        RateMode

	CreatedAt time.Time
}

// IsSeedSentinel reports whether the record carries the zero clock or zero
// ground time used by seed entries.
func (r HistoryRecord) IsSeedSentinel() bool {
	return r.EncodedSclk == 0 || r.TdtG == 0
}
