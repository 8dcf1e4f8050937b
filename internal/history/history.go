// Package history stores the correlation history: the time-ordered
// sequence of accepted correlation triplets, starting with a seed.
package history

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/model"
)

const secondsPerHour = 3600.0

var (
	// ErrAlreadySeeded is returned when seeding a history that has records.
	ErrAlreadySeeded = errors.New("correlation history is already seeded")
	// ErrStaleTail is returned when a commit's tail rate update targets a
	// record that is no longer the tail.
	ErrStaleTail = errors.New("correlation history tail changed")
)

// prepareCommit checks c against the current tail and returns the record to
// append with its sequence number assigned.
func prepareCommit(tail model.HistoryRecord, c core.Commit) (model.HistoryRecord, error) {
	rec := c.Record
	if c.TailRate != "" && c.TailSeq != tail.Seq {
		return model.HistoryRecord{}, fmt.Errorf("%w: update targets record %d, tail is %d", ErrStaleTail, c.TailSeq, tail.Seq)
	}
	if c.TailRate != "" {
		if err := checkRate(c.TailRate); err != nil {
			return model.HistoryRecord{}, fmt.Errorf("tail rate: %w", err)
		}
	}
	if err := checkRate(rec.ClockChangeRate); err != nil {
		return model.HistoryRecord{}, err
	}
	if err := core.CheckMonotonic(model.Target{TdtG: rec.TdtG, EncodedSclk: rec.EncodedSclk}, tail); err != nil {
		return model.HistoryRecord{}, err
	}
	rec.Seq = tail.Seq + 1
	return rec, nil
}

func checkSeed(rec model.HistoryRecord) error {
	if rec.TdtG < 0 || rec.EncodedSclk < 0 {
		return fmt.Errorf("seed ground time %.6f and encoded clock %.0f must not be negative", rec.TdtG, rec.EncodedSclk)
	}
	return checkRate(rec.ClockChangeRate)
}

func checkRate(rate string) error {
	d, err := decimal.NewFromString(rate)
	if err != nil {
		return fmt.Errorf("clock change rate %q is not a decimal: %w", rate, err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("clock change rate %s must be positive", rate)
	}
	return nil
}

// lookBackLimit is the latest ground time a look-back record may have.
func lookBackLimit(tdtG, minLookBackHours float64) float64 {
	return tdtG - minLookBackHours*secondsPerHour
}
