package core

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/clock-correlator/model"
)

// ErrEmptyHistory is returned by history readers that hold no records, not
// even a seed.
var ErrEmptyHistory = errors.New("correlation history is empty")

// TimeService performs timescale conversions, clock encoding and light-time
// computation. All methods may fail; failures surface as
// TimeConversionError.
type TimeService interface {
	// UTCToET converts a UTC instant to ephemeris time, seconds past J2000.
	UTCToET(t time.Time) (float64, error)
	// ETToTDT converts ephemeris time to terrestrial dynamical time, seconds
	// past J2000.
	ETToTDT(et float64) (float64, error)
	// EncodeSCLK combines a coarse and fine clock reading into ticks.
	EncodeSCLK(coarse, fine int64) (float64, error)
	// OneWayLightTime returns the spacecraft-to-station light time, seconds,
	// for a signal received by the station at ert.
	OneWayLightTime(ctx context.Context, stationID int64, ert time.Time) (float64, error)
}

// TelemetrySource returns candidate samples. Queries are bracketed by
// Connect and Disconnect around each burst.
type TelemetrySource interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// SamplesInRange returns samples with start <= ERT < stop, in any order.
	SamplesInRange(ctx context.Context, start, stop time.Time) ([]model.Sample, error)
}

// HistoryReader exposes the correlation history.
type HistoryReader interface {
	// Tail returns the last accepted record, or ErrEmptyHistory.
	Tail(ctx context.Context) (model.HistoryRecord, error)
	// Count returns the number of records, seed included.
	Count(ctx context.Context) (int, error)
	// RecordAtOrBefore returns the most recent record whose TDT(G) is at
	// least minLookBackHours before tdtG.
	RecordAtOrBefore(ctx context.Context, tdtG float64, minLookBackHours float64) (model.HistoryRecord, bool, error)
}

// Commit is one all-or-nothing history update.
type Commit struct {
	// TailRate, when set, replaces the clock change rate of the record with
	// sequence TailSeq before Record is appended.
	TailSeq  int64
	TailRate string

	Record model.HistoryRecord
}

// HistoryWriter persists accepted correlations.
type HistoryWriter interface {
	Commit(ctx context.Context, c Commit) (model.HistoryRecord, error)
}

// HistoryStore is a readable and writable history.
type HistoryStore interface {
	HistoryReader
	HistoryWriter
}

// StationResolver maps ground path ids to stations.
type StationResolver interface {
	StationForPath(pathID int64) (model.GroundStation, bool)
}
