// Package memory provides a table-backed in-memory telemetry source.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/signalsfoundry/clock-correlator/model"
)

// ErrNotConnected is returned by queries issued outside Connect/Disconnect.
var ErrNotConnected = errors.New("telemetry source is not connected")

// Source serves samples from an in-memory table. It is safe for concurrent
// use, so sampling read-ahead can query it in parallel.
type Source struct {
	mu        sync.RWMutex
	samples   []model.Sample
	connected int

	queries  int
	connects int
}

// NewSource constructs a source over samples.
func NewSource(samples ...model.Sample) *Source {
	return &Source{samples: append([]model.Sample(nil), samples...)}
}

// Add appends samples to the table.
func (s *Source) Add(samples ...model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
}

// Connect opens a query burst. Bursts may nest.
func (s *Source) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected++
	s.connects++
	return nil
}

// Disconnect closes a query burst.
func (s *Source) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == 0 {
		return ErrNotConnected
	}
	s.connected--
	return nil
}

// SamplesInRange returns samples with start <= ERT < stop in table order.
func (s *Source) SamplesInRange(ctx context.Context, start, stop time.Time) ([]model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == 0 {
		return nil, ErrNotConnected
	}
	s.queries++

	var out []model.Sample
	for _, smp := range s.samples {
		if !smp.Ert.Before(start) && smp.Ert.Before(stop) {
			out = append(out, smp)
		}
	}
	return out, nil
}

// Queries returns the number of range queries served.
func (s *Source) Queries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries
}

// Connects returns the number of query bursts opened.
func (s *Source) Connects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connects
}

// Connected reports whether a query burst is open.
func (s *Source) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected > 0
}
