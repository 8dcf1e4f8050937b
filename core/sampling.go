package core

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// SamplingRanges walks backwards from stop, producing one query range of the
// given width every period. The earliest range is clamped to start. Ranges
// are returned most recent first.
func SamplingRanges(start, stop time.Time, width, period time.Duration) []TimeRange {
	if width <= 0 || period <= 0 || !start.Before(stop) {
		return nil
	}
	var out []TimeRange
	for subStop := stop; subStop.After(start); subStop = subStop.Add(-period) {
		subStart := subStop.Add(-width)
		if subStart.Before(start) {
			subStart = start
		}
		out = append(out, TimeRange{Start: subStart, Stop: subStop})
	}
	return out
}

func (s *Selector) checkSampling() error {
	width, period := s.cfg.QueryWidth, s.cfg.SamplingPeriod
	if width <= 0 || period <= 0 {
		return configErrorf("sampling query width (%g minutes) and sampling period (%g minutes) must be positive",
			width.Minutes(), period.Minutes())
	}
	if width > period {
		return configErrorf("sampling query width of %g minutes exceeds the sampling period of %g minutes",
			width.Minutes(), period.Minutes())
	}
	if !s.cfg.Start.Before(s.cfg.Stop) {
		return configErrorf("sampling start %s is not before stop %s",
			s.cfg.Start.UTC().Format(time.RFC3339), s.cfg.Stop.UTC().Format(time.RFC3339))
	}
	return nil
}

// getSampled queries each sampling sub-range, most recent first, and
// evaluates the latest SamplesPerSet samples of any sub-range that returned
// enough of them. With ReadAhead above one, sub-range queries are issued in
// concurrent batches but still evaluated in order, stopping at the first
// accepted window.
func (s *Selector) getSampled(ctx context.Context, eval evaluateFunc) (*Selection, error) {
	if err := s.checkSampling(); err != nil {
		return nil, err
	}
	n := s.cfg.SamplesPerSet
	ranges := SamplingRanges(s.cfg.Start, s.cfg.Stop, s.cfg.QueryWidth, s.cfg.SamplingPeriod)

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	defer s.disconnect(ctx)

	batch := s.cfg.ReadAhead
	if batch < 1 {
		batch = 1
	}

	st := &searchState{}
	for i := 0; i < len(ranges); i += batch {
		j := i + batch
		if j > len(ranges) {
			j = len(ranges)
		}
		results, err := s.fetchBatch(ctx, ranges[i:j])
		if err != nil {
			return nil, err
		}
		for k, raw := range results {
			r := ranges[i+k]
			if len(raw) < n {
				s.log.Debug(ctx, "sampling sub-range has too few samples",
					logging.Time("start", r.Start),
					logging.Time("stop", r.Stop),
					logging.Int("samples", len(raw)),
					logging.Int("required", n),
				)
				continue
			}
			w := model.Window(raw).Clone()
			w.SortByErt()
			sel, err := s.consider(ctx, st, w[len(w)-n:].Clone(), eval)
			if err != nil {
				return nil, err
			}
			if sel != nil {
				return sel, nil
			}
		}
	}
	return nil, s.exhausted(st, s.cfg.Start, s.cfg.Stop)
}

func (s *Selector) fetchBatch(ctx context.Context, ranges []TimeRange) ([][]model.Sample, error) {
	results := make([][]model.Sample, len(ranges))
	if len(ranges) == 1 {
		samples, err := s.fetch(ctx, ranges[0])
		if err != nil {
			return nil, err
		}
		results[0] = samples
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(ranges))
	for i, r := range ranges {
		g.Go(func() error {
			samples, err := s.fetch(gctx, r)
			if err != nil {
				return err
			}
			results[i] = samples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
