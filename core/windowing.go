package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// windowRange returns the single query range used by the windowing
// strategies.
func (s *Selector) windowRange() TimeRange {
	if s.cfg.ExactTime.IsZero() {
		return TimeRange{Start: s.cfg.Start, Stop: s.cfg.Stop}
	}
	// The margin is inclusive on both sides of the exact time.
	return TimeRange{
		Start: s.cfg.ExactTime.Add(-s.cfg.SupplementalMargin),
		Stop:  s.cfg.ExactTime.Add(s.cfg.SupplementalMargin + time.Nanosecond),
	}
}

// getWindowed queries once and scans fixed-size windows from the most
// recent end backwards. On rejection the window end steps back by the
// window size (separate consecutive) or by one sample (sliding).
func (s *Selector) getWindowed(ctx context.Context, eval evaluateFunc) (*Selection, error) {
	n := s.cfg.SamplesPerSet
	r := s.windowRange()
	if !r.Start.Before(r.Stop) {
		return nil, configErrorf("selection range start %s is not before stop %s",
			r.Start.UTC().Format(time.RFC3339), r.Stop.UTC().Format(time.RFC3339))
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	raw, err := s.fetch(ctx, r)
	s.disconnect(ctx)
	if err != nil {
		return nil, err
	}

	samples := model.Window(raw).Clone()
	samples.SortByErt()

	step := n
	if s.cfg.Kind == SelectSliding {
		step = 1
	}
	exact := !s.cfg.ExactTime.IsZero()

	s.log.Debug(ctx, "scanning telemetry windows",
		logging.String("strategy", string(s.cfg.Kind)),
		logging.Int("samples", len(samples)),
		logging.Int("window", n),
	)

	st := &searchState{}
	for end := len(samples); end-n >= 0; end -= step {
		w := samples[end-n : end].Clone()
		if exact && !w.Target().Ert.Equal(s.cfg.ExactTime) {
			st.candidates++
			s.reject(ctx, st, *newRejection(exactTimeCheck,
				fmt.Sprintf("target sample ERT %s is not the requested exact time %s",
					w.Target().ErtLabel(), s.cfg.ExactTime.UTC().Format(model.ErtLayout)), w))
			continue
		}
		sel, err := s.consider(ctx, st, w, eval)
		if err != nil {
			return nil, err
		}
		if sel != nil {
			return sel, nil
		}
	}
	return nil, s.exhausted(st, r.Start, r.Stop)
}
