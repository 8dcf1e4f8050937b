package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// exactTimeCheck names the rejection recorded when a window's target sample
// does not sit on the requested exact time.
const exactTimeCheck = "exact_time"

// evaluation is the verdict on one candidate window: either an accepted
// target or the rejection that sent the search on to the next candidate.
type evaluation struct {
	target    *model.Target
	window    model.Window
	rejection *Rejection
}

// evaluateFunc enriches, validates and filters one raw candidate window. An
// error aborts the search.
type evaluateFunc func(ctx context.Context, w model.Window) (evaluation, error)

// Selection is the outcome of a successful search.
type Selection struct {
	Target     model.Target
	Window     model.Window
	Rejections []Rejection
	Candidates int
}

// TimeRange is a half-open [Start, Stop) query range.
type TimeRange struct {
	Start time.Time
	Stop  time.Time
}

// Selector runs the configured selection strategy against a telemetry
// source.
type Selector struct {
	cfg    SelectionConfig
	source TelemetrySource
	log    logging.Logger
	rec    Recorder
}

// NewSelector constructs a selector. log and rec may be nil.
func NewSelector(cfg SelectionConfig, source TelemetrySource, log logging.Logger, rec Recorder) *Selector {
	if log == nil {
		log = logging.Noop()
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Selector{cfg: cfg, source: source, log: log, rec: rec}
}

// Get searches for the first candidate window that eval accepts, most
// recent first.
func (s *Selector) Get(ctx context.Context, eval evaluateFunc) (sel *Selection, err error) {
	ctx, span := startSpan(ctx, "selection.get",
		attribute.String("strategy", string(s.cfg.Kind)),
		attribute.Int("samples_per_set", s.cfg.SamplesPerSet),
	)
	defer func() { endSpan(span, err) }()

	if s.cfg.SamplesPerSet <= 0 {
		return nil, configErrorf("samples per set must be positive, got %d", s.cfg.SamplesPerSet)
	}

	switch s.cfg.Kind {
	case SelectSeparateConsecutive, SelectSliding:
		return s.getWindowed(ctx, eval)
	case SelectSampling:
		return s.getSampled(ctx, eval)
	default:
		return nil, configErrorf("unknown selection strategy %q", s.cfg.Kind)
	}
}

// searchState accumulates the history of one search.
type searchState struct {
	candidates int
	rejections []Rejection
}

func (st *searchState) lastRejection() *Rejection {
	if len(st.rejections) == 0 {
		return nil
	}
	r := st.rejections[len(st.rejections)-1]
	return &r
}

func (s *Selector) reject(ctx context.Context, st *searchState, r Rejection) {
	st.rejections = append(st.rejections, r)
	s.rec.WindowRejected(r.Filter)
	s.log.Info(ctx, "candidate window rejected",
		logging.String("filter", r.Filter),
		logging.String("reason", r.Reason),
		logging.Time("window_start", r.WindowStart),
		logging.Time("window_end", r.WindowEnd),
	)
}

// consider evaluates one candidate and reports whether it was accepted.
func (s *Selector) consider(ctx context.Context, st *searchState, w model.Window, eval evaluateFunc) (*Selection, error) {
	st.candidates++
	ev, err := eval(ctx, w)
	if err != nil {
		return nil, err
	}
	if ev.rejection != nil {
		s.reject(ctx, st, *ev.rejection)
		return nil, nil
	}
	if ev.target == nil {
		return nil, fmt.Errorf("candidate window accepted without a correlation target")
	}
	return &Selection{
		Target:     *ev.target,
		Window:     ev.window,
		Rejections: st.rejections,
		Candidates: st.candidates,
	}, nil
}

func (s *Selector) exhausted(st *searchState, start, stop time.Time) error {
	return &NoValidSampleSetError{
		Strategy:   s.cfg.Kind,
		Start:      start,
		Stop:       stop,
		Candidates: st.candidates,
		LastReject: st.lastRejection(),
	}
}

func (s *Selector) fetch(ctx context.Context, r TimeRange) ([]model.Sample, error) {
	ctx, span := startSpan(ctx, "telemetry.query",
		attribute.String("start", r.Start.UTC().Format(time.RFC3339Nano)),
		attribute.String("stop", r.Stop.UTC().Format(time.RFC3339Nano)),
	)
	samples, err := s.source.SamplesInRange(ctx, r.Start, r.Stop)
	if err != nil {
		err = fmt.Errorf("query telemetry [%s, %s): %w",
			r.Start.UTC().Format(time.RFC3339), r.Stop.UTC().Format(time.RFC3339), err)
	} else {
		span.SetAttributes(attribute.Int("samples", len(samples)))
		s.rec.TelemetryQueried(len(samples))
	}
	endSpan(span, err)
	return samples, err
}

func (s *Selector) connect(ctx context.Context) error {
	if err := s.source.Connect(ctx); err != nil {
		return fmt.Errorf("connect telemetry source: %w", err)
	}
	return nil
}

func (s *Selector) disconnect(ctx context.Context) {
	if err := s.source.Disconnect(ctx); err != nil {
		s.log.Warn(ctx, "telemetry source disconnect failed", logging.Error(err))
	}
}
