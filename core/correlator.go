package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// Correlator composes selection, filtering, target construction and rate
// computation into one correlation attempt.
type Correlator struct {
	cfg      Config
	source   TelemetrySource
	times    TimeService
	stations StationResolver
	history  HistoryReader
	pipeline *Pipeline

	log logging.Logger
	rec Recorder
}

// Option customises a Correlator.
type Option func(*Correlator)

// WithLogger sets the logger used for rejection and warning diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Correlator) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithPipeline replaces the filter pipeline built from the configuration.
func WithPipeline(p *Pipeline) Option {
	return func(c *Correlator) {
		if p != nil {
			c.pipeline = p
		}
	}
}

// NewCorrelator validates cfg and wires the collaborators.
func NewCorrelator(cfg Config, source TelemetrySource, times TimeService, stations StationResolver, history HistoryReader, opts ...Option) (*Correlator, error) {
	if cfg.Filters.FineTickModulus == 0 {
		cfg.Filters.FineTickModulus = cfg.FineTickModulus
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || times == nil || stations == nil || history == nil {
		return nil, fmt.Errorf("correlator requires a telemetry source, time service, station map and history")
	}

	c := &Correlator{
		cfg:      cfg,
		source:   source,
		times:    times,
		stations: stations,
		history:  history,
		log:      logging.Noop(),
		rec:      noopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		p, err := NewPipeline(cfg.Filters)
		if err != nil {
			return nil, err
		}
		c.pipeline = p
	}
	return c, nil
}

// Result is a successful correlation attempt.
type Result struct {
	RunID string

	Target model.Target
	Rate   RateResult

	// Prior is the history tail the attempt was checked against.
	Prior model.HistoryRecord

	Rejections []Rejection
	Candidates int
}

// AttemptCorrelation runs one correlation attempt. It either returns a
// monotonic target with its clock change rate, or an error; nothing is
// written anywhere.
func (c *Correlator) AttemptCorrelation(ctx context.Context) (res *Result, err error) {
	started := time.Now()
	ctx, log := logging.WithRunLogger(ctx, c.log)
	runID := logging.RunIDFromContext(ctx)

	ctx, span := startSpan(ctx, "correlation.attempt",
		attribute.String("run_id", runID),
		attribute.String("selection", c.cfg.Selection.describe()),
		attribute.String("rate_mode", string(c.cfg.Rate.Mode)),
	)
	defer func() {
		endSpan(span, err)
		c.finish(ctx, log, started, res, err)
	}()

	log.Info(ctx, "starting correlation attempt",
		logging.String("selection", c.cfg.Selection.describe()),
		logging.Any("filters", c.pipeline.Names()),
		logging.String("rate_mode", string(c.cfg.Rate.Mode)),
	)

	tail, err := c.history.Tail(ctx)
	if err != nil {
		return nil, fmt.Errorf("read correlation history tail: %w", err)
	}

	builder := NewTargetBuilder(c.cfg.FineTickModulus, c.cfg.Target, c.times, c.stations, log)
	eval := func(ctx context.Context, raw model.Window) (evaluation, error) {
		w, err := enrichWindow(raw, c.cfg)
		if err != nil {
			return evaluation{}, err
		}
		rej, err := c.pipeline.Evaluate(w)
		if err != nil || rej != nil {
			return evaluation{rejection: rej}, err
		}
		target, err := builder.Build(ctx, w)
		if err != nil {
			return evaluation{}, err
		}
		rej, err = c.pipeline.EvaluateTarget(target, tail)
		if err != nil || rej != nil {
			return evaluation{rejection: rej}, err
		}
		return evaluation{target: &target, window: w}, nil
	}

	sel, err := NewSelector(c.cfg.Selection, c.source, log, c.rec).Get(ctx, eval)
	if err != nil {
		return nil, err
	}

	rate, err := NewRateEngine(c.cfg.Rate, c.cfg.FineTickModulus, log).Compute(ctx, sel.Target, tail, c.history)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:      runID,
		Target:     sel.Target,
		Rate:       rate,
		Prior:      tail,
		Rejections: sel.Rejections,
		Candidates: sel.Candidates,
	}, nil
}

func (c *Correlator) finish(ctx context.Context, log logging.Logger, started time.Time, res *Result, err error) {
	elapsed := time.Since(started)
	if err != nil {
		outcome := OutcomeFailed
		if IsNoValidSampleSet(err) {
			outcome = OutcomeNoWindow
		}
		c.rec.AttemptFinished(outcome, elapsed, 0)
		log.Error(ctx, "correlation attempt failed",
			logging.Error(err),
			logging.String("outcome", outcome),
			logging.Duration("elapsed", elapsed),
		)
		return
	}

	rate := res.Rate.Rate.InexactFloat64()
	c.rec.AttemptFinished(OutcomeAccepted, elapsed, rate)
	fields := []logging.Field{
		logging.Int64("sclk_coarse", res.Target.SclkCoarse()),
		logging.Float64("encoded_sclk", res.Target.EncodedSclk),
		logging.Float64("tdt_g", res.Target.TdtG),
		logging.Float64("owlt", res.Target.OWLT),
		logging.Int64("station_id", res.Target.StationID),
		logging.String("rate", res.Rate.Rate.String()),
		logging.String("rate_mode", string(res.Rate.Mode)),
		logging.Int("candidates", res.Candidates),
		logging.Duration("elapsed", elapsed),
	}
	if res.Rate.DriftMsPerDay != nil {
		fields = append(fields, logging.String("drift_ms_per_day", res.Rate.DriftMsPerDay.StringFixed(6)))
	}
	if res.Rate.InterpolatedRate != nil {
		fields = append(fields, logging.String("interpolated_rate", res.Rate.InterpolatedRate.String()))
	}
	log.Info(ctx, "correlation accepted", fields...)
}

// HistoryRecord returns the record this result appends to the history. The
// fine clock is zero because the sub-tick offset was folded into TDT(G).
func (r *Result) HistoryRecord(now time.Time) model.HistoryRecord {
	return model.HistoryRecord{
		SclkCoarse:      r.Target.SclkCoarse(),
		SclkFine:        0,
		EncodedSclk:     r.Target.EncodedSclk,
		TdtG:            r.Target.TdtG,
		ClockChangeRate: r.Rate.Rate.StringFixed(RateScale),
		RateMode:        r.Rate.Mode,
		CreatedAt:       now.UTC(),
	}
}

// Commit returns the history update for this result.
func (r *Result) Commit(now time.Time) Commit {
	c := Commit{Record: r.HistoryRecord(now)}
	if r.Rate.InterpolatedRate != nil {
		c.TailSeq = r.Prior.Seq
		c.TailRate = r.Rate.InterpolatedRate.StringFixed(RateScale)
	}
	return c
}

// IsNoValidSampleSet reports whether err means the search space was
// exhausted.
func IsNoValidSampleSet(err error) bool {
	return errors.Is(err, ErrNoValidSampleSet)
}
