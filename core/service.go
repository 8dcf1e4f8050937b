package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// Service runs correlation attempts repeatedly and commits accepted ones to
// the history. Attempts are serialised: the history tail read at the start
// of an attempt is the tail its commit extends.
type Service struct {
	mu sync.Mutex

	base    Config
	span    time.Duration
	source  TelemetrySource
	times   TimeService
	station StationResolver
	history HistoryStore
	opts    []Option
	log     logging.Logger
}

// NewService constructs a service. When span is positive, each run selects
// telemetry from [now-span, now) instead of the fixed range in base.
func NewService(base Config, span time.Duration, source TelemetrySource, times TimeService, stations StationResolver, history HistoryStore, log logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{
		base:    base,
		span:    span,
		source:  source,
		times:   times,
		station: stations,
		history: history,
		opts:    append([]Option{WithLogger(log)}, opts...),
		log:     log,
	}
}

// RunAt performs one attempt as of now and commits it on success. On any
// failure the history is left untouched.
func (s *Service) RunAt(ctx context.Context, now time.Time) (*Result, model.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.base
	if s.span > 0 {
		cfg.Selection.Stop = now
		cfg.Selection.Start = now.Add(-s.span)
	}

	corr, err := NewCorrelator(cfg, s.source, s.times, s.station, s.history, s.opts...)
	if err != nil {
		return nil, model.HistoryRecord{}, err
	}
	res, err := corr.AttemptCorrelation(ctx)
	if err != nil {
		return nil, model.HistoryRecord{}, err
	}

	rec, err := s.history.Commit(ctx, res.Commit(now))
	if err != nil {
		return nil, model.HistoryRecord{}, fmt.Errorf("commit correlation: %w", err)
	}
	s.log.Info(ctx, "correlation committed",
		logging.Int64("seq", rec.Seq),
		logging.String("run_id", res.RunID),
		logging.String("rate", rec.ClockChangeRate),
	)
	return res, rec, nil
}
