package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/model"
)

// HistoryCollector exposes correlation history metrics.
type HistoryCollector struct {
	gatherer prometheus.Gatherer

	Commits        *prometheus.CounterVec
	CommitDuration prometheus.Histogram
	Records        prometheus.Gauge
	TailTDT        prometheus.Gauge
}

// NewHistoryCollector registers history metrics against the provided registerer.
func NewHistoryCollector(reg prometheus.Registerer) (*HistoryCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	commits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmtc_history_commits_total",
		Help: "Correlation history commits, labeled by result.",
	}, []string{"result"}), "mmtc_history_commits_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mmtc_history_commit_duration_seconds",
		Help:    "Duration of correlation history commits.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}), "mmtc_history_commit_duration_seconds")
	if err != nil {
		return nil, err
	}

	records, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mmtc_history_records",
		Help: "Number of records in the correlation history, seed included.",
	}), "mmtc_history_records")
	if err != nil {
		return nil, err
	}

	tail, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mmtc_history_tail_tdt_seconds",
		Help: "TDT(G) of the history tail, seconds past J2000.",
	}), "mmtc_history_tail_tdt_seconds")
	if err != nil {
		return nil, err
	}

	return &HistoryCollector{
		gatherer:       gatherer,
		Commits:        commits,
		CommitDuration: duration,
		Records:        records,
		TailTDT:        tail,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *HistoryCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// InstrumentHistory wraps store so that commits are counted and timed and
// the record gauges follow the history.
func InstrumentHistory(store core.HistoryStore, c *HistoryCollector) core.HistoryStore {
	if c == nil {
		return store
	}
	return &instrumentedHistory{HistoryStore: store, c: c}
}

type instrumentedHistory struct {
	core.HistoryStore
	c *HistoryCollector
}

func (h *instrumentedHistory) Commit(ctx context.Context, cm core.Commit) (model.HistoryRecord, error) {
	start := time.Now()
	rec, err := h.HistoryStore.Commit(ctx, cm)
	h.c.CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		h.c.Commits.WithLabelValues("error").Inc()
		return rec, err
	}
	h.c.Commits.WithLabelValues("ok").Inc()
	h.c.TailTDT.Set(rec.TdtG)
	if n, err := h.HistoryStore.Count(ctx); err == nil {
		h.c.Records.Set(float64(n))
	}
	return rec, nil
}
