package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/clock-correlator/core"
)

// CorrelationCollector bundles Prometheus metrics for correlation attempts
// and the telemetry feed, and provides helpers to wire them into gRPC
// servers and HTTP handlers. It implements core.Recorder.
type CorrelationCollector struct {
	gatherer prometheus.Gatherer

	Runs             *prometheus.CounterVec
	RunDurations     prometheus.Histogram
	WindowRejections *prometheus.CounterVec
	TelemetryQueries prometheus.Counter
	TelemetrySamples prometheus.Counter
	ClockChangeRate  prometheus.Gauge
	LastSuccess      prometheus.Gauge

	FeedRequests  *prometheus.CounterVec
	FeedDurations *prometheus.HistogramVec
}

// NewCorrelationCollector registers correlation metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewCorrelationCollector(reg prometheus.Registerer) (*CorrelationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmtc_runs_total",
		Help: "Total number of correlation attempts, labeled by outcome.",
	}, []string{"outcome"}), "mmtc_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mmtc_run_duration_seconds",
		Help:    "Duration of correlation attempts in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}), "mmtc_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	rejections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmtc_window_rejections_total",
		Help: "Candidate windows rejected, labeled by the rejecting filter.",
	}, []string{"filter"}), "mmtc_window_rejections_total")
	if err != nil {
		return nil, err
	}

	queries, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mmtc_telemetry_queries_total",
		Help: "Telemetry range queries issued against the telemetry source.",
	}), "mmtc_telemetry_queries_total")
	if err != nil {
		return nil, err
	}
	samples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mmtc_telemetry_samples_total",
		Help: "Telemetry samples returned by range queries.",
	}), "mmtc_telemetry_samples_total")
	if err != nil {
		return nil, err
	}

	rate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mmtc_clock_change_rate",
		Help: "Clock change rate of the most recently accepted correlation.",
	}), "mmtc_clock_change_rate")
	if err != nil {
		return nil, err
	}
	lastSuccess, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mmtc_last_success_timestamp_seconds",
		Help: "Unix time of the most recently accepted correlation.",
	}), "mmtc_last_success_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	feedRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mmtc_feed_requests_total",
		Help: "Total number of handled telemetry feed RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "mmtc_feed_requests_total")
	if err != nil {
		return nil, err
	}
	feedDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mmtc_feed_request_duration_seconds",
		Help:    "Telemetry feed RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "mmtc_feed_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &CorrelationCollector{
		gatherer:         gatherer,
		Runs:             runs,
		RunDurations:     durations,
		WindowRejections: rejections,
		TelemetryQueries: queries,
		TelemetrySamples: samples,
		ClockChangeRate:  rate,
		LastSuccess:      lastSuccess,
		FeedRequests:     feedRequests,
		FeedDurations:    feedDurations,
	}, nil
}

// TelemetryQueried counts one telemetry range query returning n samples.
func (c *CorrelationCollector) TelemetryQueried(n int) {
	if c == nil {
		return
	}
	c.TelemetryQueries.Inc()
	c.TelemetrySamples.Add(float64(n))
}

// WindowRejected counts one candidate window rejected by filter.
func (c *CorrelationCollector) WindowRejected(filter string) {
	if c == nil {
		return
	}
	c.WindowRejections.WithLabelValues(filter).Inc()
}

// AttemptFinished records the outcome of one correlation attempt. rate is
// only meaningful for accepted attempts.
func (c *CorrelationCollector) AttemptFinished(outcome string, elapsed time.Duration, rate float64) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
	c.RunDurations.Observe(elapsed.Seconds())
	if outcome == core.OutcomeAccepted {
		c.ClockChangeRate.Set(rate)
		c.LastSuccess.Set(float64(time.Now().Unix()))
	}
}

// UnaryServerInterceptor records request counts and durations for unary
// telemetry feed RPCs.
func (c *CorrelationCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.FeedRequests.WithLabelValues(service, method, code).Inc()
		c.FeedDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CorrelationCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
