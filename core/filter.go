package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/clock-correlator/model"
)

// Filter names accepted in FilterConfig.Order.
const (
	FilterVcfcContinuity = "vcfc_continuity"
	FilterMcfcContinuity = "mcfc_continuity"
	FilterErtDelta       = "ert_delta"
	FilterSclkDelta      = "sclk_delta"
	FilterMinDataRate    = "min_datarate"
	FilterMaxDataRate    = "max_datarate"
	FilterVcidGroup      = "vcid_group"
	FilterValidity       = "validity"
	FilterContact        = "contact"
)

// Decision is the outcome of one filter over one window. A rejection always
// carries a human-readable reason.
type Decision struct {
	Accepted bool
	Reason   string
}

// Accept returns a passing decision.
func Accept() Decision { return Decision{Accepted: true} }

// Reject returns a failing decision with a formatted reason.
func Reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Filter judges a window ordered by ascending ERT. A false decision rejects
// the window; an error signals a structural or configuration problem that
// aborts the whole attempt.
type Filter interface {
	Name() string
	Process(w model.Window, cfg FilterConfig) (Decision, error)
}

// TargetFilter judges the correlation target derived from a window that has
// already passed every window filter.
type TargetFilter interface {
	Name() string
	ProcessTarget(t model.Target, prior model.HistoryRecord, cfg FilterConfig) (Decision, error)
}

// Rejection records which filter rejected which window, and why.
type Rejection struct {
	Filter      string
	Reason      string
	WindowStart time.Time
	WindowEnd   time.Time
}

// Pipeline runs the enabled filters in configured order, stopping at the
// first rejection.
type Pipeline struct {
	cfg     FilterConfig
	window  []Filter
	targets []TargetFilter
}

// NewPipeline builds the pipeline named by cfg.Order.
func NewPipeline(cfg FilterConfig) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}
	seen := make(map[string]bool, len(cfg.Order))
	for _, name := range cfg.Order {
		if seen[name] {
			return nil, configErrorf("filter %q listed more than once", name)
		}
		seen[name] = true
		if name == FilterContact {
			p.targets = append(p.targets, contactFilter{})
			continue
		}
		f, err := newWindowFilter(name)
		if err != nil {
			return nil, err
		}
		p.window = append(p.window, f)
	}
	return p, nil
}

// NewPipelineFromFilters assembles a pipeline from explicit filters.
func NewPipelineFromFilters(cfg FilterConfig, window []Filter, targets []TargetFilter) *Pipeline {
	return &Pipeline{cfg: cfg, window: window, targets: targets}
}

func newWindowFilter(name string) (Filter, error) {
	switch name {
	case FilterVcfcContinuity:
		return vcfcContinuityFilter(), nil
	case FilterMcfcContinuity:
		return mcfcContinuityFilter(), nil
	case FilterErtDelta:
		return ertDeltaFilter{}, nil
	case FilterSclkDelta:
		return sclkDeltaFilter{}, nil
	case FilterMinDataRate:
		return minDataRateFilter{}, nil
	case FilterMaxDataRate:
		return maxDataRateFilter{}, nil
	case FilterVcidGroup:
		return vcidGroupFilter{}, nil
	case FilterValidity:
		return validityFilter{}, nil
	default:
		return nil, configErrorf("unknown filter %q", name)
	}
}

// Names returns the filter names in evaluation order.
func (p *Pipeline) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.window)+len(p.targets))
	for _, f := range p.window {
		out = append(out, f.Name())
	}
	for _, f := range p.targets {
		out = append(out, f.Name())
	}
	return out
}

// HasTargetFilters reports whether any filter needs the derived target.
func (p *Pipeline) HasTargetFilters() bool { return p != nil && len(p.targets) > 0 }

// Evaluate runs the window filters. It returns nil when every filter
// accepts.
func (p *Pipeline) Evaluate(w model.Window) (*Rejection, error) {
	if p == nil {
		return nil, nil
	}
	for _, f := range p.window {
		d, err := f.Process(w, p.cfg)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
		if !d.Accepted {
			return newRejection(f.Name(), d.Reason, w), nil
		}
	}
	return nil, nil
}

// EvaluateTarget runs the target filters against the prior history record.
func (p *Pipeline) EvaluateTarget(t model.Target, prior model.HistoryRecord) (*Rejection, error) {
	if p == nil {
		return nil, nil
	}
	for _, f := range p.targets {
		d, err := f.ProcessTarget(t, prior, p.cfg)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Name(), err)
		}
		if !d.Accepted {
			return newRejection(f.Name(), d.Reason, t.Window), nil
		}
	}
	return nil, nil
}

func newRejection(filter, reason string, w model.Window) *Rejection {
	r := &Rejection{Filter: filter, Reason: reason}
	if len(w) > 0 {
		r.WindowStart = w[0].Ert
		r.WindowEnd = w[len(w)-1].Ert
	}
	return r
}
