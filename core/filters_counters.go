package core

import (
	"github.com/signalsfoundry/clock-correlator/model"
)

// counterContinuityFilter checks that each sample's frame counter plus a
// fixed offset lands on the supplemental frame's counter, modulo the
// counter's rollover boundary.
type counterContinuityFilter struct {
	name     string
	label    string
	counters func(model.Sample) (own, supp int64)
	params   func(FilterConfig) (rollover, offset int64)
}

func vcfcContinuityFilter() Filter {
	return counterContinuityFilter{
		name:  FilterVcfcContinuity,
		label: "VCFC",
		counters: func(s model.Sample) (int64, int64) {
			return s.TkVcfc, s.SuppVcfc
		},
		params: func(cfg FilterConfig) (int64, int64) {
			return cfg.VcfcRollover, cfg.VcfcOffset
		},
	}
}

func mcfcContinuityFilter() Filter {
	return counterContinuityFilter{
		name:  FilterMcfcContinuity,
		label: "MCFC",
		counters: func(s model.Sample) (int64, int64) {
			return s.TkMcfc, s.SuppMcfc
		},
		params: func(cfg FilterConfig) (int64, int64) {
			return cfg.McfcRollover, cfg.McfcOffset
		},
	}
}

func (f counterContinuityFilter) Name() string { return f.name }

func (f counterContinuityFilter) Process(w model.Window, cfg FilterConfig) (Decision, error) {
	rollover, offset := f.params(cfg)
	if rollover <= 0 {
		return Decision{}, configErrorf("%s rollover boundary must be positive, got %d", f.label, rollover)
	}
	if len(w) == 0 {
		return Reject("empty window"), nil
	}
	want := ((offset % rollover) + rollover) % rollover

	for i, s := range w {
		own, supp := f.counters(s)
		if own < 0 || supp < 0 {
			return Reject("sample %d (ERT %s) is missing its %s or supplemental %s",
				i, s.ErtLabel(), f.label, f.label), nil
		}
		if own >= rollover || supp >= rollover {
			return Reject("sample %d (ERT %s): %s %d or supplemental %s %d is outside rollover boundary %d",
				i, s.ErtLabel(), f.label, own, f.label, supp, rollover), nil
		}
		got := ((supp-own)%rollover + rollover) % rollover
		if got != want {
			return Reject("sample %d (ERT %s): %s %d + offset %d != supplemental %s %d (mod %d)",
				i, s.ErtLabel(), f.label, own, offset, f.label, supp, rollover), nil
		}
	}
	return Accept(), nil
}
