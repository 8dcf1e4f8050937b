package core

import (
	"math"

	"github.com/signalsfoundry/clock-correlator/model"
)

type minDataRateFilter struct{}

func (minDataRateFilter) Name() string { return FilterMinDataRate }

func (minDataRateFilter) Process(w model.Window, cfg FilterConfig) (Decision, error) {
	if len(w) == 0 {
		return Reject("empty window"), nil
	}
	for i, s := range w {
		if math.IsNaN(s.TkDataRateBps) {
			return Reject("sample %d (ERT %s) has no downlink rate", i, s.ErtLabel()), nil
		}
		if s.TkDataRateBps < cfg.MinDataRateBps {
			return Reject("sample %d (ERT %s) downlink rate %.3f bps is below minimum %.3f bps",
				i, s.ErtLabel(), s.TkDataRateBps, cfg.MinDataRateBps), nil
		}
	}
	return Accept(), nil
}

type maxDataRateFilter struct{}

func (maxDataRateFilter) Name() string { return FilterMaxDataRate }

func (maxDataRateFilter) Process(w model.Window, cfg FilterConfig) (Decision, error) {
	if cfg.MaxDataRateBps <= 0 {
		return Decision{}, configErrorf("maximum downlink rate must be positive, got %g", cfg.MaxDataRateBps)
	}
	if len(w) == 0 {
		return Reject("empty window"), nil
	}
	for i, s := range w {
		if math.IsNaN(s.TkDataRateBps) {
			return Reject("sample %d (ERT %s) has no downlink rate", i, s.ErtLabel()), nil
		}
		if s.TkDataRateBps > cfg.MaxDataRateBps {
			return Reject("sample %d (ERT %s) downlink rate %.3f bps is above maximum %.3f bps",
				i, s.ErtLabel(), s.TkDataRateBps, cfg.MaxDataRateBps), nil
		}
	}
	return Accept(), nil
}

// vcidGroupFilter requires every sample's virtual channel to fall inside a
// single configured group of equivalent channels.
type vcidGroupFilter struct{}

func (vcidGroupFilter) Name() string { return FilterVcidGroup }

func (vcidGroupFilter) Process(w model.Window, cfg FilterConfig) (Decision, error) {
	if len(cfg.VcidGroups) == 0 {
		return Decision{}, configErrorf("vcid_group filter enabled without any VCID groups")
	}
	if len(w) == 0 {
		return Reject("empty window"), nil
	}

	vcid := func(s model.Sample) int64 {
		if s.TkVcid >= 0 {
			return s.TkVcid
		}
		return s.Vcid
	}
	first := vcid(w[0])
	group := -1
	for gi, g := range cfg.VcidGroups {
		if containsID(g, first) {
			group = gi
			break
		}
	}
	if group < 0 {
		return Reject("sample 0 (ERT %s) VCID %d is not in any configured group", w[0].ErtLabel(), first), nil
	}
	for i, s := range w[1:] {
		if id := vcid(s); !containsID(cfg.VcidGroups[group], id) {
			return Reject("sample %d (ERT %s) VCID %d is outside group %v of sample 0",
				i+1, s.ErtLabel(), id, cfg.VcidGroups[group]), nil
		}
	}
	return Accept(), nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type validityFilter struct{}

func (validityFilter) Name() string { return FilterValidity }

func (validityFilter) Process(w model.Window, _ FilterConfig) (Decision, error) {
	if len(w) == 0 {
		return Reject("empty window"), nil
	}
	for i, s := range w {
		if s.Validity == model.Invalid {
			return Reject("sample %d (ERT %s) is flagged invalid", i, s.ErtLabel()), nil
		}
	}
	return Accept(), nil
}
