package core

import (
	"fmt"

	"github.com/signalsfoundry/clock-correlator/model"
)

// enrichWindow sorts a candidate window, derives the downlink rate and
// bitrate delay where the source left them unset, and validates the result.
// Any failure here aborts the attempt rather than moving to the next
// candidate.
func enrichWindow(w model.Window, cfg Config) (model.Window, error) {
	out := w.Clone()
	out.SortByErt()

	needRate := false
	for _, s := range out {
		if !model.IsSetFloat(s.TkDataRateBps) || s.TkDataRateBps <= 0 {
			needRate = true
			break
		}
	}
	if needRate {
		if err := estimateDataRates(out); err != nil {
			return nil, err
		}
	}

	for i := range out {
		s := &out[i]
		if !model.IsSetFloat(s.BitrateDelaySec) && s.FrameSizeBits > 0 &&
			model.IsSetFloat(s.TkDataRateBps) && s.TkDataRateBps > 0 {
			s.BitrateDelaySec = cfg.Enrich.BitrateDelayFrames * float64(s.FrameSizeBits) / s.TkDataRateBps
		}
		if s.ErtStr == "" && !s.Ert.IsZero() {
			s.ErtStr = s.ErtLabel()
		}
	}

	if err := ValidateSamples(out, cfg.FineTickModulus); err != nil {
		return nil, err
	}
	return out, nil
}

// estimateDataRates fills missing downlink rates from the frame size and the
// time it took to receive one frame. The supplemental frame's ERT gives that
// time directly; otherwise the window is assumed to hold consecutive frames
// and the average spacing is used. Only windows with a single frame size can
// be estimated.
func estimateDataRates(w model.Window) error {
	if len(w) == 0 {
		return nil
	}
	size := w[0].FrameSizeBits
	for i, s := range w {
		if s.FrameSizeBits <= 0 {
			return &ValidationError{Problems: []string{
				fmt.Sprintf("cannot estimate downlink rate: sample %d (ERT %s) has no frame size", i, s.ErtLabel()),
			}}
		}
		if s.FrameSizeBits != size {
			return &ValidationError{Problems: []string{
				fmt.Sprintf("cannot estimate downlink rate: window mixes frame sizes %d and %d bits (sample %d, ERT %s)",
					size, s.FrameSizeBits, i, s.ErtLabel()),
			}}
		}
	}

	var average float64
	if len(w) > 1 {
		if elapsed := w[len(w)-1].Ert.Sub(w[0].Ert).Seconds(); elapsed > 0 {
			average = float64(size) * float64(len(w)-1) / elapsed
		}
	}

	for i := range w {
		s := &w[i]
		if model.IsSetFloat(s.TkDataRateBps) && s.TkDataRateBps > 0 {
			continue
		}
		if !s.SuppErt.IsZero() && s.SuppErt.After(s.Ert) {
			s.TkDataRateBps = float64(size) / s.SuppErt.Sub(s.Ert).Seconds()
			continue
		}
		if average <= 0 {
			return &ValidationError{Problems: []string{
				fmt.Sprintf("cannot estimate downlink rate for sample %d (ERT %s): no elapsed time to measure",
					i, s.ErtLabel()),
			}}
		}
		s.TkDataRateBps = average
	}
	return nil
}
