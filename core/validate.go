package core

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/clock-correlator/model"
)

// ValidateSamples checks that every sample carries the fields needed for a
// correlation and that no two samples share an ERT. All problems are
// collected before returning so an operator sees the whole picture at once.
func ValidateSamples(samples []model.Sample, fineTickModulus int64) error {
	var problems []string

	for i, s := range samples {
		var missing []string
		if s.Ert.IsZero() {
			missing = append(missing, "ERT")
		}
		if s.PathID < 0 {
			missing = append(missing, "path id")
		}
		if s.TkSclkCoarse < 0 {
			missing = append(missing, "tk SCLK coarse")
		}
		switch {
		case s.TkSclkFine < 0:
			missing = append(missing, "tk SCLK fine")
		case fineTickModulus > 0 && s.TkSclkFine >= fineTickModulus:
			missing = append(missing, fmt.Sprintf("tk SCLK fine %d exceeds modulus %d", s.TkSclkFine, fineTickModulus))
		}
		if !model.IsSetFloat(s.TkDataRateBps) || s.TkDataRateBps <= 0 {
			missing = append(missing, "downlink data rate")
		}
		if !model.IsSetFloat(s.BitrateDelaySec) {
			missing = append(missing, "bitrate delay")
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("sample %d (ERT %s) missing or invalid: %s",
				i, s.ErtLabel(), strings.Join(missing, ", ")))
		}
	}

	seen := make(map[int64][]int, len(samples))
	var order []int64
	for i, s := range samples {
		if s.Ert.IsZero() {
			continue
		}
		key := s.Ert.UnixNano()
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = append(seen[key], i)
	}
	for _, key := range order {
		idx := seen[key]
		if len(idx) < 2 {
			continue
		}
		parts := make([]string, len(idx))
		for j, i := range idx {
			parts[j] = fmt.Sprintf("%d", i)
		}
		problems = append(problems, fmt.Sprintf("samples %s share ERT %s",
			strings.Join(parts, ", "), samples[idx[0]].ErtLabel()))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
