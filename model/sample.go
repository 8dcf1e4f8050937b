package model

import (
	"math"
	"sort"
	"time"
)

// Unset marks an integer telemetry field that was not populated by the source.
const Unset int64 = -1

// Validity is the tri-state validity flag attached to a sample by the
// telemetry source.
type Validity int

const (
	ValidityUnset Validity = iota
	Valid
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unset"
	}
}

// Sample is one candidate telemetry observation. Tk-prefixed fields are
// reported by a later telemetry unit describing this one; Supp-prefixed
// fields belong to the supplemental frame that follows it.
type Sample struct {
	SclkCoarse int64
	SclkFine   int64

	TkSclkCoarse int64
	TkSclkFine   int64

	Ert    time.Time
	ErtStr string
	PathID int64

	Vcid int64
	Vcfc int64
	Mcfc int64

	TkVcid int64
	TkVcfc int64
	TkMcfc int64

	SuppErt  time.Time
	SuppVcid int64
	SuppVcfc int64
	SuppMcfc int64

	TkDataRateBps   float64
	BitrateDelaySec float64
	FrameSizeBits   int64

	Validity Validity
}

// NewSample returns a sample with every field unset.
func NewSample() Sample {
	return Sample{
		SclkCoarse:      Unset,
		SclkFine:        Unset,
		TkSclkCoarse:    Unset,
		TkSclkFine:      Unset,
		PathID:          Unset,
		Vcid:            Unset,
		Vcfc:            Unset,
		Mcfc:            Unset,
		TkVcid:          Unset,
		TkVcfc:          Unset,
		TkMcfc:          Unset,
		SuppVcid:        Unset,
		SuppVcfc:        Unset,
		SuppMcfc:        Unset,
		TkDataRateBps:   math.NaN(),
		BitrateDelaySec: math.NaN(),
		FrameSizeBits:   Unset,
	}
}

// IsSet reports whether an integer field carries a value.
func IsSet(v int64) bool { return v != Unset }

// IsSetFloat reports whether a float field carries a value.
func IsSetFloat(v float64) bool { return !math.IsNaN(v) }

// HasTkSclk reports whether the reported-later clock is populated.
func (s Sample) HasTkSclk() bool {
	return s.TkSclkCoarse >= 0 && s.TkSclkFine >= 0
}

// HasSclk reports whether the sample's own clock is populated.
func (s Sample) HasSclk() bool {
	return s.SclkCoarse >= 0 && s.SclkFine >= 0
}

// ErtLabel returns the string form of the ERT, deriving it when the source
// did not provide one.
func (s Sample) ErtLabel() string {
	if s.ErtStr != "" {
		return s.ErtStr
	}
	if s.Ert.IsZero() {
		return "<no ERT>"
	}
	return s.Ert.UTC().Format(ErtLayout)
}

// ErtLayout is the canonical ERT string layout (day-of-year form).
const ErtLayout = "2006-002T15:04:05.000000"

// Window is an ordered (ascending ERT) group of samples evaluated together.
type Window []Sample

// TargetIndex returns the index of the target sample, conventionally the
// middle element.
func (w Window) TargetIndex() int { return len(w) / 2 }

// Target returns the target sample. It panics on an empty window.
func (w Window) Target() Sample { return w[w.TargetIndex()] }

// Clone returns an independent copy of the window.
func (w Window) Clone() Window {
	return append(Window(nil), w...)
}

// SortByErt orders the window by ascending ERT, keeping source order for ties.
func (w Window) SortByErt() {
	sort.SliceStable(w, func(i, j int) bool {
		return w[i].Ert.Before(w[j].Ert)
	})
}
