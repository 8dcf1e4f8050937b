package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/clock-correlator/model"
)

func targetWindow(coarse, fine int64) model.Window {
	w := model.Window(secondSamples(testEpoch.Add(-2*time.Second), coarse-2, 5))
	for i := range w {
		w[i].BitrateDelaySec = 0.00446
	}
	w[2].TkSclkFine = fine
	return w
}

func TestTargetBuild(t *testing.T) {
	owlt := 0.25
	cfg := TargetConfig{TestMode: true, FixedOWLT: &owlt, SpacecraftInternalDelaySec: 0.001}
	b := NewTargetBuilder(testModulus, cfg, &fakeTimes{owlt: 99}, testStations(), nil)

	w := targetWindow(375962471, 4003)
	tgt, err := b.Build(context.Background(), w)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if tgt.SclkCoarse() != 375962471 || tgt.EncodedSclk != float64(375962471*testModulus) {
		t.Fatalf("encoded SCLK = %v for coarse %d", tgt.EncodedSclk, tgt.SclkCoarse())
	}
	if want := 4003.5 / 65536; math.Abs(tgt.TfOffset-want) > 1e-15 {
		t.Fatalf("TF offset = %v, want %v", tgt.TfOffset, want)
	}
	etErt := testEpoch.Sub(j2000Label).Seconds() + testETOffset
	wantEtG := etErt - 0.00446 - 0.25 - 0.001 - 4003.5/65536
	if math.Abs(tgt.EtG-wantEtG) > 1e-6 || math.Abs(tgt.TdtG-wantEtG) > 1e-6 {
		t.Fatalf("EtG = %.9f, TdtG = %.9f, want %.9f", tgt.EtG, tgt.TdtG, wantEtG)
	}
	if tgt.OWLT != 0.25 || tgt.StationID != 14 || !tgt.StationErt.Equal(testEpoch) {
		t.Fatalf("unexpected target metadata %+v", tgt)
	}
	if len(tgt.Window) != 5 {
		t.Fatalf("target should keep its window")
	}
	w[0].TkSclkCoarse = 1
	if tgt.Window[0].TkSclkCoarse == 1 {
		t.Fatalf("target window must not alias the input")
	}
}

func TestTargetBuildUsesComputedLightTime(t *testing.T) {
	b := NewTargetBuilder(testModulus, TargetConfig{}, &fakeTimes{owlt: 0.0123}, testStations(), nil)
	tgt, err := b.Build(context.Background(), targetWindow(375962471, 0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tgt.OWLT != 0.0123 {
		t.Fatalf("OWLT = %v", tgt.OWLT)
	}
}

func TestTargetBuildNegativeLightTime(t *testing.T) {
	neg := -0.5
	inTest := NewTargetBuilder(testModulus, TargetConfig{TestMode: true, FixedOWLT: &neg}, &fakeTimes{}, testStations(), nil)
	tgt, err := inTest.Build(context.Background(), targetWindow(375962471, 0))
	if err != nil {
		t.Fatalf("negative light time should be allowed in test mode: %v", err)
	}
	if tgt.OWLT != -0.5 {
		t.Fatalf("OWLT = %v", tgt.OWLT)
	}

	operational := NewTargetBuilder(testModulus, TargetConfig{}, &fakeTimes{owlt: -0.1}, testStations(), nil)
	if _, err := operational.Build(context.Background(), targetWindow(375962471, 0)); !errors.Is(err, ErrTimeConversion) {
		t.Fatalf("expected time conversion error outside test mode, got %v", err)
	}
}

func TestTargetBuildErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("ephemeris gap")

	tests := []struct {
		name  string
		times *fakeTimes
		w     model.Window
		want  error
	}{
		{"coarse below one", &fakeTimes{}, targetWindow(2, 0), ErrValidation},
		{"light time failure", &fakeTimes{owltErr: boom}, targetWindow(375962471, 0), boom},
		{"encode failure", &fakeTimes{encErr: boom}, targetWindow(375962471, 0), ErrTimeConversion},
		{"empty window", &fakeTimes{}, nil, ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.name == "coarse below one" {
				tc.w[2].TkSclkCoarse = 0
			}
			b := NewTargetBuilder(testModulus, TargetConfig{}, tc.times, testStations(), nil)
			if _, err := b.Build(ctx, tc.w); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTargetBuildUnknownPath(t *testing.T) {
	w := targetWindow(375962471, 0)
	w[2].PathID = 99
	b := NewTargetBuilder(testModulus, TargetConfig{}, &fakeTimes{}, testStations(), nil)
	if _, err := b.Build(context.Background(), w); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
