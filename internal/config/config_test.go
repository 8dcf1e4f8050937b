package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/model"
)

const sampleYAML = `
fine_tick_modulus: 65536
log:
  level: debug
  format: text
stations:
  - id: 14
    name: DSS-14
    path_ids: [14, 1014]
    ecef: [-2353621.22, -4641341.52, 3677052.32]
spacecraft:
  tle_line1: "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
  tle_line2: "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
  internal_delay_sec: 0.0012
selection:
  kind: sliding
  samples_per_set: 5
  start: 2024-03-01T00:00:00Z
  stop: "2024-062T12:00:00"
filters:
  order: [validity, vcfc_continuity, ert_delta]
  vcfc_rollover: 16777216
  vcfc_offset: 1
  ert_delta_tolerance_sec: 0.002
rate:
  mode: interpolated
  assigned_rate: "1"
  lookback_hours: 12
  max_lookback_hours: 72
telemetry:
  backend: sqlite
  path: /var/lib/mmtc/telemetry.db
  query_timeout: 30s
history:
  backend: sqlite
  path: /var/lib/mmtc/history.db
serve:
  interval: 30m
  span: 6h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mmtc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("log config not read: %+v", cfg.Log)
	}
	if cfg.Telemetry.QueryTimeout != 30*time.Second || cfg.Serve.Span != 6*time.Hour {
		t.Fatalf("durations not read: %+v %+v", cfg.Telemetry, cfg.Serve)
	}
	// Unset keys keep their defaults.
	if cfg.Filters.McfcRollover != core.DefaultMcfcRollover {
		t.Fatalf("expected default mcfc rollover, got %d", cfg.Filters.McfcRollover)
	}

	cc, err := cfg.ToCore()
	if err != nil {
		t.Fatalf("ToCore: %v", err)
	}
	if cc.Selection.Kind != core.SelectSliding || cc.Selection.SamplesPerSet != 5 {
		t.Fatalf("selection not mapped: %+v", cc.Selection)
	}
	wantStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	wantStop := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	if !cc.Selection.Start.Equal(wantStart) || !cc.Selection.Stop.Equal(wantStop) {
		t.Fatalf("selection bounds = [%s, %s), want [%s, %s)", cc.Selection.Start, cc.Selection.Stop, wantStart, wantStop)
	}
	if cc.Rate.Mode != model.RateModeInterpolated || cc.Rate.MaxLookBackHours != 72 {
		t.Fatalf("rate not mapped: %+v", cc.Rate)
	}
	if cc.Filters.FineTickModulus != 65536 || cc.Target.SpacecraftInternalDelaySec != 0.0012 {
		t.Fatalf("derived fields not mapped: %+v %+v", cc.Filters, cc.Target)
	}
	if err := cc.Validate(); err != nil {
		t.Fatalf("mapped config should validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MMTC_RATE_MODE", "no-drift")
	t.Setenv("MMTC_FILTERS", "validity, contact")
	t.Setenv("MMTC_HISTORY_PATH", "/tmp/override.db")
	t.Setenv("MMTC_SERVE_INTERVAL", "5m")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rate.Mode != "no-drift" || cfg.History.Path != "/tmp/override.db" || cfg.Serve.Interval != 5*time.Minute {
		t.Fatalf("env overrides not applied: %+v %+v %+v", cfg.Rate, cfg.History, cfg.Serve)
	}
	cc, err := cfg.ToCore()
	if err != nil {
		t.Fatalf("ToCore: %v", err)
	}
	if got := strings.Join(cc.Filters.Order, ","); got != "validity,contact" {
		t.Fatalf("filter order = %q", got)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sampleYAML+"\nbogus_key: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "bogus_key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.FineTickModulus = 0
	cfg.Rate.Mode = "sideways"
	cfg.Filters.Order = []string{"no_such_filter"}
	cfg.Telemetry.Backend = BackendFeed
	cfg.History.Backend = "tape"
	cfg.Selection.Start = "yesterday"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		"fine_tick_modulus",
		"at least one station",
		"TLE is required",
		"unknown rate mode",
		"no_such_filter",
		"telemetry address",
		"unknown history backend",
		"selection start",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error missing %q: %v", want, err)
		}
	}
	if !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("unknown filter should surface a configuration error: %v", err)
	}
}

func TestFixedLightTimeRequiresTestMode(t *testing.T) {
	cfg := Default()
	cfg.Stations = []StationConfig{{ID: 1, PathIDs: []int64{1}}}
	owlt := 0.25
	cfg.Target.FixedOWLTSec = &owlt

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "test mode") {
		t.Fatalf("expected test mode error, got %v", err)
	}

	cfg.Target.TestMode = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test mode config should validate: %v", err)
	}
	cc, err := cfg.ToCore()
	if err != nil {
		t.Fatalf("ToCore: %v", err)
	}
	if cc.Target.FixedOWLT == nil || *cc.Target.FixedOWLT != owlt {
		t.Fatalf("fixed light time not mapped: %+v", cc.Target)
	}
}

func TestKnowledgeBaseAndTimeService(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stations, err := cfg.KnowledgeBase()
	if err != nil {
		t.Fatalf("KnowledgeBase: %v", err)
	}
	gs, ok := stations.StationForPath(1014)
	if !ok || gs.ID != 14 || gs.Coordinates.X != -2353621.22 {
		t.Fatalf("StationForPath(1014) = %+v, %v", gs, ok)
	}

	times, err := cfg.TimeService(stations)
	if err != nil {
		t.Fatalf("TimeService: %v", err)
	}
	encoded, err := times.EncodeSCLK(2, 3)
	if err != nil || encoded != 2*65536+3 {
		t.Fatalf("EncodeSCLK = %v, %v", encoded, err)
	}
}

func TestKnowledgeBaseRejectsSharedPath(t *testing.T) {
	cfg := Default()
	cfg.Stations = []StationConfig{
		{ID: 1, PathIDs: []int64{7}},
		{ID: 2, PathIDs: []int64{7}},
	}
	if _, err := cfg.KnowledgeBase(); err == nil {
		t.Fatalf("expected path conflict error")
	}
}

func TestParseTimeLayouts(t *testing.T) {
	want := time.Date(2024, 3, 1, 6, 30, 0, 500000000, time.UTC)
	for _, in := range []string{"2024-03-01T06:30:00.5Z", "2024-061T06:30:00.5", "2024-03-01T07:30:00.5+01:00"} {
		got, err := ParseTime(in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseTime(%q) = %s, want %s", in, got, want)
		}
	}
	if got, err := ParseTime(""); err != nil || !got.IsZero() {
		t.Fatalf("empty time should be zero, got %s %v", got, err)
	}
}
