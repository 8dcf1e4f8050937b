// Package config loads the correlator configuration: a YAML file with
// MMTC_-prefixed environment overrides applied on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/ephem"
	"github.com/signalsfoundry/clock-correlator/kb"
	"github.com/signalsfoundry/clock-correlator/model"
)

// Telemetry and history backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendFeed   = "feed"
)

// timeLayouts are accepted for every absolute time in the file, most
// specific first. The day-of-year forms match the ERT strings operators
// copy from telemetry listings.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-002T15:04:05.999999999",
	"2006-002T15:04:05",
}

// Config is the on-disk configuration.
type Config struct {
	FineTickModulus int64 `yaml:"fine_tick_modulus" env:"MMTC_FINE_TICK_MODULUS"`

	Log        LogConfig        `yaml:"log"`
	Stations   []StationConfig  `yaml:"stations"`
	Spacecraft SpacecraftConfig `yaml:"spacecraft"`
	Selection  SelectionConfig  `yaml:"selection"`
	Filters    FiltersConfig    `yaml:"filters"`
	Rate       RateConfig       `yaml:"rate"`
	Target     TargetConfig     `yaml:"target"`
	Enrich     EnrichConfig     `yaml:"enrich"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	History    HistoryConfig    `yaml:"history"`
	Serve      ServeConfig      `yaml:"serve"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"MMTC_LOG_LEVEL"`
	Format string `yaml:"format" env:"MMTC_LOG_FORMAT"`
}

// StationConfig describes one ground station; ECEF is in metres.
type StationConfig struct {
	ID      int64      `yaml:"id"`
	Name    string     `yaml:"name"`
	PathIDs []int64    `yaml:"path_ids"`
	ECEF    [3]float64 `yaml:"ecef"`
}

type SpacecraftConfig struct {
	TLELine1 string `yaml:"tle_line1" env:"MMTC_TLE_LINE1"`
	TLELine2 string `yaml:"tle_line2" env:"MMTC_TLE_LINE2"`

	InternalDelaySec float64 `yaml:"internal_delay_sec" env:"MMTC_SPACECRAFT_INTERNAL_DELAY_SEC"`

	// MinElevationDeg, when set, rejects light-time requests for stations
	// that could not see the spacecraft.
	MinElevationDeg *float64 `yaml:"min_elevation_deg"`
}

type SelectionConfig struct {
	Kind          string `yaml:"kind"            env:"MMTC_SELECTION_KIND"`
	SamplesPerSet int    `yaml:"samples_per_set" env:"MMTC_SAMPLES_PER_SET"`

	Start string `yaml:"start" env:"MMTC_SELECTION_START"`
	Stop  string `yaml:"stop"  env:"MMTC_SELECTION_STOP"`

	ExactTime          string        `yaml:"exact_time"          env:"MMTC_SELECTION_EXACT_TIME"`
	SupplementalMargin time.Duration `yaml:"supplemental_margin" env:"MMTC_SELECTION_SUPPLEMENTAL_MARGIN"`

	QueryWidth     time.Duration `yaml:"query_width"     env:"MMTC_SAMPLING_QUERY_WIDTH"`
	SamplingPeriod time.Duration `yaml:"sampling_period" env:"MMTC_SAMPLING_PERIOD"`
	ReadAhead      int           `yaml:"read_ahead"      env:"MMTC_SAMPLING_READ_AHEAD"`
}

type FiltersConfig struct {
	Order []string `yaml:"order" env:"MMTC_FILTERS" envSeparator:","`

	VcfcRollover int64 `yaml:"vcfc_rollover"`
	VcfcOffset   int64 `yaml:"vcfc_offset"`
	McfcRollover int64 `yaml:"mcfc_rollover"`
	McfcOffset   int64 `yaml:"mcfc_offset"`

	ErtDeltaToleranceSec  float64 `yaml:"ert_delta_tolerance_sec"`
	SclkDeltaToleranceSec float64 `yaml:"sclk_delta_tolerance_sec"`

	MinDataRateBps float64 `yaml:"min_data_rate_bps"`
	MaxDataRateBps float64 `yaml:"max_data_rate_bps"`

	VcidGroups [][]int64 `yaml:"vcid_groups"`

	ContactToleranceMillis float64 `yaml:"contact_tolerance_ms"`
}

type RateConfig struct {
	Mode             string  `yaml:"mode"               env:"MMTC_RATE_MODE"`
	AssignedRate     string  `yaml:"assigned_rate"      env:"MMTC_RATE_ASSIGNED"`
	LookBackHours    float64 `yaml:"lookback_hours"     env:"MMTC_RATE_LOOKBACK_HOURS"`
	MaxLookBackHours float64 `yaml:"max_lookback_hours" env:"MMTC_RATE_MAX_LOOKBACK_HOURS"`
}

type TargetConfig struct {
	TestMode     bool     `yaml:"test_mode" env:"MMTC_TEST_MODE"`
	FixedOWLTSec *float64 `yaml:"fixed_owlt_sec"`
}

type EnrichConfig struct {
	BitrateDelayFrames float64 `yaml:"bitrate_delay_frames"`
}

type TelemetryConfig struct {
	Backend      string        `yaml:"backend"       env:"MMTC_TELEMETRY_BACKEND"`
	Path         string        `yaml:"path"          env:"MMTC_TELEMETRY_PATH"`
	Address      string        `yaml:"address"       env:"MMTC_TELEMETRY_ADDRESS"`
	QueryTimeout time.Duration `yaml:"query_timeout" env:"MMTC_TELEMETRY_QUERY_TIMEOUT"`
}

type HistoryConfig struct {
	Backend string `yaml:"backend" env:"MMTC_HISTORY_BACKEND"`
	Path    string `yaml:"path"    env:"MMTC_HISTORY_PATH"`
}

// ServeConfig drives periodic correlation. Span is the look-back each run
// selects telemetry from.
type ServeConfig struct {
	Interval    time.Duration `yaml:"interval"     env:"MMTC_SERVE_INTERVAL"`
	Span        time.Duration `yaml:"span"         env:"MMTC_SERVE_SPAN"`
	MetricsAddr string        `yaml:"metrics_addr" env:"MMTC_METRICS_ADDR"`
	FeedAddr    string        `yaml:"feed_addr"    env:"MMTC_FEED_ADDR"`
}

// Default returns a configuration matching core.DefaultConfig with
// in-memory backends.
func Default() Config {
	d := core.DefaultConfig()
	return Config{
		FineTickModulus: d.FineTickModulus,
		Log:             LogConfig{Level: "info", Format: "json"},
		Selection: SelectionConfig{
			Kind:          string(d.Selection.Kind),
			SamplesPerSet: d.Selection.SamplesPerSet,
		},
		Filters: FiltersConfig{
			Order:                 append([]string(nil), d.Filters.Order...),
			VcfcRollover:          d.Filters.VcfcRollover,
			VcfcOffset:            d.Filters.VcfcOffset,
			McfcRollover:          d.Filters.McfcRollover,
			McfcOffset:            d.Filters.McfcOffset,
			ErtDeltaToleranceSec:  d.Filters.ErtDeltaToleranceSec,
			SclkDeltaToleranceSec: d.Filters.SclkDeltaToleranceSec,
		},
		Rate: RateConfig{
			Mode:             string(d.Rate.Mode),
			AssignedRate:     d.Rate.AssignedRate.String(),
			LookBackHours:    d.Rate.LookBackHours,
			MaxLookBackHours: d.Rate.MaxLookBackHours,
		},
		Enrich:    EnrichConfig{BitrateDelayFrames: d.Enrich.BitrateDelayFrames},
		Telemetry: TelemetryConfig{Backend: BackendMemory},
		History:   HistoryConfig{Backend: BackendMemory},
		Serve:     ServeConfig{Interval: time.Hour, Span: 24 * time.Hour},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.FineTickModulus <= 0 {
		errs = append(errs, fmt.Errorf("fine_tick_modulus must be positive, got %d", c.FineTickModulus))
	}
	if len(c.Stations) == 0 {
		errs = append(errs, errors.New("at least one station is required"))
	}
	for i, st := range c.Stations {
		if len(st.PathIDs) == 0 {
			errs = append(errs, fmt.Errorf("station %d (index %d) has no path_ids", st.ID, i))
		}
	}
	if (c.Spacecraft.TLELine1 == "") != (c.Spacecraft.TLELine2 == "") {
		errs = append(errs, errors.New("spacecraft tle_line1 and tle_line2 must be set together"))
	}
	if !c.Target.TestMode && c.Spacecraft.TLELine1 == "" {
		errs = append(errs, errors.New("a spacecraft TLE is required outside test mode"))
	}
	if c.Target.FixedOWLTSec != nil && !c.Target.TestMode {
		errs = append(errs, errors.New("target fixed_owlt_sec is only permitted in test mode"))
	}
	for name, v := range map[string]string{
		"selection start":      c.Selection.Start,
		"selection stop":       c.Selection.Stop,
		"selection exact_time": c.Selection.ExactTime,
	} {
		if _, err := ParseTime(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if !model.RateMode(c.Rate.Mode).Valid() {
		errs = append(errs, fmt.Errorf("unknown rate mode %q", c.Rate.Mode))
	}
	if _, err := decimal.NewFromString(c.Rate.AssignedRate); err != nil {
		errs = append(errs, fmt.Errorf("rate assigned_rate %q: %w", c.Rate.AssignedRate, err))
	}
	if _, err := core.NewPipeline(c.filterConfig()); err != nil {
		errs = append(errs, err)
	}
	switch c.Telemetry.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Telemetry.Path == "" {
			errs = append(errs, errors.New("telemetry path is required for the sqlite backend"))
		}
	case BackendFeed:
		if c.Telemetry.Address == "" {
			errs = append(errs, errors.New("telemetry address is required for the feed backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown telemetry backend %q", c.Telemetry.Backend))
	}
	switch c.History.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.History.Path == "" {
			errs = append(errs, errors.New("history path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history backend %q", c.History.Backend))
	}
	if c.Serve.Interval < 0 || c.Serve.Span < 0 {
		errs = append(errs, errors.New("serve interval and span must not be negative"))
	}
	return errors.Join(errs...)
}

// ToCore maps the file onto a correlator configuration. Selection bounds
// left empty stay zero; periodic runs fill them per attempt.
func (c Config) ToCore() (core.Config, error) {
	start, err := ParseTime(c.Selection.Start)
	if err != nil {
		return core.Config{}, fmt.Errorf("selection start: %w", err)
	}
	stop, err := ParseTime(c.Selection.Stop)
	if err != nil {
		return core.Config{}, fmt.Errorf("selection stop: %w", err)
	}
	exact, err := ParseTime(c.Selection.ExactTime)
	if err != nil {
		return core.Config{}, fmt.Errorf("selection exact_time: %w", err)
	}
	assigned, err := decimal.NewFromString(c.Rate.AssignedRate)
	if err != nil {
		return core.Config{}, fmt.Errorf("rate assigned_rate: %w", err)
	}

	out := core.Config{
		FineTickModulus: c.FineTickModulus,
		Selection: core.SelectionConfig{
			Kind:               core.SelectionKind(c.Selection.Kind),
			SamplesPerSet:      c.Selection.SamplesPerSet,
			Start:              start,
			Stop:               stop,
			ExactTime:          exact,
			SupplementalMargin: c.Selection.SupplementalMargin,
			QueryWidth:         c.Selection.QueryWidth,
			SamplingPeriod:     c.Selection.SamplingPeriod,
			ReadAhead:          c.Selection.ReadAhead,
		},
		Filters: c.filterConfig(),
		Rate: core.RateConfig{
			Mode:             model.RateMode(c.Rate.Mode),
			AssignedRate:     assigned,
			LookBackHours:    c.Rate.LookBackHours,
			MaxLookBackHours: c.Rate.MaxLookBackHours,
		},
		Target: core.TargetConfig{
			TestMode:                   c.Target.TestMode,
			SpacecraftInternalDelaySec: c.Spacecraft.InternalDelaySec,
		},
		Enrich: core.EnrichConfig{BitrateDelayFrames: c.Enrich.BitrateDelayFrames},
	}
	if c.Target.FixedOWLTSec != nil {
		v := *c.Target.FixedOWLTSec
		out.Target.FixedOWLT = &v
	}
	return out, nil
}

func (c Config) filterConfig() core.FilterConfig {
	groups := make([][]int64, 0, len(c.Filters.VcidGroups))
	for _, g := range c.Filters.VcidGroups {
		groups = append(groups, append([]int64(nil), g...))
	}
	order := make([]string, 0, len(c.Filters.Order))
	for _, name := range c.Filters.Order {
		if name = strings.TrimSpace(name); name != "" {
			order = append(order, name)
		}
	}
	return core.FilterConfig{
		Order:                  order,
		FineTickModulus:        c.FineTickModulus,
		VcfcRollover:           c.Filters.VcfcRollover,
		VcfcOffset:             c.Filters.VcfcOffset,
		McfcRollover:           c.Filters.McfcRollover,
		McfcOffset:             c.Filters.McfcOffset,
		ErtDeltaToleranceSec:   c.Filters.ErtDeltaToleranceSec,
		SclkDeltaToleranceSec:  c.Filters.SclkDeltaToleranceSec,
		MinDataRateBps:         c.Filters.MinDataRateBps,
		MaxDataRateBps:         c.Filters.MaxDataRateBps,
		VcidGroups:             groups,
		ContactToleranceMillis: c.Filters.ContactToleranceMillis,
	}
}

// KnowledgeBase builds the station catalogue.
func (c Config) KnowledgeBase() (*kb.KnowledgeBase, error) {
	stations := kb.NewKnowledgeBase()
	for _, st := range c.Stations {
		gs := model.GroundStation{
			ID:          st.ID,
			Name:        st.Name,
			PathIDs:     st.PathIDs,
			Coordinates: model.Motion{X: st.ECEF[0], Y: st.ECEF[1], Z: st.ECEF[2]},
		}
		if err := stations.AddStation(gs); err != nil {
			return nil, fmt.Errorf("station %d: %w", st.ID, err)
		}
	}
	return stations, nil
}

// TimeService builds the timescale and light-time service over stations.
func (c Config) TimeService(stations ephem.StationLocator) (*ephem.Service, error) {
	var opts []ephem.ServiceOption
	if c.Spacecraft.TLELine1 != "" {
		eph, err := ephem.NewSGP4Ephemeris(c.Spacecraft.TLELine1, c.Spacecraft.TLELine2)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ephem.WithEphemeris(eph))
	}
	if c.Spacecraft.MinElevationDeg != nil {
		opts = append(opts, ephem.WithHorizonCheck(*c.Spacecraft.MinElevationDeg))
	}
	return ephem.NewService(c.FineTickModulus, stations, opts...)
}

// ParseTime accepts RFC 3339 and day-of-year times. An empty string is the
// zero time.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", v)
}
