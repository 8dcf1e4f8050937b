package core

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/signalsfoundry/clock-correlator/model"
)

const (
	testModulus int64 = 65536
	testPathID  int64 = 14
	// ET runs ahead of the UTC label by TAI-UTC + 32.184 s.
	testETOffset = 69.184
)

var (
	j2000Label = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	testEpoch  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// testSample returns a sample that passes validation and every filter
// configured by testFilterConfig.
func testSample(ert time.Time, coarse, fine int64) model.Sample {
	s := model.NewSample()
	s.Ert = ert
	s.PathID = testPathID
	s.SclkCoarse = coarse
	s.SclkFine = fine
	s.TkSclkCoarse = coarse
	s.TkSclkFine = fine
	s.Vcid = 6
	s.TkVcid = 6
	s.TkVcfc = 100
	s.SuppVcfc = 101
	s.TkMcfc = 255
	s.SuppMcfc = 0
	s.TkDataRateBps = 2e6
	s.FrameSizeBits = 8920
	s.Validity = model.Valid
	return s
}

// secondSamples returns n samples one second apart whose clock tracks ERT.
func secondSamples(start time.Time, coarse int64, n int) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = testSample(start.Add(time.Duration(i)*time.Second), coarse+int64(i), 0)
	}
	return out
}

type fakeSource struct {
	mu          sync.Mutex
	samples     []model.Sample
	queries     []TimeRange
	connects    int
	disconnects int
	err         error
}

func newFakeSource(samples ...model.Sample) *fakeSource {
	return &fakeSource{samples: append([]model.Sample(nil), samples...)}
}

func (f *fakeSource) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeSource) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSource) SamplesInRange(_ context.Context, start, stop time.Time) ([]model.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, TimeRange{Start: start, Stop: stop})
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Sample
	// Reverse order so callers cannot rely on the source sorting.
	for i := len(f.samples) - 1; i >= 0; i-- {
		s := f.samples[i]
		if !s.Ert.Before(start) && s.Ert.Before(stop) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeTimes struct {
	owlt    float64
	owltErr error
	encErr  error
}

func (f *fakeTimes) UTCToET(t time.Time) (float64, error) {
	return t.Sub(j2000Label).Seconds() + testETOffset, nil
}

func (f *fakeTimes) ETToTDT(et float64) (float64, error) { return et, nil }

func (f *fakeTimes) EncodeSCLK(coarse, fine int64) (float64, error) {
	if f.encErr != nil {
		return 0, f.encErr
	}
	return float64(coarse*testModulus + fine), nil
}

func (f *fakeTimes) OneWayLightTime(context.Context, int64, time.Time) (float64, error) {
	return f.owlt, f.owltErr
}

type stationMap map[int64]model.GroundStation

func (m stationMap) StationForPath(pathID int64) (model.GroundStation, bool) {
	gs, ok := m[pathID]
	return gs, ok
}

func testStations() stationMap {
	return stationMap{testPathID: {ID: 14, Name: "DSS-14", PathIDs: []int64{testPathID}}}
}

// fakeHistory is an in-memory HistoryStore.
type fakeHistory struct {
	mu      sync.Mutex
	records []model.HistoryRecord
	commits int
}

func newFakeHistory(records ...model.HistoryRecord) *fakeHistory {
	h := &fakeHistory{}
	for i, r := range records {
		r.Seq = int64(i + 1)
		h.records = append(h.records, r)
	}
	return h
}

func seedRecord() model.HistoryRecord {
	return model.HistoryRecord{ClockChangeRate: "1", RateMode: model.RateModeAssigned}
}

func (h *fakeHistory) Tail(context.Context) (model.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		return model.HistoryRecord{}, ErrEmptyHistory
	}
	return h.records[len(h.records)-1], nil
}

func (h *fakeHistory) Count(context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records), nil
}

func (h *fakeHistory) RecordAtOrBefore(_ context.Context, tdtG, minLookBackHours float64) (model.HistoryRecord, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	limit := tdtG - minLookBackHours*3600
	for i := len(h.records) - 1; i >= 0; i-- {
		r := h.records[i]
		if r.IsSeedSentinel() {
			continue
		}
		if r.TdtG <= limit {
			return r, true, nil
		}
	}
	return model.HistoryRecord{}, false, nil
}

func (h *fakeHistory) Commit(_ context.Context, c Commit) (model.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tail := h.records[len(h.records)-1]
	target := model.Target{TdtG: c.Record.TdtG, EncodedSclk: c.Record.EncodedSclk}
	if err := CheckMonotonic(target, tail); err != nil {
		return model.HistoryRecord{}, err
	}
	if c.TailRate != "" {
		h.records[len(h.records)-1].ClockChangeRate = c.TailRate
	}
	rec := c.Record
	rec.Seq = tail.Seq + 1
	h.records = append(h.records, rec)
	h.commits++
	return rec, nil
}

func (h *fakeHistory) snapshot() []model.HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.HistoryRecord(nil), h.records...)
}

type countingRecorder struct {
	mu         sync.Mutex
	outcomes   []string
	rejections map[string]int
	samples    int
	lastRate   float64
}

func (r *countingRecorder) TelemetryQueried(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += n
}

func (r *countingRecorder) WindowRejected(filter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejections == nil {
		r.rejections = map[string]int{}
	}
	r.rejections[filter]++
}

func (r *countingRecorder) AttemptFinished(outcome string, _ time.Duration, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.lastRate = rate
}

func testFilterConfig(order ...string) FilterConfig {
	return FilterConfig{
		Order:                  order,
		FineTickModulus:        testModulus,
		VcfcRollover:           DefaultVcfcRollover,
		VcfcOffset:             1,
		McfcRollover:           DefaultMcfcRollover,
		McfcOffset:             1,
		ErtDeltaToleranceSec:   0.001,
		SclkDeltaToleranceSec:  0.001,
		MinDataRateBps:         1e3,
		MaxDataRateBps:         1e7,
		VcidGroups:             [][]int64{{6, 7}, {10}},
		ContactToleranceMillis: 100,
	}
}

func testConfig(start, stop time.Time) Config {
	return Config{
		FineTickModulus: testModulus,
		Selection: SelectionConfig{
			Kind:          SelectSeparateConsecutive,
			SamplesPerSet: 5,
			Start:         start,
			Stop:          stop,
		},
		Filters: testFilterConfig(FilterValidity),
		Rate: RateConfig{
			Mode:             model.RateModeNoDrift,
			AssignedRate:     decimal.NewFromInt(1),
			LookBackHours:    12,
			MaxLookBackHours: 48,
		},
		Enrich: EnrichConfig{BitrateDelayFrames: 1},
	}
}
