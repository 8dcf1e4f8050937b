package feed

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/clock-correlator/model"
)

// Wire field names. Unset sample fields are omitted.
const (
	fieldStart   = "start"
	fieldStop    = "stop"
	fieldSamples = "samples"

	fieldErt      = "ert"
	fieldErtStr   = "ert_str"
	fieldSuppErt  = "supp_ert"
	fieldRate     = "tk_data_rate_bps"
	fieldDelay    = "bitrate_delay_sec"
	fieldValidity = "validity"
)

// maxExactInt is the largest integer a protobuf number value carries
// exactly.
const maxExactInt = 1 << 53

type intField struct {
	name string
	get  func(*model.Sample) *int64
}

var intFields = []intField{
	{"path_id", func(s *model.Sample) *int64 { return &s.PathID }},
	{"sclk_coarse", func(s *model.Sample) *int64 { return &s.SclkCoarse }},
	{"sclk_fine", func(s *model.Sample) *int64 { return &s.SclkFine }},
	{"tk_sclk_coarse", func(s *model.Sample) *int64 { return &s.TkSclkCoarse }},
	{"tk_sclk_fine", func(s *model.Sample) *int64 { return &s.TkSclkFine }},
	{"vcid", func(s *model.Sample) *int64 { return &s.Vcid }},
	{"vcfc", func(s *model.Sample) *int64 { return &s.Vcfc }},
	{"mcfc", func(s *model.Sample) *int64 { return &s.Mcfc }},
	{"tk_vcid", func(s *model.Sample) *int64 { return &s.TkVcid }},
	{"tk_vcfc", func(s *model.Sample) *int64 { return &s.TkVcfc }},
	{"tk_mcfc", func(s *model.Sample) *int64 { return &s.TkMcfc }},
	{"supp_vcid", func(s *model.Sample) *int64 { return &s.SuppVcid }},
	{"supp_vcfc", func(s *model.Sample) *int64 { return &s.SuppVcfc }},
	{"supp_mcfc", func(s *model.Sample) *int64 { return &s.SuppMcfc }},
	{"frame_size_bits", func(s *model.Sample) *int64 { return &s.FrameSizeBits }},
}

func encodeRange(start, stop time.Time) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStart: structpb.NewStringValue(start.UTC().Format(time.RFC3339Nano)),
		fieldStop:  structpb.NewStringValue(stop.UTC().Format(time.RFC3339Nano)),
	}}
}

func decodeRange(req *structpb.Struct) (time.Time, time.Time, error) {
	start, err := timeField(req, fieldStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	stop, err := timeField(req, fieldStop)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() || stop.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start and stop are required", ErrInvalidRequest)
	}
	return start, stop, nil
}

func encodeSamples(samples []model.Sample) (*structpb.Struct, error) {
	list := make([]*structpb.Value, 0, len(samples))
	for i := range samples {
		st, err := encodeSample(samples[i])
		if err != nil {
			return nil, fmt.Errorf("encode sample %d: %w", i, err)
		}
		list = append(list, structpb.NewStructValue(st))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSamples: structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}, nil
}

func decodeSamples(resp *structpb.Struct) ([]model.Sample, error) {
	v, ok := resp.GetFields()[fieldSamples]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("field %q is not a list", fieldSamples)
	}
	out := make([]model.Sample, 0, len(list.GetValues()))
	for i, item := range list.GetValues() {
		st := item.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("sample %d is not an object", i)
		}
		smp, err := decodeSample(st)
		if err != nil {
			return nil, fmt.Errorf("decode sample %d: %w", i, err)
		}
		out = append(out, smp)
	}
	return out, nil
}

func encodeSample(s model.Sample) (*structpb.Struct, error) {
	f := make(map[string]*structpb.Value, len(intFields)+6)
	if !s.Ert.IsZero() {
		f[fieldErt] = structpb.NewStringValue(s.Ert.UTC().Format(time.RFC3339Nano))
	}
	if s.ErtStr != "" {
		f[fieldErtStr] = structpb.NewStringValue(s.ErtStr)
	}
	if !s.SuppErt.IsZero() {
		f[fieldSuppErt] = structpb.NewStringValue(s.SuppErt.UTC().Format(time.RFC3339Nano))
	}
	for _, fld := range intFields {
		v := *fld.get(&s)
		if !model.IsSet(v) {
			continue
		}
		if v > maxExactInt || v < -maxExactInt {
			return nil, fmt.Errorf("field %s value %d exceeds the exact number range", fld.name, v)
		}
		f[fld.name] = structpb.NewNumberValue(float64(v))
	}
	if model.IsSetFloat(s.TkDataRateBps) {
		f[fieldRate] = structpb.NewNumberValue(s.TkDataRateBps)
	}
	if model.IsSetFloat(s.BitrateDelaySec) {
		f[fieldDelay] = structpb.NewNumberValue(s.BitrateDelaySec)
	}
	if s.Validity != model.ValidityUnset {
		f[fieldValidity] = structpb.NewStringValue(s.Validity.String())
	}
	return &structpb.Struct{Fields: f}, nil
}

func decodeSample(st *structpb.Struct) (model.Sample, error) {
	s := model.NewSample()
	var err error
	if s.Ert, err = timeField(st, fieldErt); err != nil {
		return model.Sample{}, err
	}
	if s.SuppErt, err = timeField(st, fieldSuppErt); err != nil {
		return model.Sample{}, err
	}
	s.ErtStr = st.GetFields()[fieldErtStr].GetStringValue()

	for _, fld := range intFields {
		v, ok := st.GetFields()[fld.name]
		if !ok {
			continue
		}
		n := v.GetNumberValue()
		if n != math.Trunc(n) || math.Abs(n) > maxExactInt {
			return model.Sample{}, fmt.Errorf("field %s value %v is not an integer", fld.name, n)
		}
		*fld.get(&s) = int64(n)
	}
	if v, ok := st.GetFields()[fieldRate]; ok {
		s.TkDataRateBps = v.GetNumberValue()
	}
	if v, ok := st.GetFields()[fieldDelay]; ok {
		s.BitrateDelaySec = v.GetNumberValue()
	}
	switch st.GetFields()[fieldValidity].GetStringValue() {
	case "":
	case model.Valid.String():
		s.Validity = model.Valid
	case model.Invalid.String():
		s.Validity = model.Invalid
	default:
		return model.Sample{}, fmt.Errorf("unknown validity %q", st.GetFields()[fieldValidity].GetStringValue())
	}
	return s, nil
}

func timeField(st *structpb.Struct, name string) (time.Time, error) {
	v, ok := st.GetFields()[name]
	if !ok {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %s: %v", ErrInvalidRequest, name, err)
	}
	return t.UTC(), nil
}
