package core

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/model"
)

// TargetBuilder derives the correlation target from an accepted window.
type TargetBuilder struct {
	fineTickModulus int64
	cfg             TargetConfig
	times           TimeService
	stations        StationResolver
	log             logging.Logger
}

// NewTargetBuilder constructs a builder. log may be nil.
func NewTargetBuilder(fineTickModulus int64, cfg TargetConfig, times TimeService, stations StationResolver, log logging.Logger) *TargetBuilder {
	if log == nil {
		log = logging.Noop()
	}
	return &TargetBuilder{
		fineTickModulus: fineTickModulus,
		cfg:             cfg,
		times:           times,
		stations:        stations,
		log:             log,
	}
}

// Build derives the target from the window's middle sample:
//
//	TDT(G) = TDT( ET(ERT) - bitrate delay - OWLT - spacecraft delay - TF offset )
//
// The encoded clock is taken from the reported coarse clock with the fine
// part zeroed; the fine part enters through the TF offset instead.
func (b *TargetBuilder) Build(ctx context.Context, w model.Window) (t model.Target, err error) {
	if len(w) == 0 {
		return model.Target{}, &ValidationError{Problems: []string{"cannot build a correlation target from an empty window"}}
	}
	if b.fineTickModulus <= 0 {
		return model.Target{}, configErrorf("fine tick modulus must be positive, got %d", b.fineTickModulus)
	}
	ctx, span := startSpan(ctx, "target.build")
	defer func() { endSpan(span, err) }()

	sample := w.Target()

	station, ok := b.stations.StationForPath(sample.PathID)
	if !ok {
		return model.Target{}, configErrorf("no ground station configured for path id %d (target ERT %s)",
			sample.PathID, sample.ErtLabel())
	}

	owlt, err := b.lightTime(ctx, station.ID, sample)
	if err != nil {
		return model.Target{}, err
	}

	if sample.TkSclkCoarse < 1 {
		return model.Target{}, &ValidationError{Problems: []string{
			fmt.Sprintf("target sample (ERT %s) coarse SCLK %d is below 1", sample.ErtLabel(), sample.TkSclkCoarse),
		}}
	}
	encoded, err := b.times.EncodeSCLK(sample.TkSclkCoarse, 0)
	if err != nil {
		return model.Target{}, timeConversion("encode SCLK", err)
	}
	if encoded < 1 {
		return model.Target{}, &ValidationError{Problems: []string{
			fmt.Sprintf("target sample (ERT %s) encoded SCLK %.0f is below 1", sample.ErtLabel(), encoded),
		}}
	}

	tfOffset := (float64(sample.TkSclkFine) + 0.5) / float64(b.fineTickModulus)

	etErt, err := b.times.UTCToET(sample.Ert)
	if err != nil {
		return model.Target{}, timeConversion("UTC to ET", err)
	}
	etG := etErt - sample.BitrateDelaySec - owlt - b.cfg.SpacecraftInternalDelaySec - tfOffset
	tdtG, err := b.times.ETToTDT(etG)
	if err != nil {
		return model.Target{}, timeConversion("ET to TDT", err)
	}
	if tdtG < 1 {
		return model.Target{}, &ValidationError{Problems: []string{
			fmt.Sprintf("target sample (ERT %s) ground time TDT(G) %.6f is below 1", sample.ErtLabel(), tdtG),
		}}
	}

	span.SetAttributes(
		attribute.Int64("station_id", station.ID),
		attribute.Float64("owlt", owlt),
		attribute.Float64("tdt_g", tdtG),
	)

	return model.Target{
		Sample:      sample,
		Window:      w.Clone(),
		StationID:   station.ID,
		StationErt:  sample.Ert,
		OWLT:        owlt,
		EncodedSclk: encoded,
		EtG:         etG,
		TfOffset:    tfOffset,
		TdtG:        tdtG,
	}, nil
}

func (b *TargetBuilder) lightTime(ctx context.Context, stationID int64, sample model.Sample) (float64, error) {
	var owlt float64
	if b.cfg.TestMode && b.cfg.FixedOWLT != nil {
		owlt = *b.cfg.FixedOWLT
	} else {
		v, err := b.times.OneWayLightTime(ctx, stationID, sample.Ert)
		if err != nil {
			return 0, timeConversion("one-way light time", err)
		}
		owlt = v
	}
	if owlt < 0 {
		if !b.cfg.TestMode {
			return 0, &TimeConversionError{
				Op:  "one-way light time",
				Err: fmt.Errorf("negative light time %.9f s for station %d outside test mode", owlt, stationID),
			}
		}
		b.log.Warn(ctx, "using negative one-way light time in test mode",
			logging.Float64("owlt", owlt),
			logging.Int64("station_id", stationID),
		)
	}
	return owlt, nil
}
