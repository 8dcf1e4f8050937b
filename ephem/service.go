package ephem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/clock-correlator/model"
)

// SpeedOfLightKmPerSec is the vacuum speed of light.
const SpeedOfLightKmPerSec = 299792.458

// lightTimeIterations bounds the receive-time light-time solution. Each
// iteration improves a near-Earth solution by several orders of magnitude.
const lightTimeIterations = 4

var (
	// ErrNoEphemeris is returned by OneWayLightTime when no spacecraft
	// ephemeris is configured.
	ErrNoEphemeris = errors.New("no spacecraft ephemeris configured")
	// ErrUnknownStation is returned for station ids the locator does not know.
	ErrUnknownStation = errors.New("unknown ground station")
)

// StationLocator returns ground stations by id.
type StationLocator interface {
	Station(id int64) (model.GroundStation, bool)
}

// Service converts between UTC, TDT and ET, encodes spacecraft clock
// readings and computes one-way light times.
type Service struct {
	fineTickModulus int64
	stations        StationLocator
	ephemeris       Ephemeris

	// minElevationDeg rejects light times computed for a spacecraft below
	// this elevation at the receiving station; NaN disables the check.
	minElevationDeg float64
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithEphemeris sets the spacecraft ephemeris used for light times.
func WithEphemeris(e Ephemeris) ServiceOption {
	return func(s *Service) { s.ephemeris = e }
}

// WithHorizonCheck makes OneWayLightTime fail when the spacecraft sits
// below minDeg elevation at the station.
func WithHorizonCheck(minDeg float64) ServiceOption {
	return func(s *Service) { s.minElevationDeg = minDeg }
}

// NewService constructs a time service for a clock with the given fine tick
// modulus.
func NewService(fineTickModulus int64, stations StationLocator, opts ...ServiceOption) (*Service, error) {
	if fineTickModulus <= 0 {
		return nil, fmt.Errorf("fine tick modulus must be positive, got %d", fineTickModulus)
	}
	s := &Service{
		fineTickModulus: fineTickModulus,
		stations:        stations,
		minElevationDeg: math.NaN(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UTCToET converts a UTC instant to ephemeris time, seconds past J2000.
func (s *Service) UTCToET(t time.Time) (float64, error) {
	tdt, err := UTCToTDT(t)
	if err != nil {
		return 0, err
	}
	return TDTToET(tdt), nil
}

// ETToTDT converts ephemeris time to terrestrial dynamical time.
func (s *Service) ETToTDT(et float64) (float64, error) {
	if math.IsNaN(et) || math.IsInf(et, 0) {
		return 0, fmt.Errorf("ephemeris time %v is not finite", et)
	}
	return ETToTDT(et), nil
}

// EncodeSCLK returns coarse*modulus + fine in ticks.
func (s *Service) EncodeSCLK(coarse, fine int64) (float64, error) {
	if coarse < 0 {
		return 0, fmt.Errorf("coarse clock %d is negative", coarse)
	}
	if fine < 0 || fine >= s.fineTickModulus {
		return 0, fmt.Errorf("fine clock %d outside [0, %d)", fine, s.fineTickModulus)
	}
	if coarse > (math.MaxInt64-fine)/s.fineTickModulus {
		return 0, fmt.Errorf("coarse clock %d overflows the encoded clock", coarse)
	}
	return float64(coarse*s.fineTickModulus + fine), nil
}

// OneWayLightTime solves for the light time of a signal received by the
// station at ert: the spacecraft position is evaluated at the transmit time
// ert - owlt and the solution iterated.
func (s *Service) OneWayLightTime(ctx context.Context, stationID int64, ert time.Time) (float64, error) {
	if s.ephemeris == nil {
		return 0, ErrNoEphemeris
	}
	if s.stations == nil {
		return 0, fmt.Errorf("%w %d: no station locator configured", ErrUnknownStation, stationID)
	}
	gs, ok := s.stations.Station(stationID)
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrUnknownStation, stationID)
	}
	const mToKm = 1.0 / 1000.0
	station := Vec3{X: gs.Coordinates.X, Y: gs.Coordinates.Y, Z: gs.Coordinates.Z}.Scale(mToKm)

	var (
		owlt float64
		sc   Vec3
	)
	for i := 0; i < lightTimeIterations; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		tx := ert.Add(-time.Duration(owlt * float64(time.Second)))
		pos, err := s.ephemeris.PositionECEF(tx)
		if err != nil {
			return 0, err
		}
		sc = pos
		owlt = sc.DistanceTo(station) / SpeedOfLightKmPerSec
	}

	if !math.IsNaN(s.minElevationDeg) {
		if el := ElevationDegrees(station, sc); el < s.minElevationDeg {
			return 0, fmt.Errorf("spacecraft elevation %.2f° at station %d (%s) is below %.2f°",
				el, gs.ID, gs.Name, s.minElevationDeg)
		}
	}
	return owlt, nil
}
