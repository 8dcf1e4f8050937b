package ephem

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

const tleLineLength = 69

// Ephemeris yields spacecraft positions.
type Ephemeris interface {
	// PositionECEF returns the spacecraft position at t, ECEF kilometres.
	PositionECEF(t time.Time) (Vec3, error)
}

// SGP4Ephemeris propagates a two-line element set with SGP4.
type SGP4Ephemeris struct {
	sat satellite.Satellite
}

// NewSGP4Ephemeris parses a TLE. Lines are checked for length, line number
// and checksum before they reach the propagator.
func NewSGP4Ephemeris(line1, line2 string) (*SGP4Ephemeris, error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if err := checkTLELine(line1, '1'); err != nil {
		return nil, err
	}
	if err := checkTLELine(line2, '2'); err != nil {
		return nil, err
	}
	return &SGP4Ephemeris{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}, nil
}

func checkTLELine(line string, number byte) error {
	if len(line) != tleLineLength {
		return fmt.Errorf("TLE line %c has %d characters, want %d", number, len(line), tleLineLength)
	}
	if line[0] != number {
		return fmt.Errorf("TLE line %c starts with %q", number, line[0])
	}
	sum := 0
	for i := 0; i < tleLineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	last := line[tleLineLength-1]
	if last < '0' || last > '9' || int(last-'0') != sum%10 {
		return fmt.Errorf("TLE line %c checksum %c does not match computed %d", number, last, sum%10)
	}
	return nil
}

// PositionECEF propagates to the whole second at or before t and advances
// the remaining fraction along the propagated velocity.
func (e *SGP4Ephemeris) PositionECEF(t time.Time) (Vec3, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	frac := t.Sub(whole).Seconds()

	year, month, day := whole.Date()
	hour, min, sec := whole.Clock()

	posECI, velECI := satellite.Propagate(e.sat, year, int(month), day, hour, min, sec)
	pos := Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}.
		Add(Vec3{X: velECI.X, Y: velECI.Y, Z: velECI.Z}.Scale(frac))
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) || pos.Norm() == 0 {
		return Vec3{}, fmt.Errorf("SGP4 propagation failed at %s", t.Format(time.RFC3339Nano))
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec) + frac/86400.0
	gmst := satellite.ThetaG_JD(jd)
	ecef := satellite.ECIToECEF(satellite.Vector3{X: pos.X, Y: pos.Y, Z: pos.Z}, gmst)
	return Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z}, nil
}
