package ephem

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TTMinusTAI is the constant offset between terrestrial time and TAI.
const TTMinusTAI = 32.184

// J2000 is the J2000 epoch, 2000-01-01T12:00:00 TT, expressed as a TT
// calendar label. Seconds past J2000 in the TDT and ET scales are measured
// from it.
var J2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// ErrBeforeLeapSecondTable is returned for UTC instants before 1972, when
// the integral-second TAI-UTC relation begins.
var ErrBeforeLeapSecondTable = errors.New("UTC instant precedes the leap second table")

// leapSecond is one entry of the TAI-UTC table: from Effective on,
// TAI - UTC = Offset seconds.
type leapSecond struct {
	Effective time.Time
	Offset    float64
}

func utcDate(y int, m time.Month) time.Time { return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC) }

// leapSeconds lists every TAI-UTC step since 1972.
var leapSeconds = []leapSecond{
	{utcDate(1972, time.January), 10},
	{utcDate(1972, time.July), 11},
	{utcDate(1973, time.January), 12},
	{utcDate(1974, time.January), 13},
	{utcDate(1975, time.January), 14},
	{utcDate(1976, time.January), 15},
	{utcDate(1977, time.January), 16},
	{utcDate(1978, time.January), 17},
	{utcDate(1979, time.January), 18},
	{utcDate(1980, time.January), 19},
	{utcDate(1981, time.July), 20},
	{utcDate(1982, time.July), 21},
	{utcDate(1983, time.July), 22},
	{utcDate(1985, time.July), 23},
	{utcDate(1988, time.January), 24},
	{utcDate(1990, time.January), 25},
	{utcDate(1991, time.January), 26},
	{utcDate(1992, time.July), 27},
	{utcDate(1993, time.July), 28},
	{utcDate(1994, time.July), 29},
	{utcDate(1996, time.January), 30},
	{utcDate(1997, time.July), 31},
	{utcDate(1999, time.January), 32},
	{utcDate(2006, time.January), 33},
	{utcDate(2009, time.January), 34},
	{utcDate(2012, time.July), 35},
	{utcDate(2015, time.July), 36},
	{utcDate(2017, time.January), 37},
}

// TAIMinusUTC returns the accumulated leap seconds in effect at t.
func TAIMinusUTC(t time.Time) (float64, error) {
	t = t.UTC()
	for i := len(leapSeconds) - 1; i >= 0; i-- {
		if !t.Before(leapSeconds[i].Effective) {
			return leapSeconds[i].Offset, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrBeforeLeapSecondTable, t.Format(time.RFC3339))
}

// UTCToTDT returns the terrestrial dynamical time of a UTC instant, seconds
// past J2000.
func UTCToTDT(t time.Time) (float64, error) {
	dat, err := TAIMinusUTC(t)
	if err != nil {
		return 0, err
	}
	// time.Time does not count leap seconds, so the label difference plus
	// the current TAI-UTC offset is the elapsed TAI.
	return t.UTC().Sub(J2000).Seconds() + dat + TTMinusTAI, nil
}

// TDTLabel renders seconds past J2000 TDT as a TT calendar label.
func TDTLabel(tdt float64) time.Time {
	whole := math.Floor(tdt)
	frac := tdt - whole
	return J2000.Add(time.Duration(whole) * time.Second).Add(time.Duration(math.Round(frac * 1e9)))
}

// Periodic terms of the TDB-TT difference.
const (
	tdbAmplitude    = 1.657e-3
	tdbEccentricity = 1.671e-2
	tdbMeanAnomaly0 = 6.239996
	tdbMeanMotion   = 1.99096871e-7
)

func tdbMinusTT(tt float64) float64 {
	m := tdbMeanAnomaly0 + tdbMeanMotion*tt
	e := m + tdbEccentricity*math.Sin(m)
	return tdbAmplitude * math.Sin(e)
}

// TDTToET converts terrestrial dynamical time to ephemeris time (TDB), both
// seconds past J2000.
func TDTToET(tdt float64) float64 {
	return tdt + tdbMinusTT(tdt)
}

// ETToTDT inverts TDTToET. The periodic term varies slowly enough that a
// few fixed-point iterations converge to well below a nanosecond.
func ETToTDT(et float64) float64 {
	tdt := et
	for i := 0; i < 4; i++ {
		tdt = et - tdbMinusTT(tdt)
	}
	return tdt
}
