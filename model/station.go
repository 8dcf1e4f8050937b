package model

// Motion represents a position in ECEF metres.
type Motion struct {
	X float64
	Y float64
	Z float64
}

// GroundStation is a tracking station that receives downlinked telemetry.
// PathIDs lists the ground path ids the telemetry system reports for
// frames received through this station.
type GroundStation struct {
	ID   int64
	Name string

	PathIDs []int64

	// Coordinates are fixed ECEF metres; stations do not move.
	Coordinates Motion
}
