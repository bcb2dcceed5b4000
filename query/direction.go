package query

import (
	"math"

	"github.com/pdok/arena/mathhelp"
)

// Compass is one of the 8 cardinal and intercardinal directions
type Compass string

const (
	North     Compass = "N"
	NorthEast Compass = "NE"
	East      Compass = "E"
	SouthEast Compass = "SE"
	South     Compass = "S"
	SouthWest Compass = "SW"
	West      Compass = "W"
	NorthWest Compass = "NW"
)

// indexed by heading/45, 0 and 8 are both north
var compassBrackets = [9]Compass{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest, North}

// nextCell is the (row, col) offset of the neighbouring cell in a direction.
// Row ids increase southward.
var nextCell = map[Compass][2]int{
	North:     {-1, 0},
	NorthEast: {-1, 1},
	East:      {0, 1},
	SouthEast: {1, 1},
	South:     {1, 0},
	SouthWest: {1, -1},
	West:      {0, -1},
	NorthWest: {-1, -1},
}

// CompassOf maps a heading in degrees [0, 360) to the nearest compass direction
func CompassOf(heading float64) Compass {
	return compassBrackets[mathhelp.RoundHalfAway(heading/45)]
}

// Heading from one point to another in degrees clockwise from north, [0, 360).
// Longitude and latitude differences are treated as planar.
func Heading(fromLat, fromLong, toLat, toLong float64) float64 {
	return mathhelp.EuclidianMod(mathhelp.Degrees(math.Atan2(toLong-fromLong, toLat-fromLat)), 360)
}

// Direction returns the compass direction and heading from the previous call's point to (lat, long).
// There is no direction on the first call. Every call becomes the previous point of the next.
func (e *Engine) Direction(lat, long float64) (Compass, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	previous := e.previous
	e.previous = &[2]float64{lat, long}
	if previous == nil {
		return "", 0, false
	}
	heading := Heading(previous[0], previous[1], lat, long)
	return CompassOf(heading), heading, true
}

// ResetDirection forgets the previous point, starting a new flight
func (e *Engine) ResetDirection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.previous = nil
}

// FlightInfo is the state of a flight at one trackpoint
type FlightInfo struct {
	Elevation     int     `json:"elevation"`
	NextElevation int     `json:"nextElevation"`
	Direction     Compass `json:"direction,omitempty"`
	Heading       float64 `json:"heading"`
	HasDirection  bool    `json:"-"`
}

// FlightInformation returns the elevation at (lat, long) and of the next cell in the direction of travel.
// Without a direction yet, or when the next cell cannot be read, the next elevation is the current one.
func (e *Engine) FlightInformation(lat, long float64) (FlightInfo, error) {
	nearest, err := e.NearestElevation(lat, long)
	if err != nil {
		return FlightInfo{Elevation: -1, NextElevation: -1}, err
	}
	info := FlightInfo{Elevation: nearest.Elevation, NextElevation: nearest.Elevation}

	direction, heading, ok := e.Direction(lat, long)
	if !ok {
		return info, nil
	}
	info.Direction = direction
	info.Heading = math.Round(heading*100) / 100
	info.HasDirection = true

	a, err := e.load()
	if err != nil {
		return info, err
	}
	offset := nextCell[direction]
	next, err := e.cell(a, nearest.RowID+offset[0], nearest.ColID+offset[1])
	if err != nil {
		e.logger.Warn("query_next_cell_failed", "lat", lat, "long", long, "direction", string(direction), "error", err)
		return info, nil
	}
	info.NextElevation = next.Elevation
	return info, nil
}
