// Package route builds the trackpoints of a flight between waypoints within the arena,
// sampled at the distance a drone covers in one sampling interval, and flies them through a query engine.
package route

import (
	"fmt"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/logging"
	"github.com/pdok/arena/mapslicehelp"
	"github.com/pdok/arena/mathhelp"
	"github.com/pdok/arena/query"
)

const (
	// SpeedKmh of a police drone
	SpeedKmh = 160
	// SamplingInterval in seconds
	SamplingInterval = 2
	// DefaultInterval is the distance in meters between two trackpoints
	DefaultInterval = SpeedKmh * 1000.0 / 3600 * SamplingInterval
)

type Point struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

type Route struct {
	Name      string  `json:"name"`
	Waypoints []Point `json:"waypoints"`
	Tracks    []Point `json:"tracks"`
}

type Builder struct {
	BBox     geometry.BoundingBox
	Interval float64 // meters, DefaultInterval when 0
}

func (b Builder) interval() float64 {
	if b.Interval > 0 {
		return b.Interval
	}
	return DefaultInterval
}

// Tracks interpolates linearly from one waypoint to the next, both included.
// A leg to the same point has a single track.
func (b Builder) Tracks(from, to Point) ([]Point, error) {
	for _, wp := range []Point{from, to} {
		if !b.BBox.Contains(wp.Lat, wp.Long) {
			logging.L().Error("route_waypoint_out_of_scope", "lat", wp.Lat, "long", wp.Long)
			return nil, fmt.Errorf("%w: waypoint (%v, %v)", query.ErrOutOfScope, wp.Lat, wp.Long)
		}
	}
	if from == to {
		return []Point{from}, nil
	}
	distance := mathhelp.Haversine(from.Lat, from.Long, to.Lat, to.Long)
	steps := max(int(distance/b.interval()), 2)

	tracks := make([]Point, steps)
	dLat := (to.Lat - from.Lat) / float64(steps-1)
	dLong := (to.Long - from.Long) / float64(steps-1)
	for i := range tracks {
		tracks[i] = Point{Lat: from.Lat + float64(i)*dLat, Long: from.Long + float64(i)*dLong}
	}
	tracks[steps-1] = to
	return tracks, nil
}

// Build concatenates the tracks of all legs, the waypoint joining two legs occurs once
func (b Builder) Build(name string, waypoints []Point) (Route, error) {
	route := Route{Name: name, Waypoints: waypoints}
	for i := 1; i < len(waypoints); i++ {
		tracks, err := b.Tracks(waypoints[i-1], waypoints[i])
		if err != nil {
			return route, fmt.Errorf("leg %d of route %s: %w", i, name, err)
		}
		if last := mapslicehelp.LastElement(route.Tracks); last != nil && *last == tracks[0] {
			route.Tracks = route.Tracks[:len(route.Tracks)-1]
		}
		route.Tracks = append(route.Tracks, tracks...)
	}
	return route, nil
}

// FlightInformer is implemented by query.Engine
type FlightInformer interface {
	FlightInformation(lat, long float64) (query.FlightInfo, error)
}

// Trackpoint is a point of a route with the flight information at that point
type Trackpoint struct {
	Point
	query.FlightInfo
}

// Fly queries the flight information for every trackpoint of the route, in order.
// The informer should be dedicated to this flight, as it tracks the direction of travel.
func Fly(informer FlightInformer, route Route) ([]Trackpoint, error) {
	trackpoints := make([]Trackpoint, 0, len(route.Tracks))
	for _, p := range route.Tracks {
		info, err := informer.FlightInformation(p.Lat, p.Long)
		if err != nil {
			return trackpoints, fmt.Errorf("trackpoint (%v, %v): %w", p.Lat, p.Long, err)
		}
		trackpoints = append(trackpoints, Trackpoint{Point: p, FlightInfo: info})
	}
	return trackpoints, nil
}
