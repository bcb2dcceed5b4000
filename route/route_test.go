package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/mathhelp"
	"github.com/pdok/arena/query"
)

var testBBox = geometry.BoundingBox{Top: 48, Bottom: 47, Left: 8, Right: 10}

func TestDefaultInterval(t *testing.T) {
	assert.InDelta(t, 88.889, DefaultInterval, 1e-3)
}

func TestBuilder_Tracks(t *testing.T) {
	b := Builder{BBox: testBBox}
	from, to := Point{Lat: 47.5, Long: 8.5}, Point{Lat: 47.5, Long: 9.5}
	tracks, err := b.Tracks(from, to)
	require.NoError(t, err)

	distance := mathhelp.Haversine(from.Lat, from.Long, to.Lat, to.Long)
	assert.Len(t, tracks, int(distance/DefaultInterval))
	assert.Equal(t, from, tracks[0])
	assert.Equal(t, to, tracks[len(tracks)-1])
	for i := 1; i < len(tracks); i++ {
		assert.Equal(t, 47.5, tracks[i].Lat)
		assert.Greater(t, tracks[i].Long, tracks[i-1].Long)
	}
}

func TestBuilder_TracksShortLeg(t *testing.T) {
	b := Builder{BBox: testBBox}
	from, to := Point{Lat: 47.5, Long: 8.5}, Point{Lat: 47.5001, Long: 8.5}
	tracks, err := b.Tracks(from, to)
	require.NoError(t, err)
	assert.Equal(t, []Point{from, to}, tracks)
}

func TestBuilder_TracksStandingStill(t *testing.T) {
	b := Builder{BBox: testBBox}
	p := Point{Lat: 47.5, Long: 8.5}
	tracks, err := b.Tracks(p, p)
	require.NoError(t, err)
	assert.Equal(t, []Point{p}, tracks)

	route, err := b.Build("hover", []Point{p, p, {Lat: 47.5001, Long: 8.5}, {Lat: 47.5001, Long: 8.5}})
	require.NoError(t, err)
	assert.Equal(t, []Point{p, {Lat: 47.5001, Long: 8.5}}, route.Tracks)
}

func TestBuilder_TracksOutOfScope(t *testing.T) {
	b := Builder{BBox: testBBox}
	_, err := b.Tracks(Point{Lat: 47.5, Long: 8.5}, Point{Lat: 52.1, Long: 5.2})
	require.ErrorIs(t, err, query.ErrOutOfScope)
	_, err = b.Tracks(Point{Lat: 46.5, Long: 8.5}, Point{Lat: 47.5, Long: 8.5})
	require.ErrorIs(t, err, query.ErrOutOfScope)
}

func TestBuilder_Build(t *testing.T) {
	b := Builder{BBox: testBBox, Interval: 1000}
	waypoints := []Point{{Lat: 47.1, Long: 8.1}, {Lat: 47.2, Long: 8.1}, {Lat: 47.2, Long: 8.3}}
	route, err := b.Build("loop", waypoints)
	require.NoError(t, err)

	first, err := b.Tracks(waypoints[0], waypoints[1])
	require.NoError(t, err)
	second, err := b.Tracks(waypoints[1], waypoints[2])
	require.NoError(t, err)

	assert.Equal(t, "loop", route.Name)
	assert.Len(t, route.Tracks, len(first)+len(second)-1)
	assert.Equal(t, waypoints[0], route.Tracks[0])
	assert.Equal(t, waypoints[1], route.Tracks[len(first)-1])
	assert.Equal(t, waypoints[2], route.Tracks[len(route.Tracks)-1])
	for i := 1; i < len(route.Tracks); i++ {
		assert.NotEqual(t, route.Tracks[i-1], route.Tracks[i], "no duplicate junction")
	}

	_, err = b.Build("outside", []Point{{Lat: 47.1, Long: 8.1}, {Lat: 49, Long: 8.1}})
	require.ErrorIs(t, err, query.ErrOutOfScope)

	single, err := b.Build("single", waypoints[:1])
	require.NoError(t, err)
	assert.Empty(t, single.Tracks)
}

type fakeInformer struct {
	calls int
}

func (f *fakeInformer) FlightInformation(lat, _ float64) (query.FlightInfo, error) {
	f.calls++
	if lat > 47.9 {
		return query.FlightInfo{Elevation: -1, NextElevation: -1}, query.ErrOutOfScope
	}
	return query.FlightInfo{Elevation: f.calls, NextElevation: f.calls + 1}, nil
}

func TestFly(t *testing.T) {
	r := Route{Tracks: []Point{{Lat: 47.1, Long: 8.1}, {Lat: 47.2, Long: 8.1}}}
	trackpoints, err := Fly(&fakeInformer{}, r)
	require.NoError(t, err)
	require.Len(t, trackpoints, 2)
	assert.Equal(t, 2, trackpoints[1].Elevation)
	assert.Equal(t, 47.2, trackpoints[1].Lat)

	r.Tracks = append(r.Tracks, Point{Lat: 47.95, Long: 8.1})
	trackpoints, err = Fly(&fakeInformer{}, r)
	require.ErrorIs(t, err, query.ErrOutOfScope)
	assert.Len(t, trackpoints, 2)
}
