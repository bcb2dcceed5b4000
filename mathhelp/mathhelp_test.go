package mathhelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetweenInc(t *testing.T) {
	tests := []struct {
		f, p, q float64
		want    bool
	}{
		{f: 47.5, p: 47, q: 48, want: true},
		{f: 47, p: 47, q: 48, want: true},
		{f: 48, p: 48, q: 47, want: true},
		{f: 48.0001, p: 47, q: 48, want: false},
		{f: 46.9999, p: 48, q: 47, want: false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, BetweenInc(tt.f, tt.p, tt.q), "BetweenInc(%v, %v, %v)", tt.f, tt.p, tt.q)
	}
	assert.True(t, BetweenInc(3, 1, 5))
}

func TestRoundHalfAway(t *testing.T) {
	assert.Equal(t, 1, RoundHalfAway(0.5))
	assert.Equal(t, -1, RoundHalfAway(-0.5))
	assert.Equal(t, 2, RoundHalfAway(2.4999))
	assert.Equal(t, 1200, RoundHalfAway(1200.0000001))
}

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(47.17, 8.51, 47.17, 8.51))
	// one degree of latitude
	assert.InDelta(t, 111195.0, Haversine(47, 8, 48, 8), 10)
	// Zug to Baar, roughly 2.7 km
	assert.InDelta(t, 2700, Haversine(47.170358, 8.518013, 47.19455, 8.52646), 100)
	// symmetric
	assert.InDelta(t, Haversine(47, 8, 47.3, 8.9), Haversine(47.3, 8.9, 47, 8), 1e-6)
}

func TestEuclidianMod(t *testing.T) {
	assert.Equal(t, 350.0, EuclidianMod(-10, 360))
	assert.Equal(t, 10.0, EuclidianMod(370, 360))
	assert.Equal(t, 0.0, EuclidianMod(360, 360))
}
