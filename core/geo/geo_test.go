package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

func TestDistanceKnownPairs(t *testing.T) {
	paris := model.Point{Lat: 48.8566, Lng: 2.3522}
	london := model.Point{Lat: 51.5074, Lng: -0.1278}
	assert.InDelta(t, 343_500, Distance(paris, london), 1_000)
	assert.Zero(t, Distance(paris, paris))
	assert.InDelta(t, Distance(paris, london), Distance(london, paris), 1e-6)
}

func TestDistanceOneDegreeOfLatitude(t *testing.T) {
	d := Distance(model.Point{}, model.Point{Lat: 1})
	assert.InDelta(t, 111_195, d, 1)
}

func TestOffsetRoundTrip(t *testing.T) {
	origin := model.Point{}
	p := Offset(origin, 0, 1800)
	assert.InDelta(t, 1800, Distance(origin, p), 0.5)
	p = Offset(origin, 4000, 0)
	assert.InDelta(t, 4000, Distance(origin, p), 0.5)
}

func TestWithinInclusive(t *testing.T) {
	assert.True(t, Within(0, 0, 10))
	assert.True(t, Within(10, 0, 10))
	assert.False(t, Within(10.01, 0, 10))
	assert.False(t, Within(4, 5, 10))
}
