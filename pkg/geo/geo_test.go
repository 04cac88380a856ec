package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	london = Coord{Lat: 51.5074, Lon: -0.1278}
	paris  = Coord{Lat: 48.8566, Lon: 2.3522}
)

func TestDistance(t *testing.T) {
	km, err := Distance(london, paris, "km", 1)
	require.NoError(t, err)
	assert.InDelta(t, 344.3, km, 1.5)

	mi, err := Distance(london, paris, "mi", 2)
	require.NoError(t, err)
	assert.InDelta(t, km/1.609344, mi, 0.1)

	m, err := Distance(london, paris, "m", 0)
	require.NoError(t, err)
	assert.Equal(t, Metres(london, paris), m)
}

func TestDistanceUnsetCoords(t *testing.T) {
	d, err := Distance(Coord{Lat: 0, Lon: 1}, paris, "km", 2)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = Distance(london, Coord{Lat: 1}, "km", 2)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestDistanceUnknownUnit(t *testing.T) {
	_, err := Distance(london, paris, "league", 2)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestMetresSamePoint(t *testing.T) {
	assert.Zero(t, Metres(london, london))
}

func TestConvert(t *testing.T) {
	mi, err := Convert(1609.344, "mi", 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, mi)

	ft, err := Convert(0.3048, "ft", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ft)

	_, err = Convert(1, "league", 2)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}
