package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// earthRadius is the WGS-84 equatorial radius in metres.
const earthRadius = 6378137.0

var ErrUnknownUnit = errors.New("unknown distance unit")

// perMetre converts metres to each supported unit.
var perMetre = map[string]float64{
	"m":  1,
	"mm": 1000,
	"cm": 100,
	"km": 0.001,
	"mi": 1 / 1609.344,
	"sm": 1 / 1852.216,
	"ft": 100 / 30.48,
	"in": 100 / 2.54,
	"yd": 1 / 0.9144,
}

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coord) unset() bool { return c.Lat == 0 || c.Lon == 0 }

// Metres is the great-circle distance between a and b, rounded to the metre.
func Metres(a, b Coord) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return math.Round(2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h))))
}

// Distance returns the distance between start and end in unit, rounded to
// fixed decimal places. A zero latitude or longitude on either end means the
// position is unknown and the distance is 0.
func Distance(start, end Coord, unit string, fixed int) (float64, error) {
	if _, ok := perMetre[unit]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	if start.unset() || end.unset() {
		return 0, nil
	}
	return Convert(Metres(start, end), unit, fixed)
}

// Convert expresses a length in metres in unit, rounded to fixed places.
func Convert(metres float64, unit string, fixed int) (float64, error) {
	factor, ok := perMetre[unit]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	d := decimal.NewFromFloat(metres).Mul(decimal.NewFromFloat(factor)).Round(int32(fixed))
	return d.InexactFloat64(), nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
