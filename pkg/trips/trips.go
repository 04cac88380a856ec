package trips

import (
	"context"
	"strings"
	"time"

	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/geo"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
	"github.com/ubiportal/ubiportal/pkg/storage"
)

// DefaultLookback is how far back a fresh trip search starts.
const DefaultLookback = 7

// DefaultDayRange is the longest span a CSV export may cover.
const DefaultDayRange = 7

var layouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseDate accepts the date formats the portal's date pickers produce.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CheckDateRange reports whether from and to are both set, ordered, and no
// more than dayRange days apart.
func CheckDateRange(from, to string, dayRange int) bool {
	f, ok := ParseDate(from)
	if !ok {
		return false
	}
	t, ok := ParseDate(to)
	if !ok {
		return false
	}
	if f.After(t) {
		return false
	}
	return t.Sub(f).Hours()/24 <= float64(dayRange)
}

// Store is the remembered trip search state.
type Store interface {
	LastOPID(ctx context.Context) (int, error)
	TripDates(ctx context.Context) (storage.TripDates, error)
}

type Range struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	DaysInPast int       `json:"daysInPast"`
}

// Dates picks the trip search range for a policy. The remembered range is
// reused only when the last searched policy is opid; otherwise the search
// looks back DefaultLookback days from now.
func Dates(ctx context.Context, store Store, opid int, now time.Time) Range {
	r := Range{From: now, To: now, DaysInPast: DefaultLookback}

	last, err := store.LastOPID(ctx)
	if err != nil {
		utils.Log.Warnf("Could not read last searched policy: %v", err)
	}
	if err == nil && last == opid {
		dates, err := store.TripDates(ctx)
		if err != nil {
			utils.Log.Warnf("Could not read trip dates: %v", err)
		}
		from, fromOK := ParseDate(dates.From)
		to, toOK := ParseDate(dates.To)
		if fromOK {
			r.From = from
		}
		if toOK {
			r.To = to
		}
		if fromOK || toOK {
			r.DaysInPast = 0
		}
	}

	if r.DaysInPast > 0 {
		r.From = r.To.AddDate(0, 0, -r.DaysInPast)
	}
	return r
}

// Fetcher lists a policy's trips and the waypoints of one trip.
type Fetcher interface {
	Trips(ctx context.Context, opid int, from, to string) ([]portalapi.Trip, error)
	Waypoints(ctx context.Context, opid int, sdtm string) ([]portalapi.Waypoint, error)
}

// Search lists the trips between from and to. Nothing is fetched when the
// range fails CheckDateRange; the result is then empty and ok is false.
func Search(ctx context.Context, f Fetcher, opid int, from, to string, dayRange int) (found []portalapi.Trip, ok bool, err error) {
	if !CheckDateRange(from, to, dayRange) {
		utils.Log.Debugf("Skipping trip search for %d: %q to %q is not within %d days", opid, from, to, dayRange)
		return []portalapi.Trip{}, false, nil
	}
	found, err = f.Trips(ctx, opid, from, to)
	if err != nil {
		return nil, true, err
	}
	return found, true, nil
}

// Route is a trip's waypoints and the length of the path through them.
type Route struct {
	Waypoints []portalapi.Waypoint `json:"waypoints"`
	Distance  float64              `json:"distance"`
	Unit      string               `json:"unit"`
}

// FetchRoute loads the waypoints of the trip starting at sdtm and measures
// the path in unit, rounded to two places.
func FetchRoute(ctx context.Context, f Fetcher, opid int, sdtm, unit string) (Route, error) {
	points, err := f.Waypoints(ctx, opid, sdtm)
	if err != nil {
		return Route{}, err
	}
	d, err := PathDistance(points, unit, 2)
	if err != nil {
		return Route{}, err
	}
	return Route{Waypoints: points, Distance: d, Unit: unit}, nil
}

// PathDistance sums the legs between consecutive waypoints. Legs touching a
// point without a fix count as zero.
func PathDistance(points []portalapi.Waypoint, unit string, fixed int) (float64, error) {
	var metres float64
	for i := 1; i < len(points); i++ {
		d, err := geo.Distance(points[i-1].Coord(), points[i].Coord(), "m", 3)
		if err != nil {
			return 0, err
		}
		metres += d
	}
	return geo.Convert(metres, unit, fixed)
}
