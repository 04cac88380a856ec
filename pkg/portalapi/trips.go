package portalapi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/ubiportal/ubiportal/pkg/geo"
)

// Trip is one journey from /portal/policy/trips. StartDTMUTC identifies the
// trip when its waypoints are requested.
type Trip struct {
	StartDTMUTC string `json:"startDTMutc"`
	LocalTimes  string `json:"localTimes"`
	Distance    string `json:"distance"`
	Duration    string `json:"duration"`
}

// Waypoint is a GPS fix along a trip.
type Waypoint struct {
	LocalDTM string  `json:"localDTM"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Speed    float64 `json:"speed,omitempty"`
}

func (w Waypoint) Coord() geo.Coord { return geo.Coord{Lat: w.Lat, Lon: w.Lon} }

// Trips lists a policy's trips between from and to. The backend groups them
// by month; the result is flattened in response order.
func (c *Client) Trips(ctx context.Context, opid int, from, to string) ([]Trip, error) {
	q := url.Values{}
	q.Set("opid", itoa(opid))
	q.Set("f", from)
	q.Set("t", to)
	body, err := c.get(ctx, "/portal/policy/trips", q)
	if err != nil {
		return nil, err
	}
	return ParseTrips(body)
}

// ParseTrips flattens monthlyTrips[].individualTrips[]. A missing
// monthlyTrips yields no trips.
func ParseTrips(body []byte) ([]Trip, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("trips: invalid JSON")
	}
	out := []Trip{}
	for _, t := range gjson.GetBytes(body, "monthlyTrips.#.individualTrips|@flatten").Array() {
		out = append(out, Trip{
			StartDTMUTC: t.Get("startDTMutc").String(),
			LocalTimes:  t.Get("localTimes").String(),
			Distance:    t.Get("distance").String(),
			Duration:    t.Get("duration").String(),
		})
	}
	return out, nil
}

// Waypoints fetches the GPS trace of the trip starting at sdtm.
func (c *Client) Waypoints(ctx context.Context, opid int, sdtm string) ([]Waypoint, error) {
	q := url.Values{}
	q.Set("opid", itoa(opid))
	q.Set("sdtm", sdtm)
	body, err := c.get(ctx, "/portal/policy/trip", q)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("trip %s: invalid JSON", sdtm)
	}
	out := []Waypoint{}
	gjson.GetBytes(body, "waypoints").ForEach(func(_, w gjson.Result) bool {
		out = append(out, Waypoint{
			LocalDTM: w.Get("localDTM").String(),
			Lat:      w.Get("lat").Float(),
			Lon:      w.Get("lon").Float(),
			Speed:    w.Get("speed").Float(),
		})
		return true
	})
	return out, nil
}
