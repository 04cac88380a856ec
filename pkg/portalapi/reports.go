package portalapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
)

var ErrUnknownReport = errors.New("unknown report")

// Reports maps a report name to its backend path. Every report is scoped by
// the business unit id passed as uid.
var Reports = map[string]string{
	"allmember-live":             "/portal/report/allmember/live",
	"allmember-cancelled":        "/portal/report/allmember/cancelled",
	"device-unplugged":           "/portal/report/device/unplugged",
	"device-multiple-unplugged":  "/portal/report/device/multiple/unplugged",
	"device-notinstalled":        "/portal/report/device/notinstalled",
	"excessivespeed-unprocessed": "/portal/report/excessivespeed/unprocessed",
	"fnol":                       "/portal/report/fnol",
	"missing-mobiles":            "/portal/report/missing/mobiles",
	"persistentspeed":            "/portal/report/persistentspeed",
	"postcode-heatmap":           "/portal/report/postcode/heatmap",
	"quarterly-mileage":          "/portal/report/quarterly/mileage",
	"risk-address":               "/portal/report/risk/address",
	"risk-business-use":          "/portal/report/risk/business-use",
	"risk-mileage":               "/portal/report/risk/mileage",
	"untracked-trips":            "/portal/report/untracked/trips",
	"validated-excessivespeed":   "/portal/report/validatedexcessivespeed",
	"validated-persistentspeed":  "/portal/report/validatedpersistentspeed",
	"telematics-referrals":       "/portal/policy/telematics/referrals",
}

func ReportNames() []string {
	names := make([]string, 0, len(Reports))
	for n := range Reports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Report fetches the rows of a named report for business unit uid.
func (c *Client) Report(ctx context.Context, name string, uid int) (json.RawMessage, error) {
	path, ok := Reports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}
	if uid <= 0 {
		return nil, ErrNoScope
	}
	body, err := c.get(ctx, path, url.Values{"uid": {itoa(uid)}})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("report %s: invalid JSON", name)
	}
	return json.RawMessage(body), nil
}
