package scoring

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// ParseScoreResponse validates a /portal/score response body and turns it
// into score days, in the order the backend sent them. A missing or null
// "scores" array is an empty result.
func ParseScoreResponse(body []byte) ([]ScoreDay, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	scores := gjson.GetBytes(body, "scores")
	if !scores.Exists() || scores.Type == gjson.Null {
		return nil, nil
	}
	if !scores.IsArray() {
		return nil, fmt.Errorf("%w: scores is not an array", ErrMalformedPayload)
	}

	var days []ScoreDay
	for i, rec := range scores.Array() {
		day, err := parseDay(rec)
		if err != nil {
			return nil, fmt.Errorf("scores.%d: %w", i, err)
		}
		days = append(days, day)
	}
	return days, nil
}

func parseDay(rec gjson.Result) (ScoreDay, error) {
	label := rec.Get("scoresByDay.day")
	if label.Type != gjson.String || label.Str == "" {
		return ScoreDay{}, fmt.Errorf("%w: scoresByDay.day missing", ErrMalformedPayload)
	}
	day := ScoreDay{Day: label.Str}

	data := rec.Get("scoresByDay.data")
	if !data.Exists() || data.Type == gjson.Null {
		return day, nil
	}
	if !data.IsArray() {
		return ScoreDay{}, fmt.Errorf("%w: scoresByDay.data is not an array", ErrMalformedPayload)
	}
	for j, item := range data.Array() {
		p, err := parsePeriod(item.Get("score"))
		if err != nil {
			return ScoreDay{}, fmt.Errorf("scoresByDay.data.%d: %w", j, err)
		}
		day.Periods = append(day.Periods, p)
	}
	return day, nil
}

func parsePeriod(s gjson.Result) (ScorePeriod, error) {
	if !s.IsObject() {
		return ScorePeriod{}, fmt.Errorf("%w: score is not an object", ErrMalformedPayload)
	}

	days := s.Get("periodDays")
	if days.Type != gjson.Number || days.Num <= 0 || days.Num != math.Trunc(days.Num) {
		return ScorePeriod{}, fmt.Errorf("%w: periodDays %q", ErrMalformedPayload, days.Raw)
	}
	pt := PeriodType(s.Get("periodType").String())
	if pt != DrivingDays && pt != CalendarDays {
		return ScorePeriod{}, fmt.Errorf("%w: periodType %q", ErrMalformedPayload, pt)
	}
	p := ScorePeriod{PeriodDays: int(days.Int()), PeriodType: pt}

	switch u := s.Get("usedForReporting"); u.Type {
	case gjson.True, gjson.False:
		p.UsedForReporting = u.Bool()
	case gjson.Null:
	default:
		return ScorePeriod{}, fmt.Errorf("%w: usedForReporting %q", ErrMalformedPayload, u.Raw)
	}

	switch d := s.Get("distanceMiles"); d.Type {
	case gjson.Number:
		miles := d.Num
		p.DistanceMiles = &miles
	case gjson.Null:
	default:
		return ScorePeriod{}, fmt.Errorf("%w: distanceMiles %q", ErrMalformedPayload, d.Raw)
	}

	metrics := s.Get("scores")
	if metrics.Exists() && metrics.Type != gjson.Null && !metrics.IsArray() {
		return ScorePeriod{}, fmt.Errorf("%w: scores is not an array", ErrMalformedPayload)
	}
	for k, m := range metrics.Array() {
		typ := m.Get("type")
		if typ.Type != gjson.String || typ.Str == "" {
			return ScorePeriod{}, fmt.Errorf("%w: scores.%d.type missing", ErrMalformedPayload, k)
		}
		switch v := m.Get("score"); v.Type {
		case gjson.Number:
			p.Scores = append(p.Scores, MetricScore{Type: typ.Str, Score: v.Num})
		case gjson.Null:
			// An absent score stays absent.
		default:
			return ScorePeriod{}, fmt.Errorf("%w: scores.%d.score %q", ErrMalformedPayload, k, v.Raw)
		}
	}
	return p, nil
}
