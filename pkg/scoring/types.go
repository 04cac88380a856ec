package scoring

import (
	"encoding/json"
	"strconv"
)

// PeriodType tells how the days of a scoring window were counted.
type PeriodType string

const (
	// DrivingDays counts only days with qualifying trip activity.
	DrivingDays PeriodType = "Driving Days"
	// CalendarDays counts elapsed wall-clock days.
	CalendarDays PeriodType = "Calendar Days"
)

// Metric types reported by the scoring backend.
const (
	MetricOverall      = "weighted-total"
	MetricSpeeding     = "speeding"
	MetricBraking      = "harsh-braking"
	MetricNight        = "night-driving"
	MetricCornering    = "harsh-cornering"
	MetricRoadTypes    = "road-types"
	MetricIdling       = "idling"
	MetricAcceleration = "harsh-accel"
	MetricUrban        = "urban"
)

// DefaultWindowDays is the trailing window used for headline reporting.
const DefaultWindowDays = 90

// NotAvailable is the sentinel shown for a score that cannot be computed.
const NotAvailable = "N/A"

// MetricScore is one (type, score) pair of a period.
type MetricScore struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// ScorePeriod holds one policy's aggregated driving metrics for a trailing window.
type ScorePeriod struct {
	PeriodDays       int           `json:"periodDays"`
	PeriodType       PeriodType    `json:"periodType"`
	UsedForReporting bool          `json:"usedForReporting"`
	Scores           []MetricScore `json:"scores"`
	DistanceMiles    *float64      `json:"distanceMiles,omitempty"`
}

// ScoreDay groups the periods the backend computed for a single day.
// Day is formatted dd/MM/yy.
type ScoreDay struct {
	Day     string        `json:"day"`
	Periods []ScorePeriod `json:"periods"`
}

// Subscore is a score that may be absent. An absent score is never zero.
type Subscore struct {
	Value float64
	Valid bool
}

// Score builds a present Subscore.
func Score(v float64) Subscore {
	return Subscore{Value: v, Valid: true}
}

// Ptr returns nil for an absent score.
func (s Subscore) Ptr() *float64 {
	if !s.Valid {
		return nil
	}
	v := s.Value
	return &v
}

func (s Subscore) String() string {
	if !s.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

// MarshalJSON writes the number, or the "N/A" sentinel.
func (s Subscore) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(s.Value)
}
