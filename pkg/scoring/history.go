package scoring

import (
	"fmt"
	"sort"
	"time"
)

// HistoryWindows are the trailing windows shown for every history category,
// longest first.
var HistoryWindows = []int{90, 30, 14, 7}

// Category is one metric shown in the expandable history row.
type Category struct {
	Label  string
	Metric string
}

// HistoryCategories lists the metrics of a history row in display order.
var HistoryCategories = []Category{
	{Label: "Overall", Metric: MetricOverall},
	{Label: "Speed", Metric: MetricSpeeding},
	{Label: "Braking", Metric: MetricBraking},
	{Label: "Night", Metric: MetricNight},
	{Label: "Cornering", Metric: MetricCornering},
	{Label: "Motorway", Metric: MetricRoadTypes},
	{Label: "Idling", Metric: MetricIdling},
	{Label: "Acceleration", Metric: MetricAcceleration},
	{Label: "Urban", Metric: MetricUrban},
}

// CategoryScores holds one category's score for each history window.
type CategoryScores struct {
	Label  string           `json:"label"`
	Metric string           `json:"metric"`
	Scores map[int]Subscore `json:"scores"`
	// Hidden is set when the 90 day score is absent; the column is not shown.
	Hidden bool `json:"hidden"`
}

// Window returns the score of the given window.
func (c CategoryScores) Window(days int) Subscore {
	return c.Scores[days]
}

// HistoryRow is one day of the score history table.
type HistoryRow struct {
	Day           string           `json:"day"`
	DistanceMiles *float64         `json:"distanceMiles,omitempty"`
	Overall       RiskBand         `json:"overall"`
	Colour        Colour           `json:"colour"`
	Categories    []CategoryScores `json:"categories"`
}

// BuildHistoryRow computes every category of one day for the 90, 30, 14 and 7
// day windows independently. Distance comes from the 7 day Calendar Days
// period.
func BuildHistoryRow(day ScoreDay) (HistoryRow, error) {
	windows := make(map[int]*ScorePeriod, len(HistoryWindows))
	for _, w := range HistoryWindows {
		p, err := SelectReportingPeriod(day.Periods, w)
		if err != nil {
			return HistoryRow{}, fmt.Errorf("day %s: %w", day.Day, err)
		}
		windows[w] = p
	}

	row := HistoryRow{Day: day.Day}
	for _, p := range day.Periods {
		if p.PeriodDays == 7 && p.PeriodType == CalendarDays {
			row.DistanceMiles = p.DistanceMiles
			break
		}
	}

	for _, c := range HistoryCategories {
		cs := CategoryScores{Label: c.Label, Metric: c.Metric, Scores: make(map[int]Subscore, len(HistoryWindows))}
		for _, w := range HistoryWindows {
			cs.Scores[w] = ExtractSubscore(windows[w], c.Metric)
		}
		cs.Hidden = !cs.Scores[DefaultWindowDays].Valid
		row.Categories = append(row.Categories, cs)
	}

	overall := ExtractSubscore(windows[DefaultWindowDays], MetricOverall)
	row.Overall = Classify(overall.Ptr())
	row.Colour = rowColour(overall)
	return row, nil
}

// History is the score history of a policy, newest day first.
type History struct {
	Rows []HistoryRow `json:"rows"`
}

// dayLayout accepts both padded and unpadded labels, e.g. 01/03/24 and 1/3/24.
const dayLayout = "2/1/06"

// BuildHistory sorts days newest first and builds one row per day. Days whose
// label cannot be parsed keep their relative order after the dated ones.
func BuildHistory(days []ScoreDay) (History, error) {
	sorted := make([]ScoreDay, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, ierr := time.Parse(dayLayout, sorted[i].Day)
		tj, jerr := time.Parse(dayLayout, sorted[j].Day)
		switch {
		case ierr != nil:
			return false
		case jerr != nil:
			return true
		}
		return ti.After(tj)
	})

	h := History{Rows: make([]HistoryRow, 0, len(sorted))}
	for _, d := range sorted {
		row, err := BuildHistoryRow(d)
		if err != nil {
			return History{}, err
		}
		h.Rows = append(h.Rows, row)
	}
	return h, nil
}
