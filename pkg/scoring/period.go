package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePeriod means the payload holds more than one period for the
	// same (periodDays, periodType) pair. It is fatal for the computation.
	ErrDuplicatePeriod = errors.New("duplicate score period")
	// ErrMalformedPayload is returned when a score payload fails validation.
	ErrMalformedPayload = errors.New("malformed score payload")
)

// SelectReportingPeriod returns the single Driving Days period of windowDays.
// It returns nil when there is none and ErrDuplicatePeriod when there is more
// than one.
func SelectReportingPeriod(periods []ScorePeriod, windowDays int) (*ScorePeriod, error) {
	return selectPeriod(periods, windowDays, DrivingDays)
}

func selectPeriod(periods []ScorePeriod, windowDays int, periodType PeriodType) (*ScorePeriod, error) {
	var found *ScorePeriod
	for i := range periods {
		p := &periods[i]
		if p.PeriodType != periodType || p.PeriodDays != windowDays {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %d %s", ErrDuplicatePeriod, windowDays, periodType)
		}
		found = p
	}
	return found, nil
}

// ExtractSubscore looks up metricType in the period. A nil period or a missing
// metric gives an absent Subscore.
func ExtractSubscore(period *ScorePeriod, metricType string) Subscore {
	if period == nil {
		return Subscore{}
	}
	for _, s := range period.Scores {
		if s.Type == metricType {
			return Score(s.Score)
		}
	}
	return Subscore{}
}
