package scoring

import "fmt"

// PolicyScore is the default score snapshot embedded in a policy's details.
// It is always available but may be stale.
type PolicyScore struct {
	Overall      Subscore `json:"overall"`
	Speed        Subscore `json:"speed"`
	Brake        Subscore `json:"brake"`
	Night        Subscore `json:"night"`
	OverallBadge string   `json:"overallBadge"`
	SpeedBadge   string   `json:"speedBadge"`
	BrakeBadge   string   `json:"brakeBadge"`
	NightBadge   string   `json:"nightBadge"`
}

// HeadlineMetric is one summary card.
type HeadlineMetric struct {
	Score Subscore `json:"score"`
	Badge string   `json:"badge"`
	Risk  RiskBand `json:"risk"`
}

// HeadlineCard is the set of four headline numbers shown for a policy.
type HeadlineCard struct {
	Overall              HeadlineMetric `json:"overall"`
	Speed                HeadlineMetric `json:"speed"`
	Brake                HeadlineMetric `json:"brake"`
	Night                HeadlineMetric `json:"night"`
	UsedDrivingDaysLabel string         `json:"usedDrivingDaysLabel"`
}

func seededMetric(score Subscore, badge string) HeadlineMetric {
	return HeadlineMetric{Score: score, Badge: badge, Risk: Classify(score.Ptr())}
}

func computedMetric(period *ScorePeriod, metric string) HeadlineMetric {
	s := ExtractSubscore(period, metric)
	m := HeadlineMetric{Score: s, Risk: Classify(s.Ptr())}
	if s.Valid {
		m.Badge = BadgeLabel(s.Value)
	}
	return m
}

// BuildHeadlineCard seeds the card from the policy defaults, then overwrites
// the four metrics from the most recent day whose windowDays period is flagged
// usedForReporting. days must be in ascending chronological order. Every day
// is checked for duplicate periods, so a malformed payload always fails.
func BuildHeadlineCard(defaults PolicyScore, days []ScoreDay, windowDays int) (HeadlineCard, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	card := HeadlineCard{
		Overall: seededMetric(defaults.Overall, defaults.OverallBadge),
		Speed:   seededMetric(defaults.Speed, defaults.SpeedBadge),
		Brake:   seededMetric(defaults.Brake, defaults.BrakeBadge),
		Night:   seededMetric(defaults.Night, defaults.NightBadge),
	}

	var reporting *ScorePeriod
	for _, day := range days {
		p, err := SelectReportingPeriod(day.Periods, windowDays)
		if err != nil {
			return HeadlineCard{}, fmt.Errorf("day %s: %w", day.Day, err)
		}
		if p != nil && p.UsedForReporting {
			reporting = p
		}
	}
	if reporting == nil {
		return card, nil
	}

	card.Overall = computedMetric(reporting, MetricOverall)
	card.Speed = computedMetric(reporting, MetricSpeeding)
	card.Brake = computedMetric(reporting, MetricBraking)
	card.Night = computedMetric(reporting, MetricNight)
	card.UsedDrivingDaysLabel = fmt.Sprintf("(%d driving days)", windowDays)
	return card, nil
}
