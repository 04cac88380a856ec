package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func period(days int, pt PeriodType, used bool, scores ...MetricScore) ScorePeriod {
	return ScorePeriod{PeriodDays: days, PeriodType: pt, UsedForReporting: used, Scores: scores}
}

func ms(t string, v float64) MetricScore { return MetricScore{Type: t, Score: v} }

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		score    float64
		band     Band
		badge    string
		riskText string
		colour   Colour
	}{
		{-5, BandVeryHighRisk, "Very High Risk", "Very High Risk", ColourRed},
		{39.999, BandVeryHighRisk, "Very High Risk", "Very High Risk", ColourRed},
		{40, BandHigh, "Very High Risk", "High Risk", ColourRed},
		{40.1, BandHigh, "High", "High Risk", ColourRed},
		{52.999, BandHigh, "High", "High Risk", ColourRed},
		{53, BandLow, "Low", "Low Risk", ColourYellow},
		{59.999, BandLow, "Low", "Low Risk", ColourYellow},
		{60, BandGood, "Good", "Good", ColourYellow},
		{70, BandGreat, "Great", "Great", ColourGreen},
		{79.99, BandGreat, "Great", "Great", ColourGreen},
		{80, BandExcellent, "Excellent", "Excellent", ColourGreen},
		{140, BandExcellent, "Excellent", "Excellent", ColourGreen},
	}
	for _, tc := range tests {
		got := ClassifyValue(tc.score)
		assert.Equal(t, tc.band, got.Band, "band for %v", tc.score)
		assert.Equal(t, tc.badge, got.Badge, "badge for %v", tc.score)
		assert.Equal(t, tc.riskText, got.RiskText, "risk text for %v", tc.score)
		assert.Equal(t, tc.colour, got.Colour, "colour for %v", tc.score)
	}
}

func TestClassifyNil(t *testing.T) {
	got := Classify(nil)
	assert.Equal(t, BandUnknown, got.Band)
	assert.Empty(t, got.RiskText)
	assert.Empty(t, got.Badge)
	assert.Equal(t, "Unknown", got.Label())
}

func TestSelectReportingPeriod(t *testing.T) {
	periods := []ScorePeriod{
		period(90, DrivingDays, true),
		period(90, CalendarDays, false),
		period(30, DrivingDays, false),
	}

	p, err := SelectReportingPeriod(periods, 90)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, DrivingDays, p.PeriodType)
	assert.True(t, p.UsedForReporting)

	p, err = SelectReportingPeriod(periods, 14)
	require.NoError(t, err)
	assert.Nil(t, p)

	periods = append(periods, period(30, DrivingDays, true))
	_, err = SelectReportingPeriod(periods, 30)
	assert.ErrorIs(t, err, ErrDuplicatePeriod)
}

func TestExtractSubscore(t *testing.T) {
	p := period(90, DrivingDays, true, ms(MetricOverall, 71.5), ms(MetricSpeeding, 0))

	assert.Equal(t, Score(71.5), ExtractSubscore(&p, MetricOverall))
	assert.Equal(t, Score(0), ExtractSubscore(&p, MetricSpeeding))
	assert.Equal(t, NotAvailable, ExtractSubscore(&p, "nonexistent-type").String())
	assert.Equal(t, NotAvailable, ExtractSubscore(nil, MetricOverall).String())
	assert.Nil(t, ExtractSubscore(nil, MetricOverall).Ptr())
}

func TestBuildHeadlineCardEmptyKeepsDefaults(t *testing.T) {
	defaults := PolicyScore{
		Overall: Score(66), Speed: Score(55), Brake: Score(81), Night: Score(30),
		OverallBadge: "Good", SpeedBadge: "Low", BrakeBadge: "Excellent", NightBadge: "Very High Risk",
	}

	card, err := BuildHeadlineCard(defaults, nil, 90)
	require.NoError(t, err)
	assert.Equal(t, Score(66), card.Overall.Score)
	assert.Equal(t, "Good", card.Overall.Badge)
	assert.Equal(t, "Excellent", card.Brake.Badge)
	assert.Equal(t, BandVeryHighRisk, card.Night.Risk.Band)
	assert.Empty(t, card.UsedDrivingDaysLabel)
}

func TestBuildHeadlineCardUsesLatestReportingDay(t *testing.T) {
	days := []ScoreDay{
		{Day: "01/03/24", Periods: []ScorePeriod{period(90, DrivingDays, true, ms(MetricOverall, 50))}},
		{Day: "02/03/24", Periods: []ScorePeriod{period(90, DrivingDays, true,
			ms(MetricOverall, 82), ms(MetricSpeeding, 61), ms(MetricBraking, 45))}},
		{Day: "03/03/24", Periods: []ScorePeriod{period(90, DrivingDays, false, ms(MetricOverall, 10))}},
	}

	card, err := BuildHeadlineCard(PolicyScore{Overall: Score(1), OverallBadge: "stale"}, days, 0)
	require.NoError(t, err)
	assert.Equal(t, Score(82), card.Overall.Score)
	assert.Equal(t, "Excellent", card.Overall.Badge)
	assert.Equal(t, "Good", card.Speed.Badge)
	assert.Equal(t, "High", card.Brake.Badge)
	assert.False(t, card.Night.Score.Valid)
	assert.Empty(t, card.Night.Badge)
	assert.Equal(t, "(90 driving days)", card.UsedDrivingDaysLabel)
}

func TestBuildHeadlineCardDuplicateFails(t *testing.T) {
	days := []ScoreDay{
		{Day: "01/03/24", Periods: []ScorePeriod{period(90, DrivingDays, true), period(90, DrivingDays, false)}},
		{Day: "02/03/24", Periods: []ScorePeriod{period(90, DrivingDays, true)}},
	}
	_, err := BuildHeadlineCard(PolicyScore{}, days, 90)
	assert.ErrorIs(t, err, ErrDuplicatePeriod)
}

func TestBuildHistoryRow(t *testing.T) {
	miles := 123.4
	cal := period(7, CalendarDays, false)
	cal.DistanceMiles = &miles
	day := ScoreDay{Day: "04/03/24", Periods: []ScorePeriod{
		period(90, DrivingDays, true, ms(MetricOverall, 58), ms(MetricSpeeding, 70)),
		period(30, DrivingDays, false, ms(MetricOverall, 60)),
		period(7, DrivingDays, false, ms(MetricSpeeding, 40)),
		cal,
	}}

	row, err := BuildHistoryRow(day)
	require.NoError(t, err)
	require.Len(t, row.Categories, len(HistoryCategories))
	require.NotNil(t, row.DistanceMiles)
	assert.Equal(t, 123.4, *row.DistanceMiles)
	assert.Equal(t, ColourYellow, row.Colour)
	assert.Equal(t, BandLow, row.Overall.Band)

	overall := row.Categories[0]
	assert.False(t, overall.Hidden)
	assert.Equal(t, Score(58), overall.Window(90))
	assert.Equal(t, Score(60), overall.Window(30))
	assert.False(t, overall.Window(14).Valid)
	assert.False(t, overall.Window(7).Valid)

	speed := row.Categories[1]
	assert.Equal(t, Score(40), speed.Window(7))

	cornering := row.Categories[4]
	assert.True(t, cornering.Hidden)
}

func TestBuildHistorySortsNewestFirst(t *testing.T) {
	days := []ScoreDay{
		{Day: "30/12/23"},
		{Day: "not a date"},
		{Day: "02/01/24"},
		{Day: "01/01/24"},
	}
	h, err := BuildHistory(days)
	require.NoError(t, err)
	var got []string
	for _, r := range h.Rows {
		got = append(got, r.Day)
		assert.Equal(t, ColourGrey, r.Colour)
	}
	assert.Equal(t, []string{"02/01/24", "01/01/24", "30/12/23", "not a date"}, got)
}

func TestBuildHistoryUnpaddedDays(t *testing.T) {
	days := []ScoreDay{
		{Day: "28/02/24"},
		{Day: "1/3/24"},
		{Day: "garbage"},
		{Day: "02/3/24"},
	}
	h, err := BuildHistory(days)
	require.NoError(t, err)
	var got []string
	for _, r := range h.Rows {
		got = append(got, r.Day)
	}
	assert.Equal(t, []string{"02/3/24", "1/3/24", "28/02/24", "garbage"}, got)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "72.5 / 100", FormatScore(Score(72.46)))
	assert.Equal(t, "Unknown", FormatScore(Subscore{}))
	assert.Equal(t, "This is an Excellent score.", BadgeSentence("Excellent"))
	assert.Equal(t, "This is a Good score.", BadgeSentence("Good"))
	assert.Empty(t, BadgeSentence(""))
}
