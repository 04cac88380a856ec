package scoring

import (
	"math"

	"github.com/shopspring/decimal"
)

// Band is a discrete risk classification of a score.
type Band int

const (
	BandUnknown Band = iota
	BandVeryHighRisk
	BandHigh
	BandLow
	BandGood
	BandGreat
	BandExcellent
)

var bandNames = map[Band]string{
	BandUnknown:      "Unknown",
	BandVeryHighRisk: "VeryHighRisk",
	BandHigh:         "High",
	BandLow:          "Low",
	BandGood:         "Good",
	BandGreat:        "Great",
	BandExcellent:    "Excellent",
}

func (b Band) String() string {
	if name, ok := bandNames[b]; ok {
		return name
	}
	return bandNames[BandUnknown]
}

func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Colour is the display colour of a band.
type Colour string

const (
	ColourRed     Colour = "red"
	ColourYellow  Colour = "yellow"
	ColourGreen   Colour = "green"
	ColourMuted   Colour = "green-muted"
	ColourNeutral Colour = "neutral"
	ColourGrey    Colour = "grey"
)

// RiskBand is the derived classification of one score.
type RiskBand struct {
	Band     Band   `json:"band"`
	Badge    string `json:"badge"`
	RiskText string `json:"riskText"`
	Colour   Colour `json:"colour"`
}

// Label is the risk text, or "Unknown" when the score was absent.
func (r RiskBand) Label() string {
	if r.RiskText == "" {
		return "Unknown"
	}
	return r.RiskText
}

// Classify maps a score to its band. A nil (or NaN) score is unknown.
func Classify(score *float64) RiskBand {
	if score == nil || math.IsNaN(*score) {
		return RiskBand{Band: BandUnknown, Colour: ColourMuted}
	}
	return ClassifyValue(*score)
}

// ClassifyValue is Classify for a present score. The colour band and the badge
// disagree at exactly 40: the band is High while the badge reads
// "Very High Risk".
func ClassifyValue(score float64) RiskBand {
	r := RiskBand{Badge: BadgeLabel(score)}
	switch {
	case score < 40:
		r.Band, r.RiskText, r.Colour = BandVeryHighRisk, "Very High Risk", ColourRed
	case score < 53:
		r.Band, r.RiskText, r.Colour = BandHigh, "High Risk", ColourRed
	case score < 60:
		r.Band, r.RiskText, r.Colour = BandLow, "Low Risk", ColourYellow
	case score < 70:
		r.Band, r.RiskText, r.Colour = BandGood, "Good", ColourYellow
	case score < 80:
		r.Band, r.RiskText, r.Colour = BandGreat, "Great", ColourGreen
	default:
		r.Band, r.RiskText, r.Colour = BandExcellent, "Excellent", ColourGreen
	}
	return r
}

// BadgeLabel is the short badge text of a score. The High badge starts
// strictly above 40.
func BadgeLabel(score float64) string {
	switch {
	case score > 40 && score < 53:
		return "High"
	case score >= 53 && score < 60:
		return "Low"
	case score >= 60 && score < 70:
		return "Good"
	case score >= 70 && score < 80:
		return "Great"
	case score >= 80:
		return "Excellent"
	}
	return "Very High Risk"
}

// BadgeSentence renders the badge line of a score card.
func BadgeSentence(badge string) string {
	if badge == "" {
		return ""
	}
	article := "a"
	switch badge[0] {
	case 'A', 'E', 'I', 'O', 'U', 'a', 'e', 'i', 'o', 'u':
		article = "an"
	}
	return "This is " + article + " " + badge + " score."
}

// FormatScore renders a score with one decimal out of 100.
func FormatScore(s Subscore) string {
	if !s.Valid {
		return "Unknown"
	}
	return decimal.NewFromFloat(s.Value).StringFixed(1) + " / 100"
}

// rowColour is the three-way colour of a history row, keyed on its overall
// score. Absent and zero scores are grey.
func rowColour(overall Subscore) Colour {
	if !overall.Valid || overall.Value == 0 || math.IsNaN(overall.Value) {
		return ColourGrey
	}
	switch {
	case overall.Value < 53:
		return ColourRed
	case overall.Value < 70:
		return ColourYellow
	}
	return ColourNeutral
}
