package portalapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/ubiportal/ubiportal/pkg/businessunit"
	"github.com/ubiportal/ubiportal/pkg/scoring"
)

// Policy is the part of /portal/policy the portal core uses.
type Policy struct {
	OPID           int                 `json:"opid"`
	PolicyNo       string              `json:"policyNo"`
	PolicyRef      string              `json:"policyRef"`
	InceptionDate  string              `json:"inceptionDate"`
	BusinessUnitID int                 `json:"businessUnitId"`
	BusinessUnit   string              `json:"businessUnit"`
	Score          scoring.PolicyScore `json:"score"`
}

// Scores fetches the daily score records for a policy between from and to.
func (c *Client) Scores(ctx context.Context, opid int, from, to string) ([]scoring.ScoreDay, error) {
	q := url.Values{}
	q.Set("opid", itoa(opid))
	q.Set("f", from)
	q.Set("t", to)
	body, err := c.get(ctx, "/portal/score", q)
	if err != nil {
		return nil, err
	}
	return scoring.ParseScoreResponse(body)
}

// BusinessUnits lists the units the user can see.
func (c *Client) BusinessUnits(ctx context.Context) ([]businessunit.BusinessUnit, error) {
	body, err := c.get(ctx, "/portal/unit/business", nil)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("business units: expected a JSON array")
	}
	units := []businessunit.BusinessUnit{}
	res.ForEach(func(_, u gjson.Result) bool {
		units = append(units, businessunit.BusinessUnit{
			UnitID: int(u.Get("unitId").Int()),
			Name:   u.Get("name").String(),
		})
		return true
	})
	return units, nil
}

func (c *Client) Policy(ctx context.Context, opid int) (Policy, error) {
	body, err := c.get(ctx, "/portal/policy", url.Values{"opid": {itoa(opid)}})
	if err != nil {
		return Policy{}, err
	}
	return ParsePolicy(body, opid)
}

// ParsePolicy reads a /portal/policy response. opid is used when the body
// does not carry one.
func ParsePolicy(body []byte, opid int) (Policy, error) {
	if !gjson.ValidBytes(body) {
		return Policy{}, fmt.Errorf("policy %d: invalid JSON", opid)
	}
	doc := gjson.ParseBytes(body)
	pol := doc.Get("policy")
	p := Policy{
		OPID:           opid,
		PolicyNo:       pol.Get("policyNo").String(),
		PolicyRef:      pol.Get("policyRef").String(),
		InceptionDate:  pol.Get("inceptionDate").String(),
		BusinessUnitID: int(pol.Get("businessUnitId").Int()),
		BusinessUnit:   pol.Get("businessUnit").String(),
	}
	if id := pol.Get("opid"); id.Exists() {
		p.OPID = int(id.Int())
	}

	score := doc.Get("score")
	p.Score = scoring.PolicyScore{
		Overall:      numeric(score.Get("overall")),
		Speed:        numeric(score.Get("speed")),
		Brake:        numeric(score.Get("brake")),
		Night:        numeric(score.Get("night")),
		OverallBadge: score.Get("overallBadge").String(),
		SpeedBadge:   score.Get("speedBadge").String(),
		BrakeBadge:   score.Get("brakeBadge").String(),
		NightBadge:   score.Get("nightBadge").String(),
	}
	return p, nil
}

// numeric accepts a number or a numeric string.
func numeric(r gjson.Result) scoring.Subscore {
	switch r.Type {
	case gjson.Number:
		return scoring.Score(r.Num)
	case gjson.String:
		if v, err := strconv.ParseFloat(r.Str, 64); err == nil {
			return scoring.Score(v)
		}
	}
	return scoring.Subscore{}
}
