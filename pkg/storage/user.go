package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/ubiportal/ubiportal/pkg/businessunit"
)

// ErrBadTripDateKey is returned for a trip date key other than "from" or "to".
var ErrBadTripDateKey = errors.New("trip date key must be from or to")

// UserStore is the view of the store for a single user.
type UserStore struct {
	db    *DB
	owner string
}

// Scoped binds the store to owner.
func (d *DB) Scoped(owner string) *UserStore {
	return &UserStore{db: d, owner: owner}
}

func (u *UserStore) Owner() string { return u.owner }

// LoadChoice reads the persisted business unit choice.
func (u *UserStore) LoadChoice(ctx context.Context) (businessunit.Choice, bool, error) {
	raw, ok, err := u.db.GetItem(ctx, u.owner, KeyBusinessUnit)
	if err != nil || !ok || raw == "" {
		return businessunit.Choice{}, false, err
	}
	if !gjson.Valid(raw) {
		return businessunit.Choice{}, false, fmt.Errorf("stored %s is not valid JSON", KeyBusinessUnit)
	}
	res := gjson.Parse(raw)
	c := businessunit.Choice{
		ID:   int(res.Get("id").Int()),
		Name: res.Get("name").String(),
	}
	return c, true, nil
}

// SaveChoice persists the choice as {"id":..,"name":..}.
func (u *UserStore) SaveChoice(ctx context.Context, c businessunit.Choice) error {
	blob, err := sjson.Set("{}", "id", c.ID)
	if err != nil {
		return err
	}
	if blob, err = sjson.Set(blob, "name", c.Name); err != nil {
		return err
	}
	return u.db.SetItem(ctx, u.owner, KeyBusinessUnit, blob)
}

// RemoveLegacy drops the business unit keys older portal versions wrote.
func (u *UserStore) RemoveLegacy(ctx context.Context) error {
	if err := u.db.RemoveItem(ctx, u.owner, KeyLegacyBusinessUnitID); err != nil {
		return err
	}
	return u.db.RemoveItem(ctx, u.owner, KeyLegacyBusinessUnitName)
}

// RecentPolicies returns the recently viewed policies, newest first.
func (u *UserStore) RecentPolicies(ctx context.Context) ([]PolicyRef, error) {
	raw, ok, err := u.db.GetItem(ctx, u.owner, KeyRecentPolicies)
	if err != nil || !ok || raw == "" {
		return []PolicyRef{}, err
	}
	var out []PolicyRef
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("stored %s: %w", KeyRecentPolicies, err)
	}
	return out, nil
}

// AddRecentPolicy puts p first in the recently viewed list, dropping any
// older entry with the same OPID and keeping at most MaxRecentPolicies.
func (u *UserStore) AddRecentPolicy(ctx context.Context, p PolicyRef) error {
	existing, err := u.RecentPolicies(ctx)
	if err != nil {
		return err
	}
	out := []PolicyRef{p}
	for _, row := range existing {
		if len(out) >= MaxRecentPolicies {
			break
		}
		if row.OPID != p.OPID {
			out = append(out, row)
		}
	}
	blob, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return u.db.SetItem(ctx, u.owner, KeyRecentPolicies, string(blob))
}

// TripDates returns the remembered trip search range.
func (u *UserStore) TripDates(ctx context.Context) (TripDates, error) {
	raw, ok, err := u.db.GetItem(ctx, u.owner, KeyTripDates)
	if err != nil || !ok || raw == "" {
		return TripDates{}, err
	}
	res := gjson.Parse(raw)
	return TripDates{From: res.Get("from").String(), To: res.Get("to").String()}, nil
}

// SetTripDate updates one end of the remembered trip search range.
func (u *UserStore) SetTripDate(ctx context.Context, key, value string) error {
	dates, err := u.TripDates(ctx)
	if err != nil {
		return err
	}
	switch key {
	case "from":
		dates.From = value
	case "to":
		dates.To = value
	default:
		return fmt.Errorf("%w: %q", ErrBadTripDateKey, key)
	}
	blob, err := json.Marshal(dates)
	if err != nil {
		return err
	}
	return u.db.SetItem(ctx, u.owner, KeyTripDates, string(blob))
}

// LastOPID is the policy whose trips were last searched, or 0.
func (u *UserStore) LastOPID(ctx context.Context) (int, error) {
	raw, ok, err := u.db.GetItem(ctx, u.owner, KeyLastOPID)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (u *UserStore) SetLastOPID(ctx context.Context, opid int) error {
	return u.db.SetItem(ctx, u.owner, KeyLastOPID, strconv.Itoa(opid))
}
