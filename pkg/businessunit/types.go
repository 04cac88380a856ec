package businessunit

import (
	"errors"
	"fmt"
)

// BusinessUnit is an organisational scope a user may view reports for.
type BusinessUnit struct {
	UnitID int    `json:"unitId"`
	Name   string `json:"name"`
}

// Choice is a resolved or persisted business unit. ID 0 means no scope yet.
type Choice struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Valid reports whether the choice identifies a unit. Callers must check the
// id, not the name.
func (c Choice) Valid() bool { return c.ID > 0 }

// User is the authenticated staff user of a session.
type User struct {
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	MasterUser bool   `json:"masterUser"`
	Token      string `json:"-"`
	Exp        int64  `json:"exp"`
}

// Session is what the portal knows about the signed-in user.
type Session struct {
	User *User `json:"user"`
}

// State is the shared selection state. It is only changed through Reduce.
type State struct {
	BusinessUnit  *BusinessUnit  `json:"businessUnit"`
	BusinessUnits []BusinessUnit `json:"businessUnits"`
	IsLoading     bool           `json:"isLoading"`
}

// ActionType names a state transition.
type ActionType string

const (
	UpdateBU      ActionType = "UPDATE_BU"
	UpdateBUs     ActionType = "UPDATE_BUS"
	UpdateLoading ActionType = "UPDATE_LOADING"
)

// Action is a state transition and its payload. Only the field matching Type
// is read.
type Action struct {
	Type    ActionType
	Unit    *BusinessUnit
	Units   []BusinessUnit
	Loading bool
}

// ErrUnknownAction is returned by Reduce for an action it does not handle.
var ErrUnknownAction = errors.New("business unit action not found")

// Reduce applies an action and returns the new state. The input is not
// modified.
func Reduce(s State, a Action) (State, error) {
	switch a.Type {
	case UpdateBU:
		if a.Unit == nil {
			s.BusinessUnit = nil
		} else {
			u := *a.Unit
			s.BusinessUnit = &u
		}
	case UpdateBUs:
		s.BusinessUnits = append([]BusinessUnit(nil), a.Units...)
	case UpdateLoading:
		s.IsLoading = a.Loading
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	return s, nil
}
