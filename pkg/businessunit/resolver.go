package businessunit

import (
	"context"
	"strings"

	"github.com/ubiportal/ubiportal/internal/utils"
)

// ChoiceStore persists the user's business unit choice across reloads.
type ChoiceStore interface {
	LoadChoice(ctx context.Context) (Choice, bool, error)
	SaveChoice(ctx context.Context, c Choice) error
	RemoveLegacy(ctx context.Context) error
}

// Strategy proposes a business unit. A result with ID 0 resolves nothing,
// though its name is kept as the fallback name.
type Strategy func(ctx context.Context, session Session, state State, store ChoiceStore) Choice

// PersistedChoice uses the stored choice. It applies whether or not the unit
// list is still loading.
func PersistedChoice(ctx context.Context, _ Session, _ State, store ChoiceStore) Choice {
	if store == nil {
		return Choice{}
	}
	c, ok, err := store.LoadChoice(ctx)
	if err != nil {
		utils.Log.Warnf("Could not read persisted business unit: %v", err)
		return Choice{}
	}
	if !ok {
		return Choice{}
	}
	return Choice{ID: c.ID, Name: strings.TrimSpace(c.Name)}
}

// ReducerSelection uses the unit currently selected in the shared state.
func ReducerSelection(_ context.Context, _ Session, state State, _ ChoiceStore) Choice {
	if state.IsLoading || state.BusinessUnit == nil {
		return Choice{}
	}
	return Choice{ID: state.BusinessUnit.UnitID, Name: strings.TrimSpace(state.BusinessUnit.Name)}
}

// SessionHomeUnit matches the user's home unit name against the unit list.
// The session's unit name is returned even when nothing matches.
func SessionHomeUnit(_ context.Context, session Session, state State, _ ChoiceStore) Choice {
	if state.IsLoading || session.User == nil {
		return Choice{}
	}
	name := strings.TrimSpace(session.User.Unit)
	if name == "" {
		return Choice{}
	}
	c := Choice{Name: name}
	for _, u := range state.BusinessUnits {
		if strings.TrimSpace(u.Name) == name {
			c.ID = u.UnitID
			break
		}
	}
	return c
}

// DefaultStrategies is the resolution precedence, highest first.
var DefaultStrategies = []Strategy{PersistedChoice, ReducerSelection, SessionHomeUnit}

// Resolver runs strategies in order; the first one producing an id wins.
type Resolver struct {
	Strategies []Strategy
}

// NewResolver builds a resolver with the default precedence.
func NewResolver() Resolver {
	return Resolver{Strategies: DefaultStrategies}
}

// Resolve returns the current business unit, or {0, name} when no strategy
// produced an id.
func (r Resolver) Resolve(ctx context.Context, session Session, state State, store ChoiceStore) Choice {
	var out Choice
	for _, s := range r.Strategies {
		c := s(ctx, session, state, store)
		if c.Name != "" {
			out.Name = c.Name
		}
		if c.ID != 0 {
			out.ID = c.ID
			return out
		}
	}
	return out
}
