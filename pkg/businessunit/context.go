package businessunit

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ubiportal/ubiportal/internal/utils"
)

// UnitLister fetches the business units a user may see.
type UnitLister interface {
	BusinessUnits(ctx context.Context) ([]BusinessUnit, error)
}

// Context is the application-scoped business unit selection. Every report
// reads the current scope through it and every write goes through
// SetBusinessUnitState or ApplyPolicyScope.
type Context struct {
	mu       sync.RWMutex
	state    State
	store    ChoiceStore
	resolver Resolver
}

// NewContext returns a context in the loading state, as it is before the unit
// list has been fetched.
func NewContext(store ChoiceStore) *Context {
	return &Context{
		state:    State{IsLoading: true},
		store:    store,
		resolver: NewResolver(),
	}
}

// State returns a copy of the current state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	s.BusinessUnits = append([]BusinessUnit(nil), c.state.BusinessUnits...)
	if c.state.BusinessUnit != nil {
		u := *c.state.BusinessUnit
		s.BusinessUnit = &u
	}
	return s
}

// Dispatch applies an action to the shared state.
func (c *Context) Dispatch(a Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := Reduce(c.state, a)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Current resolves the business unit whose reports should be shown.
func (c *Context) Current(ctx context.Context, session Session) Choice {
	return c.resolver.Resolve(ctx, session, c.State(), c.store)
}

// SetBusinessUnitState records an explicit user selection. Ids <= 0 are
// ignored.
func (c *Context) SetBusinessUnitState(ctx context.Context, unitID int, name string) error {
	if unitID <= 0 {
		return nil
	}
	if c.store != nil {
		if err := c.store.SaveChoice(ctx, Choice{ID: unitID, Name: name}); err != nil {
			return err
		}
		if err := c.store.RemoveLegacy(ctx); err != nil {
			utils.Log.Warnf("Could not remove legacy business unit keys: %v", err)
		}
	}
	return c.Dispatch(Action{Type: UpdateBU, Unit: &BusinessUnit{UnitID: unitID, Name: name}})
}

// ApplyPolicyScope persists a policy's own business unit, bypassing the
// shared state. The next generic report resolves to this unit.
func (c *Context) ApplyPolicyScope(ctx context.Context, unitID int, name string) error {
	if unitID <= 0 || strings.TrimSpace(name) == "" || c.store == nil {
		return nil
	}
	utils.Log.Debugf("Applying policy business unit %d (%s)", unitID, name)
	return c.store.SaveChoice(ctx, Choice{ID: unitID, Name: name})
}

// Load fetches the unit list once, sorted by name, and selects the first unit
// when nothing is selected yet. It does nothing when the list is already
// populated.
func (c *Context) Load(ctx context.Context, lister UnitLister) error {
	if len(c.State().BusinessUnits) > 0 {
		return c.Dispatch(Action{Type: UpdateLoading, Loading: false})
	}
	if err := c.Dispatch(Action{Type: UpdateLoading, Loading: true}); err != nil {
		return err
	}
	defer func() {
		_ = c.Dispatch(Action{Type: UpdateLoading, Loading: false})
	}()

	units, err := lister.BusinessUnits(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(units, func(i, j int) bool {
		return strings.ToLower(units[i].Name) < strings.ToLower(units[j].Name)
	})
	if err := c.Dispatch(Action{Type: UpdateBUs, Units: units}); err != nil {
		return err
	}
	if c.State().BusinessUnit == nil && len(units) > 0 {
		first := units[0]
		return c.Dispatch(Action{Type: UpdateBU, Unit: &first})
	}
	return nil
}
