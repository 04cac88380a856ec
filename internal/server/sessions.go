package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/businessunit"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
	"github.com/ubiportal/ubiportal/pkg/storage"
)

// session is one signed-in browser. It owns the business unit context that
// the browser app would otherwise keep in memory.
type session struct {
	id    uuid.UUID
	info  businessunit.Session
	units *businessunit.Context
	store *storage.UserStore
	api   *portalapi.Client
}

// expired reports whether the user's token expiry, in unix seconds, has
// passed. Exp 0 never expires.
func (s *session) expired(now time.Time) bool {
	exp := s.info.User.Exp
	return exp > 0 && now.Unix() >= exp
}

// ensureUnits fetches the unit list again while it is empty, so one failed
// or empty load does not leave the session without a home unit.
func (s *session) ensureUnits(ctx context.Context) error {
	if len(s.units.State().BusinessUnits) > 0 {
		return nil
	}
	return s.units.Load(ctx, s.api)
}

type registry struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*session
}

func newRegistry() *registry {
	return &registry{byID: make(map[uuid.UUID]*session)}
}

func (r *registry) add(s *session) {
	r.mu.Lock()
	r.byID[s.id] = s
	r.mu.Unlock()
}

func (r *registry) get(id uuid.UUID) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

type sessionKey struct{}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(SessionHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid session", nil)
			return
		}
		sess, ok := s.sessions.get(id)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown session", nil)
			return
		}
		if sess.expired(time.Now()) {
			utils.Log.Infof("Session for %s has expired", sess.info.User.Name)
			s.endSession(r.Context(), sess)
			writeError(w, http.StatusUnauthorized, "session expired", nil)
			return
		}
		if err := sess.ensureUnits(r.Context()); err != nil {
			if errors.Is(err, portalapi.ErrUnauthorized) {
				s.endSession(r.Context(), sess)
				writeError(w, http.StatusUnauthorized, "session expired", nil)
				return
			}
			utils.Log.Warnf("Could not load business units for %s: %v", sess.info.User.Name, err)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session {
	sess, _ := r.Context().Value(sessionKey{}).(*session)
	return sess
}
