package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/businessunit"
	"github.com/ubiportal/ubiportal/pkg/geo"
	"github.com/ubiportal/ubiportal/pkg/polling"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
	"github.com/ubiportal/ubiportal/pkg/scoring"
	"github.com/ubiportal/ubiportal/pkg/storage"
	"github.com/ubiportal/ubiportal/pkg/trips"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps backend and scoring errors to responses. An unauthorised backend
// answer ends the session.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *portalapi.StatusError
	switch {
	case errors.Is(err, portalapi.ErrUnauthorized):
		if sess := sessionFrom(r); sess != nil {
			s.endSession(r.Context(), sess)
		}
		writeError(w, http.StatusUnauthorized, "session expired", nil)
	case errors.Is(err, scoring.ErrDuplicatePeriod):
		utils.Log.Errorf("Score data for %s is inconsistent: %v", r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "an error occurred", nil)
	case errors.Is(err, portalapi.ErrUnknownReport):
		writeError(w, http.StatusNotFound, "report not found", err)
	case errors.Is(err, scoring.ErrMalformedPayload), errors.As(err, &se):
		writeError(w, http.StatusBadGateway, "backend request failed", err)
	default:
		utils.Log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "an error occurred", nil)
	}
}

func (s *Server) endSession(ctx context.Context, sess *session) {
	if err := sess.api.SignOut(ctx); err != nil {
		utils.Log.Warnf("Sign out for %s failed: %v", sess.info.User.Name, err)
	}
	s.sessions.remove(sess.id)
}

func opidParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	opid, err := strconv.Atoi(chi.URLParam(r, "opid"))
	if err != nil || opid <= 0 {
		writeError(w, http.StatusBadRequest, "invalid policy id", nil)
		return 0, false
	}
	return opid, true
}

type CreateSessionRequest struct {
	Name       string `json:"name"`
	Unit       string `json:"unit"`
	MasterUser bool   `json:"masterUser"`
	Token      string `json:"token"`
	Exp        int64  `json:"exp"`
}

type SessionResponse struct {
	ID      string              `json:"id"`
	User    *businessunit.User  `json:"user"`
	Current businessunit.Choice `json:"current"`
	State   businessunit.State  `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "name and token are required", nil)
		return
	}

	user := &businessunit.User{Name: req.Name, Unit: req.Unit, MasterUser: req.MasterUser, Token: req.Token, Exp: req.Exp}
	store := s.DB.Scoped(user.Name)
	sess := &session{
		id:    uuid.New(),
		info:  businessunit.Session{User: user},
		units: businessunit.NewContext(store),
		store: store,
		api:   s.API.WithToken(req.Token),
	}

	if sess.expired(time.Now()) {
		writeError(w, http.StatusUnauthorized, "session expired", nil)
		return
	}
	if err := sess.units.Load(r.Context(), sess.api); err != nil {
		if errors.Is(err, portalapi.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "session expired", nil)
			return
		}
		utils.Log.Warnf("Could not load business units for %s: %v", user.Name, err)
		writeError(w, http.StatusBadGateway, "could not load business units", err)
		return
	}
	s.sessions.add(sess)

	writeJSON(w, http.StatusCreated, SessionResponse{
		ID:      sess.id.String(),
		User:    user,
		Current: sess.units.Current(r.Context(), sess.info),
		State:   sess.units.State(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.endSession(r.Context(), sessionFrom(r))
	w.WriteHeader(http.StatusNoContent)
}

const isoDate = "2006-01-02"

type ScoresResponse struct {
	Headline scoring.HeadlineCard `json:"headline"`
	History  scoring.History      `json:"history"`
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	window := scoring.DefaultWindowDays
	if v := q.Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window", nil)
			return
		}
		window = n
	}

	policy, err := sess.api.Policy(r.Context(), opid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	from, to := q.Get("f"), q.Get("t")
	if from == "" || to == "" {
		now := time.Now()
		if to == "" {
			to = now.Format(isoDate)
		}
		if from == "" {
			from = now.AddDate(0, 0, -window).Format(isoDate)
		}
	}
	days, err := sess.api.Scores(r.Context(), opid, from, to)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	card, err := scoring.BuildHeadlineCard(policy.Score, days, window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	history, err := scoring.BuildHistory(days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScoresResponse{Headline: card, History: history})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	policy, err := sess.api.Policy(r.Context(), opid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ref := storage.PolicyRef{OPID: policy.OPID, PolicyNo: policy.PolicyNo, PolicyRef: policy.PolicyRef}
	if err := sess.store.AddRecentPolicy(r.Context(), ref); err != nil {
		utils.Log.Warnf("Could not record recent policy %d: %v", opid, err)
	}
	writeJSON(w, http.StatusOK, policy)
}

type ReferralsResponse struct {
	Policy portalapi.Policy    `json:"policy"`
	Scope  businessunit.Choice `json:"scope"`
	Rows   json.RawMessage     `json:"rows"`
}

// handleReferrals shows a policy's telematics referrals. The policy's own
// business unit becomes the persisted choice, so later reports follow it.
func (s *Server) handleReferrals(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	policy, err := sess.api.Policy(r.Context(), opid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := sess.units.ApplyPolicyScope(r.Context(), policy.BusinessUnitID, policy.BusinessUnit); err != nil {
		utils.Log.Warnf("Could not apply business unit of policy %d: %v", opid, err)
	}

	resp := ReferralsResponse{Policy: policy, Scope: sess.units.Current(r.Context(), sess.info), Rows: json.RawMessage("[]")}
	if resp.Scope.Valid() {
		rows, err := sess.api.Report(r.Context(), "telematics-referrals", resp.Scope.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Rows = rows
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTripDates(w http.ResponseWriter, r *http.Request) {
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trips.Dates(r.Context(), sessionFrom(r).store, opid, time.Now()))
}

func (s *Server) handleSetTripDates(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	var req storage.TripDates
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	for key, v := range map[string]string{"from": req.From, "to": req.To} {
		if v == "" {
			continue
		}
		if err := sess.store.SetTripDate(r.Context(), key, v); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if err := sess.store.SetLastOPID(r.Context(), opid); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trips.Dates(r.Context(), sess.store, opid, time.Now()))
}

type TripsResponse struct {
	From  string           `json:"from"`
	To    string           `json:"to"`
	Valid bool             `json:"valid"`
	Trips []portalapi.Trip `json:"trips"`
}

// handleTrips lists a policy's trips. Explicit f and t are remembered for the
// policy; without them the remembered or default range is used. A range that
// is unset, reversed or longer than range days is not searched.
func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	dayRange, ok := dayRangeParam(w, q.Get("range"))
	if !ok {
		return
	}

	from, to := q.Get("f"), q.Get("t")
	if from != "" || to != "" {
		for key, v := range map[string]string{"from": from, "to": to} {
			if v == "" {
				continue
			}
			if err := sess.store.SetTripDate(r.Context(), key, v); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		if err := sess.store.SetLastOPID(r.Context(), opid); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if from == "" || to == "" {
		rng := trips.Dates(r.Context(), sess.store, opid, time.Now())
		if from == "" {
			from = rng.From.Format(isoDate)
		}
		if to == "" {
			to = rng.To.Format(isoDate)
		}
	}

	found, valid, err := trips.Search(r.Context(), sess.api, opid, from, to, dayRange)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TripsResponse{From: from, To: to, Valid: valid, Trips: found})
}

func (s *Server) handleTripRoute(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	opid, ok := opidParam(w, r)
	if !ok {
		return
	}
	unit := r.URL.Query().Get("unit")
	if unit == "" {
		unit = "mi"
	}
	route, err := trips.FetchRoute(r.Context(), sess.api, opid, chi.URLParam(r, "sdtm"), unit)
	if errors.Is(err, geo.ErrUnknownUnit) {
		writeError(w, http.StatusBadRequest, "invalid unit", err)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).units.State())
}

func (s *Server) handleCurrentUnit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	writeJSON(w, http.StatusOK, sess.units.Current(r.Context(), sess.info))
}

func (s *Server) handleSelectUnit(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var req businessunit.Choice
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := sess.units.SetBusinessUnitState(r.Context(), req.ID, req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.units.Current(r.Context(), sess.info))
}

func (s *Server) handleReportNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, portalapi.ReportNames())
}

type ReportResponse struct {
	Scope businessunit.Choice `json:"scope"`
	Rows  json.RawMessage     `json:"rows"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	name := chi.URLParam(r, "name")
	if _, ok := portalapi.Reports[name]; !ok {
		writeError(w, http.StatusNotFound, "report not found", nil)
		return
	}

	resp := ReportResponse{Scope: sess.units.Current(r.Context(), sess.info), Rows: json.RawMessage("[]")}
	if !resp.Scope.Valid() {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	rows, err := sess.api.Report(r.Context(), name, resp.Scope.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp.Rows = rows
	writeJSON(w, http.StatusOK, resp)
}

// handleReportSummary counts the rows of every report for the current unit.
func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	scope := sess.units.Current(r.Context(), sess.info)
	if !scope.Valid() {
		writeJSON(w, http.StatusOK, polling.Result{Counts: []polling.ReportCount{}})
		return
	}
	res, err := polling.PollReports(r.Context(), polling.Config{
		Fetcher: sess.api,
		UnitID:  scope.ID,
		Log:     utils.Log,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if !sess.info.User.MasterUser {
		writeJSON(w, http.StatusOK, []storage.PolicyRef{})
		return
	}
	recent, err := sess.store.RecentPolicies(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

func (s *Server) handleCSVCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dayRange, ok := dayRangeParam(w, q.Get("range"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": trips.CheckDateRange(q.Get("f"), q.Get("t"), dayRange)})
}

func dayRangeParam(w http.ResponseWriter, v string) (int, bool) {
	if v == "" {
		return trips.DefaultDayRange, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid range", nil)
		return 0, false
	}
	return n, true
}
