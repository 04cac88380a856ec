package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
	"github.com/ubiportal/ubiportal/pkg/storage"
)

const policyBody = `{"policy":{"policyNo":"P-7","policyRef":"R-7","businessUnitId":9,"businessUnit":"Fleet"},
	"score":{"overall":50,"speed":60,"brake":70,"night":80,"overallBadge":"High Risk"}}`

const scoresBody = `{"scores":[
	{"scoresByDay":{"day":"01/03/24","data":[
		{"score":{"periodDays":90,"periodType":"Driving Days","usedForReporting":true,
		"scores":[{"type":"weighted-total","score":85},{"type":"speeding","score":39}]}}]}}]}`

const duplicateScoresBody = `{"scores":[
	{"scoresByDay":{"day":"01/03/24","data":[
		{"score":{"periodDays":90,"periodType":"Driving Days","usedForReporting":true,"scores":[]}},
		{"score":{"periodDays":90,"periodType":"Driving Days","usedForReporting":false,"scores":[]}}]}}]}`

const unitsBody = `[{"unitId":3,"name":"beta"},{"unitId":2,"name":"Alpha"}]`

const tripsBody = `{"monthlyTrips":[{"individualTrips":[
	{"startDTMutc":"1709283600000","localTimes":"09:00 - 09:30","distance":"10.2","duration":"0:30"},
	{"startDTMutc":"1709290800000","localTimes":"11:00 - 11:05","distance":"1.4","duration":"0:05"}]}]}`

const waypointsBody = `{"waypoints":[{"localDTM":"2024-03-01T09:00:00","lat":51.5,"lon":-0.12},
	{"localDTM":"2024-03-01T09:05:00","lat":51.51,"lon":-0.12}]}`

type fakeBackend struct {
	mu           sync.Mutex
	scores       string
	units        string
	unitFailures int
	unauthorised bool
	reportUIDs   []string
	scoreQueries []url.Values
	tripQueries  []url.Values
	signOuts     int
}

func (f *fakeBackend) seen() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reportUIDs...), f.signOuts
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if f.unauthorised && r.Method == http.MethodGet {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"errorMessage":"Unauthorised"}`)
		return
	}
	switch r.URL.Path {
	case "/portal/unit/business":
		if f.unitFailures > 0 {
			f.unitFailures--
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"errorMessage":"database unavailable"}`)
			return
		}
		io.WriteString(w, f.units)
	case "/portal/policy":
		io.WriteString(w, policyBody)
	case "/portal/score":
		f.scoreQueries = append(f.scoreQueries, r.URL.Query())
		io.WriteString(w, f.scores)
	case "/portal/policy/trips":
		f.tripQueries = append(f.tripQueries, r.URL.Query())
		io.WriteString(w, tripsBody)
	case "/portal/policy/trip":
		io.WriteString(w, waypointsBody)
	case "/portal/report/fnol", "/portal/policy/telematics/referrals":
		f.reportUIDs = append(f.reportUIDs, r.URL.Query().Get("uid"))
		io.WriteString(w, `[{"uid":`+r.URL.Query().Get("uid")+`}]`)
	case "/user/session":
		f.signOuts++
		io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"errorMessage":"not found"}`)
	}
}

type harness struct {
	t       *testing.T
	srv     *Server
	backend *fakeBackend
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := &fakeBackend{scores: scoresBody, units: unitsBody}
	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	db, err := storage.Open(filepath.Join(t.TempDir(), "server.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client, err := portalapi.New(portalapi.Config{BaseURL: api.URL, AppID: "test"})
	require.NoError(t, err)

	srv := New(db, client, "", "")
	return &harness{t: t, srv: srv, backend: backend, handler: srv.Router()}
}

func (h *harness) do(method, path, session string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(name, unit string, master bool) SessionResponse {
	h.t.Helper()
	return h.loginRequest(CreateSessionRequest{Name: name, Unit: unit, MasterUser: master, Token: "tok"})
}

func (h *harness) loginRequest(req CreateSessionRequest) SessionResponse {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/session", "", req)
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp SessionResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestCreateSessionLoadsUnits(t *testing.T) {
	h := newHarness(t)
	resp := h.login("jdoe", "beta", false)

	assert.NotEmpty(t, resp.ID)
	assert.False(t, resp.State.IsLoading)
	require.Len(t, resp.State.BusinessUnits, 2)
	assert.Equal(t, "Alpha", resp.State.BusinessUnits[0].Name)
	// first unit is selected by the load
	assert.Equal(t, 2, resp.Current.ID)
}

func TestCreateSessionValidation(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/session", "", CreateSessionRequest{Name: "jdoe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireSession(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/units", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/units", "not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/units", "0b5d3ad8-3f5e-4a5c-9d0a-7b1f3f1b6f10", nil).Code)
}

func TestSelectUnitPersists(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodPut, "/api/units/current", sess, map[string]any{"id": 3, "name": "beta"})
	require.Equal(t, http.StatusOK, rec.Code)

	// a new session for the same user resolves the persisted choice
	other := h.login("jdoe", "", false)
	assert.Equal(t, 3, other.Current.ID)
	assert.Equal(t, "beta", other.Current.Name)
}

func TestScores(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodGet, "/api/policies/7/scores?f=2024-01-01&t=2024-03-01", sess, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	h.backend.mu.Lock()
	assert.Equal(t, "2024-01-01", h.backend.scoreQueries[0].Get("f"))
	assert.Equal(t, "2024-03-01", h.backend.scoreQueries[0].Get("t"))
	h.backend.mu.Unlock()

	var body struct {
		Headline struct {
			Overall struct {
				Score float64 `json:"score"`
				Badge string  `json:"badge"`
			} `json:"overall"`
			Brake struct {
				Score string `json:"score"`
			} `json:"brake"`
			UsedDrivingDaysLabel string `json:"usedDrivingDaysLabel"`
		} `json:"headline"`
		History struct {
			Rows []json.RawMessage `json:"rows"`
		} `json:"history"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 85.0, body.Headline.Overall.Score)
	assert.Equal(t, "Excellent", body.Headline.Overall.Badge)
	assert.Equal(t, "N/A", body.Headline.Brake.Score)
	assert.Equal(t, "(90 driving days)", body.Headline.UsedDrivingDaysLabel)
	assert.Len(t, body.History.Rows, 1)
}

func TestScoresDuplicatePeriod(t *testing.T) {
	h := newHarness(t)
	h.backend.mu.Lock()
	h.backend.scores = duplicateScoresBody
	h.backend.mu.Unlock()
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodGet, "/api/policies/7/scores", sess, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var e ErrorResponse
	decode(t, rec, &e)
	assert.Equal(t, "an error occurred", e.Error)
}

func TestInvalidOPID(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/policies/abc", sess, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/policies/0/scores", sess, nil).Code)
}

func TestRecentPoliciesMasterOnly(t *testing.T) {
	h := newHarness(t)
	master := h.login("boss", "", true).ID
	staff := h.login("jdoe", "", false).ID

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/policies/7", master, nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/policies/7", staff, nil).Code)

	var recent []storage.PolicyRef
	decode(t, h.do(http.MethodGet, "/api/recent", master, nil), &recent)
	require.Len(t, recent, 1)
	assert.Equal(t, storage.PolicyRef{OPID: 7, PolicyNo: "P-7", PolicyRef: "R-7"}, recent[0])

	decode(t, h.do(http.MethodGet, "/api/recent", staff, nil), &recent)
	assert.Empty(t, recent)
}

func TestReferralsOverrideScope(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	var ref ReferralsResponse
	decode(t, h.do(http.MethodGet, "/api/policies/7/referrals", sess, nil), &ref)
	assert.Equal(t, 9, ref.Scope.ID)
	assert.JSONEq(t, `[{"uid":9}]`, string(ref.Rows))

	// later reports follow the policy's unit, not the selected one
	var rep ReportResponse
	decode(t, h.do(http.MethodGet, "/api/reports/fnol", sess, nil), &rep)
	assert.Equal(t, 9, rep.Scope.ID)
	uids, _ := h.backend.seen()
	assert.Equal(t, []string{"9", "9"}, uids)
}

func TestReportSummary(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodGet, "/api/reports/summary", sess, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		UnitID int `json:"unitId"`
		Counts []struct {
			Name  string `json:"name"`
			Rows  int    `json:"rows"`
			Error string `json:"error"`
		} `json:"counts"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 2, body.UnitID)
	require.Len(t, body.Counts, len(portalapi.Reports))
	for _, c := range body.Counts {
		switch c.Name {
		case "fnol", "telematics-referrals":
			assert.Equal(t, 1, c.Rows)
			assert.Empty(t, c.Error)
		default:
			assert.NotEmpty(t, c.Error, c.Name)
		}
	}
}

func TestReportWithoutScope(t *testing.T) {
	h := newHarness(t)
	h.backend.mu.Lock()
	h.backend.units = `[]`
	h.backend.mu.Unlock()

	// no units returned and no home unit: nothing resolves
	resp := h.login("jdoe", "", false)

	var rep ReportResponse
	decode(t, h.do(http.MethodGet, "/api/reports/fnol", resp.ID, nil), &rep)
	assert.Equal(t, 0, rep.Scope.ID)
	assert.JSONEq(t, `[]`, string(rep.Rows))
	uids, _ := h.backend.seen()
	assert.Empty(t, uids)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/reports/nope", resp.ID, nil).Code)
}

func TestUnauthorisedEndsSession(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID
	require.Equal(t, 1, h.srv.sessions.len())

	h.backend.mu.Lock()
	h.backend.unauthorised = true
	h.backend.mu.Unlock()

	rec := h.do(http.MethodGet, "/api/policies/7", sess, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, h.srv.sessions.len())
	_, signOuts := h.backend.seen()
	assert.Equal(t, 1, signOuts)
}

func TestTripDates(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodPut, "/api/policies/7/trips/dates", sess, storage.TripDates{From: "2024-03-01", To: "2024-03-04"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		DaysInPast int `json:"daysInPast"`
	}
	decode(t, h.do(http.MethodGet, "/api/policies/7/trips/dates", sess, nil), &body)
	assert.Equal(t, 0, body.DaysInPast)

	decode(t, h.do(http.MethodGet, "/api/policies/8/trips/dates", sess, nil), &body)
	assert.Equal(t, 7, body.DaysInPast)
}

func TestCSVCheck(t *testing.T) {
	h := newHarness(t)
	var body map[string]bool
	decode(t, h.do(http.MethodGet, "/api/trips/csv-check?f=2024-03-01&t=2024-03-05", "", nil), &body)
	assert.True(t, body["valid"])
	decode(t, h.do(http.MethodGet, "/api/trips/csv-check?f=2024-03-01&t=2024-03-05&range=2", "", nil), &body)
	assert.False(t, body["valid"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/trips/csv-check?range=x", "", nil).Code)
}

func TestBasicAuth(t *testing.T) {
	h := newHarness(t)
	h.srv.Username, h.srv.Password = "admin", "secret"
	handler := h.srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/trips/csv-check", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScoresDefaultRange(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/policies/7/scores", sess, nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/policies/7/scores?window=7&t=2024-03-08", sess, nil).Code)

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	require.Len(t, h.backend.scoreQueries, 2)
	now := time.Now()
	q := h.backend.scoreQueries[0]
	assert.Equal(t, "7", q.Get("opid"))
	assert.Equal(t, now.Format("2006-01-02"), q.Get("t"))
	assert.Equal(t, now.AddDate(0, 0, -90).Format("2006-01-02"), q.Get("f"))

	q = h.backend.scoreQueries[1]
	assert.Equal(t, "2024-03-08", q.Get("t"))
	assert.Equal(t, now.AddDate(0, 0, -7).Format("2006-01-02"), q.Get("f"))
}

func TestCreateSessionUnitLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.mu.Lock()
	h.backend.unitFailures = 1
	h.backend.mu.Unlock()

	rec := h.do(http.MethodPost, "/api/session", "", CreateSessionRequest{Name: "jdoe", Unit: "beta", Token: "tok"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, h.srv.sessions.len())

	// the backend has recovered
	resp := h.login("jdoe", "beta", false)
	assert.Len(t, resp.State.BusinessUnits, 2)
}

func TestEmptyUnitListIsReloaded(t *testing.T) {
	h := newHarness(t)
	h.backend.mu.Lock()
	h.backend.units = `[]`
	h.backend.mu.Unlock()

	resp := h.login("jdoe", "beta", false)
	assert.Empty(t, resp.State.BusinessUnits)
	assert.Equal(t, 0, resp.Current.ID)

	h.backend.mu.Lock()
	h.backend.units = unitsBody
	h.backend.unitFailures = 1
	h.backend.mu.Unlock()

	// a failed reload is logged and the request still served
	var state struct {
		BusinessUnits []json.RawMessage `json:"businessUnits"`
	}
	rec := h.do(http.MethodGet, "/api/units", resp.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &state)
	assert.Empty(t, state.BusinessUnits)

	decode(t, h.do(http.MethodGet, "/api/units", resp.ID, nil), &state)
	assert.Len(t, state.BusinessUnits, 2)

	var current struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	decode(t, h.do(http.MethodGet, "/api/units/current", resp.ID, nil), &current)
	assert.Equal(t, 2, current.ID)
	assert.Equal(t, "Alpha", current.Name)
}

func TestExpiredSessionSignsOut(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/session", "", CreateSessionRequest{Name: "jdoe", Token: "tok", Exp: time.Now().Add(-time.Minute).Unix()})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	live := h.loginRequest(CreateSessionRequest{Name: "jdoe", Token: "tok", Exp: time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/units", live.ID, nil).Code)

	sess := h.login("asmith", "", false)
	s, ok := h.srv.sessions.get(uuid.MustParse(sess.ID))
	require.True(t, ok)
	s.info.User.Exp = time.Now().Add(-time.Second).Unix()

	rec = h.do(http.MethodGet, "/api/units", sess.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	_, ok = h.srv.sessions.get(uuid.MustParse(sess.ID))
	assert.False(t, ok)
	_, signOuts := h.backend.seen()
	assert.Equal(t, 1, signOuts)

	// no expiry
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/units", h.login("bjones", "", false).ID, nil).Code)
}

func TestTripsRememberRangeAndSearch(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodGet, "/api/policies/7/trips?f=2024-03-01&t=2024-03-05", sess, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body TripsResponse
	decode(t, rec, &body)
	assert.True(t, body.Valid)
	require.Len(t, body.Trips, 2)
	assert.Equal(t, "1709283600000", body.Trips[0].StartDTMUTC)

	// the range is remembered for this policy
	decode(t, h.do(http.MethodGet, "/api/policies/7/trips", sess, nil), &body)
	assert.Equal(t, "2024-03-01", body.From)
	assert.Equal(t, "2024-03-05", body.To)

	h.backend.mu.Lock()
	require.Len(t, h.backend.tripQueries, 2)
	q := h.backend.tripQueries[0]
	h.backend.mu.Unlock()
	assert.Equal(t, "7", q.Get("opid"))
	assert.Equal(t, "2024-03-01", q.Get("f"))
	assert.Equal(t, "2024-03-05", q.Get("t"))
}

func TestTripsOutOfRangeIsNotFetched(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	for _, path := range []string{
		"/api/policies/7/trips?f=2024-03-01&t=2024-03-20",
		"/api/policies/7/trips?f=2024-03-09&t=2024-03-01",
		"/api/policies/7/trips?f=2024-03-01&t=2024-03-05&range=2",
	} {
		rec := h.do(http.MethodGet, path, sess, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var body TripsResponse
		decode(t, rec, &body)
		assert.False(t, body.Valid, path)
		assert.Empty(t, body.Trips, path)
	}
	h.backend.mu.Lock()
	assert.Empty(t, h.backend.tripQueries)
	h.backend.mu.Unlock()

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/policies/7/trips?range=-1", sess, nil).Code)
}

func TestTripRoute(t *testing.T) {
	h := newHarness(t)
	sess := h.login("jdoe", "", false).ID

	rec := h.do(http.MethodGet, "/api/policies/7/trips/1709283600000?unit=m", sess, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Waypoints []json.RawMessage `json:"waypoints"`
		Distance  float64           `json:"distance"`
		Unit      string            `json:"unit"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Waypoints, 2)
	assert.InDelta(t, 1113, body.Distance, 2)
	assert.Equal(t, "m", body.Unit)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/policies/7/trips/1709283600000?unit=league", sess, nil).Code)
}
