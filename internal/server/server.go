package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/ubiportal/ubiportal/internal/utils"
	"github.com/ubiportal/ubiportal/pkg/portalapi"
	"github.com/ubiportal/ubiportal/pkg/storage"
)

// SessionHeader carries the id returned by POST /api/session.
const SessionHeader = "X-Session-ID"

type Server struct {
	DB       *storage.DB
	API      *portalapi.Client
	Username string
	Password string
	// AllowedOrigins is passed to CORS. Empty allows any origin.
	AllowedOrigins []string

	sessions *registry
}

func New(db *storage.DB, api *portalapi.Client, user, pass string) *Server {
	return &Server{
		DB:       db,
		API:      api,
		Username: user,
		Password: pass,
		sessions: newRegistry(),
	}
}

// Router builds the HTTP handler. It is exported for tests and for embedding
// the API in another server.
func (s *Server) Router() http.Handler {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", SessionHeader},
		MaxAge:         300,
	}))
	r.Use(s.basicAuth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleCreateSession)
		r.Get("/trips/csv-check", s.handleCSVCheck)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Delete("/session", s.handleDeleteSession)

			r.Route("/policies/{opid}", func(r chi.Router) {
				r.Get("/", s.handlePolicy)
				r.Get("/scores", s.handleScores)
				r.Get("/referrals", s.handleReferrals)
				r.Get("/trips", s.handleTrips)
				r.Get("/trips/dates", s.handleTripDates)
				r.Put("/trips/dates", s.handleSetTripDates)
				r.Get("/trips/{sdtm}", s.handleTripRoute)
			})

			r.Get("/units", s.handleUnits)
			r.Get("/units/current", s.handleCurrentUnit)
			r.Put("/units/current", s.handleSelectUnit)

			r.Get("/reports", s.handleReportNames)
			r.Get("/reports/summary", s.handleReportSummary)
			r.Get("/reports/{name}", s.handleReport)
			r.Get("/recent", s.handleRecent)
		})
	})
	return r
}

func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	utils.Log.Infof("Starting server on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (s.Username == "" && s.Password == "") || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			utils.Log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
			}).Debug("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
