package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/explorer"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
)

// Explorer is the dashboard service behind the API routes.
type Explorer interface {
	sharedobs.ReadinessChecker

	Catalog() (explorer.CatalogView, error)
	Seasons(sel domain.ClimateSelection) ([]string, error)
	EnergyIcon(name string) (string, error)
	Regions() ([]string, error)
	Region(name string) (explorer.RegionView, error)
	SearchPlace(ctx context.Context, query string) (domain.Place, bool, error)

	CreateSession() explorer.SessionView
	Session(id string) (explorer.SessionView, error)
	DeleteSession(id string) error
	Apply(id string, a domain.Action) (explorer.SessionView, error)
	Click(ctx context.Context, id string, lat, lon float64) (explorer.ClickResult, error)
	MapView(id string) (explorer.MapView, error)
	HazardPNG(id string) (*overlay.Overlay, error)
	Dashboard(id string) (domain.Dashboard, error)
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Server exposes the dashboard API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	svc        Explorer
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API routes plus /healthz,
// /readyz, and /metrics.
func NewServer(addr string, svc Explorer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(svc))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/catalog/seasons", s.handleSeasons)
	mux.HandleFunc("GET /api/energy/{name}/icon", s.handleEnergyIcon)
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("GET /api/regions/{name}", s.handleRegion)
	mux.HandleFunc("GET /api/places", s.handlePlaces)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/actions", s.handleAction)
	mux.HandleFunc("POST /api/sessions/{id}/click", s.handleClick)
	mux.HandleFunc("GET /api/sessions/{id}/map", s.handleMap)
	mux.HandleFunc("GET /api/sessions/{id}/overlays/hazard.png", s.handleHazardPNG)
	mux.HandleFunc("GET /api/sessions/{id}/dashboard", s.handleDashboard)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	view, err := s.svc.Catalog()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSeasons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seasons, err := s.svc.Seasons(domain.ClimateSelection{
		Variable: q.Get("variable"),
		Scenario: q.Get("scenario"),
		Years:    q.Get("years"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"seasons": seasons})
}

func (s *Server) handleEnergyIcon(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.EnergyIcon(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	names, err := s.svc.Regions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"regions": names})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Region(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter q is required"))
		return
	}
	place, ok, err := s.svc.SearchPlace(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no place found for "+query))
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	view := s.svc.CreateSession()
	w.Header().Set("Location", "/api/sessions/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSession(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var a domain.Action
	if !decodeBody(w, r, &a) {
		return
	}
	view, err := s.svc.Apply(r.PathValue("id"), a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type clickRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("lat and lon are required"))
		return
	}
	res, err := s.svc.Click(r.Context(), r.PathValue("id"), *req.Lat, *req.Lon)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.MapView(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHazardPNG(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.HazardPNG(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(ov.PNG) //nolint:errcheck // client went away
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Dashboard(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// decodeBody reads a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

var _ Explorer = (*explorer.Service)(nil)
