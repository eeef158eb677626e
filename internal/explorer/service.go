// Package explorer ties the dashboard state machine to the data on disk:
// file catalog, region boundaries, hazard overlays, and place names.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
	"github.com/couchcryptid/climate-risk-explorer/internal/session"
)

// siteCacheSize bounds the decoded energy shapefiles kept in memory.
const siteCacheSize = 16

var (
	// ErrNotReady is returned until the region boundaries are loaded.
	ErrNotReady = errors.New("region boundaries not loaded yet")
	// ErrNoHazard is returned for overlay requests without a hazard layer.
	ErrNoHazard = errors.New("no hazard layer selected")
)

// EventPublisher accepts interaction events for asynchronous delivery.
type EventPublisher interface {
	Publish(e domain.InteractionEvent) bool
}

// Deps are the collaborators of a Service. Geocoder and Events may be nil.
type Deps struct {
	Catalog  *catalog.Catalog
	Sessions *session.Store
	Overlays *overlay.Renderer
	Geocoder domain.Geocoder
	Country  string
	Events   EventPublisher
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Service implements the dashboard operations behind the HTTP API.
type Service struct {
	catalog  *catalog.Catalog
	sessions *session.Store
	overlays *overlay.Renderer
	geocoder domain.Geocoder
	country  string
	events   EventPublisher
	metrics  *observability.Metrics
	logger   *slog.Logger

	regions atomic.Pointer[region.Store]
	sites   *lru.Cache[string, []region.Site]
}

// New creates a Service. Region-dependent operations fail with ErrNotReady
// until SetRegions is called.
func New(d Deps) *Service {
	sites, _ := lru.New[string, []region.Site](siteCacheSize)
	return &Service{
		catalog:  d.Catalog,
		sessions: d.Sessions,
		overlays: d.Overlays,
		geocoder: d.Geocoder,
		country:  d.Country,
		events:   d.Events,
		metrics:  d.Metrics,
		logger:   d.Logger,
		sites:    sites,
	}
}

// SetRegions installs the loaded region boundaries.
func (s *Service) SetRegions(store *region.Store) {
	s.regions.Store(store)
	s.logger.Info("regions loaded", "count", len(store.Names()))
}

// CheckReadiness reports whether the region boundaries are loaded.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.regions.Load() == nil {
		return ErrNotReady
	}
	return nil
}

func (s *Service) regionStore() (*region.Store, error) {
	r := s.regions.Load()
	if r == nil {
		return nil, ErrNotReady
	}
	return r, nil
}

// SessionView is a session state with its derived page layout.
type SessionView struct {
	ID              string               `json:"id"`
	State           domain.AppState      `json:"state"`
	Layout          domain.Layout        `json:"layout"`
	Legend          []domain.LegendEntry `json:"legend"`
	DashboardStatus string               `json:"dashboard_status,omitempty"`
}

func newSessionView(id string, st domain.AppState) SessionView {
	return SessionView{
		ID:              id,
		State:           st,
		Layout:          domain.LayoutOf(st),
		Legend:          domain.Legend(st),
		DashboardStatus: domain.DashboardStatus(st),
	}
}

// CreateSession starts a new dashboard session.
func (s *Service) CreateSession() SessionView {
	id, st := s.sessions.Create()
	return newSessionView(id, st)
}

// Session returns the current view of session id.
func (s *Service) Session(id string) (SessionView, error) {
	st, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	return newSessionView(id, st), nil
}

// DeleteSession drops session id.
func (s *Service) DeleteSession(id string) error {
	return s.sessions.Delete(id)
}

// Apply validates a client action against the catalog and regions, resolves
// file selections to paths, and applies it to session id.
func (s *Service) Apply(id string, a domain.Action) (SessionView, error) {
	resolved, err := s.resolve(a)
	if err != nil {
		s.metrics.StateActions.WithLabelValues(string(a.Type), "rejected").Inc()
		return SessionView{}, err
	}
	return s.apply(id, resolved)
}

func (s *Service) apply(id string, a domain.Action) (SessionView, error) {
	st, err := s.sessions.Update(id, func(st domain.AppState) (domain.AppState, error) {
		return domain.Update(st, a)
	})
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			s.metrics.StateActions.WithLabelValues(string(a.Type), "rejected").Inc()
		}
		return SessionView{}, err
	}
	s.metrics.StateActions.WithLabelValues(string(a.Type), "applied").Inc()
	s.publish(id, a.Type, st)
	return newSessionView(id, st), nil
}

func (s *Service) publish(id string, t domain.ActionType, st domain.AppState) {
	// map_rendered is bookkeeping of the map client, not a user interaction.
	if s.events == nil || t == domain.ActionMapRendered {
		return
	}
	if !s.events.Publish(domain.NewInteractionEvent(id, t, st)) {
		s.logger.Warn("interaction event dropped", "session", id, "action", t)
	}
}

// resolve checks names against the option lists and turns selections that
// name files into actions that carry them.
func (s *Service) resolve(a domain.Action) (domain.Action, error) {
	opts := s.catalog.Options()
	switch a.Type {
	case domain.ActionSelectClimate:
		if a.Climate == nil {
			return a, fmt.Errorf("%w: climate selection is required", domain.ErrInvalidAction)
		}
		label, path, err := s.catalog.ResolveClimate(*a.Climate)
		if err != nil {
			return a, err
		}
		return domain.Action{Type: domain.ActionSelectHazard, Label: label, File: path}, nil

	case domain.ActionSelectHazard:
		return a, fmt.Errorf("%w: hazard layers are chosen with select_climate", domain.ErrInvalidAction)

	case domain.ActionSelectEnergy:
		asset, err := s.catalog.ResolveEnergy(a.Name)
		if err != nil {
			return a, err
		}
		a.File = asset.File
		return a, nil

	case domain.ActionSelectBasemap:
		if !opts.HasBasemap(a.Name) {
			return a, fmt.Errorf("%w: unknown basemap %q", domain.ErrInvalidAction, a.Name)
		}

	case domain.ActionSelectAgriculture:
		if !opts.HasCrop(a.Crop, a.Detail) {
			return a, fmt.Errorf("%w: unknown crop layer %q - %q", domain.ErrInvalidAction, a.Crop, a.Detail)
		}

	case domain.ActionSelectRegion, domain.ActionClickRegion:
		regions, err := s.regionStore()
		if err != nil {
			return a, err
		}
		if !regions.Has(a.Name) {
			return a, fmt.Errorf("%w: %q", region.ErrUnknownRegion, a.Name)
		}
	}
	return a, nil
}

// ClickResult is the outcome of a map click.
type ClickResult struct {
	Place   domain.Place `json:"place"`
	Session SessionView  `json:"session"`
}

// Click selects the region under a map click and names the clicked place.
// A click outside every region leaves the session unchanged.
func (s *Service) Click(ctx context.Context, id string, lat, lon float64) (ClickResult, error) {
	regions, err := s.regionStore()
	if err != nil {
		return ClickResult{}, err
	}

	place := domain.Place{Lat: lat, Lon: lon}
	var view SessionView
	if name, ok := regions.Lookup(lat, lon); ok {
		place.Region = name
		view, err = s.apply(id, domain.Action{Type: domain.ActionClickRegion, Name: name})
	} else {
		view, err = s.Session(id)
	}
	if err != nil {
		return ClickResult{}, err
	}

	place = domain.EnrichPlace(ctx, place, s.geocoder, s.logger)
	return ClickResult{Place: place, Session: view}, nil
}

// SearchPlace forward-geocodes a place name within the configured country
// and reports the region it falls in. ok is false when nothing was found.
func (s *Service) SearchPlace(ctx context.Context, query string) (domain.Place, bool, error) {
	regions, err := s.regionStore()
	if err != nil {
		return domain.Place{}, false, err
	}
	place, ok := domain.LocatePlace(ctx, query, s.country, s.geocoder, s.logger)
	if !ok {
		return place, false, nil
	}
	if name, found := regions.Lookup(place.Lat, place.Lon); found {
		place.Region = name
	}
	return place, true, nil
}

// loadSites reads an energy shapefile, reusing the last read while the file
// is unchanged.
func (s *Service) loadSites(path string) ([]region.Site, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open energy shapefile: %w", err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if sites, ok := s.sites.Get(key); ok {
		return sites, nil
	}
	sites, err := region.LoadSites(path)
	if err != nil {
		return nil, err
	}
	s.sites.Add(key, sites)
	return sites, nil
}
