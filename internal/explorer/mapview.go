package explorer

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
)

// Initial map position.
var (
	DefaultCenter = [2]float64{27.7, 85.3}
	DefaultZoom   = 5
)

// Marker icon geometry in pixels.
const (
	IconSize   = 30
	IconAnchor = 12
	// DefaultIcon is the Font Awesome glyph used when an asset folder
	// carries no PNG icon.
	DefaultIcon = "bolt"
)

// HazardOverlay positions the classified hazard image on the map.
type HazardOverlay struct {
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Extent  domain.Extent `json:"extent"`
	Opacity float64       `json:"opacity"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
}

// Marker is one energy site.
type Marker struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Tooltip string  `json:"tooltip"`
	IconURL string  `json:"icon_url,omitempty"`
	Icon    string  `json:"icon,omitempty"`
}

// MapView is everything the map client draws for one session.
type MapView struct {
	Center     [2]float64                `json:"center"`
	Zoom       int                       `json:"zoom"`
	Basemap    *Basemap                  `json:"basemap"`
	Hazard     *HazardOverlay            `json:"hazard,omitempty"`
	Markers    []Marker                  `json:"markers"`
	IconSize   int                       `json:"icon_size"`
	IconAnchor int                       `json:"icon_anchor"`
	Mask       *region.FeatureCollection `json:"mask"`
	Regions    *region.FeatureCollection `json:"regions"`
	FitBounds  domain.Bounds             `json:"fit_bounds"`
	FlyTo      bool                      `json:"fly_to"`
	Warnings   []string                  `json:"warnings,omitempty"`
}

// MapView composes the map of session id. A pending fly-to is consumed: the
// next view of the same session only fits the bounds.
func (s *Service) MapView(id string) (MapView, error) {
	regions, err := s.regionStore()
	if err != nil {
		return MapView{}, err
	}
	st, err := s.sessions.Get(id)
	if err != nil {
		return MapView{}, err
	}

	v := MapView{
		Center:     DefaultCenter,
		Zoom:       DefaultZoom,
		Markers:    []Marker{},
		IconSize:   IconSize,
		IconAnchor: IconAnchor,
	}
	if b, ok := basemapFor(st.SelectedBasemap, st.Opacity(domain.LayerBasemap)); ok {
		v.Basemap = &b
	}

	var warn string
	if v.Hazard, warn = s.hazardOverlay(id, st); warn != "" {
		v.Warnings = append(v.Warnings, warn)
	}
	if warn = s.addMarkers(&v, st); warn != "" {
		v.Warnings = append(v.Warnings, warn)
	}

	// An unknown selection falls back to every region.
	selected := st.SelectedRegion
	if !regions.Has(selected) {
		selected = ""
	}
	if v.Mask, err = regions.MaskFeature(selected); err != nil {
		return MapView{}, err
	}
	if v.Regions, err = regions.Features(selected); err != nil {
		return MapView{}, err
	}
	v.FitBounds = regions.FitBounds(selected)
	v.FlyTo = st.SelectedRegion != "" && domain.ShouldFlyTo(st)

	if st.LastZoomedRegion != "" {
		rendered := domain.Action{Type: domain.ActionMapRendered, Name: st.LastZoomedRegion}
		if _, err := s.apply(id, rendered); err != nil {
			return MapView{}, err
		}
	}
	return v, nil
}

// hazardOverlay returns the overlay of the hazard layer, or a warning when
// the raster cannot be rendered.
func (s *Service) hazardOverlay(id string, st domain.AppState) (*HazardOverlay, string) {
	layer, ok := st.Layer(domain.LayerHazard)
	if !ok || st.HazardFile == "" {
		return nil, ""
	}
	ov, err := s.overlays.Render(st.HazardFile)
	if err != nil {
		return nil, hazardWarning(st.HazardFile, err)
	}
	return &HazardOverlay{
		Name:    layer.Label,
		URL:     "/api/sessions/" + url.PathEscape(id) + "/overlays/hazard.png",
		Extent:  ov.Extent(),
		Opacity: layer.Opacity,
		Width:   ov.Width,
		Height:  ov.Height,
	}, ""
}

func hazardWarning(path string, err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return "Hazard file not found: " + path
	}
	return fmt.Sprintf("Failed to overlay hazard raster: %v", err)
}

// addMarkers places the sites of a visible energy shapefile. It returns a
// warning when the shapefile cannot be read.
func (s *Service) addMarkers(v *MapView, st domain.AppState) string {
	layer, ok := st.Layer(domain.LayerEnergy)
	if !ok || !layer.Visible() || !strings.EqualFold(filepath.Ext(st.EnergyFile), ".shp") {
		return ""
	}
	sites, err := s.loadSites(st.EnergyFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ""
		}
		return fmt.Sprintf("Failed to overlay energy layer: %v", err)
	}

	iconURL := ""
	if _, err := s.EnergyIcon(layer.Label); err == nil {
		iconURL = "/api/energy/" + url.PathEscape(layer.Label) + "/icon"
	}
	for _, site := range sites {
		m := Marker{Lat: site.Lat, Lon: site.Lon, Tooltip: site.Name, IconURL: iconURL}
		if iconURL == "" {
			m.Icon = DefaultIcon
		}
		v.Markers = append(v.Markers, m)
	}
	return ""
}

// HazardPNG returns the encoded overlay image of session id.
func (s *Service) HazardPNG(id string) (*overlay.Overlay, error) {
	st, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if !st.HasLayer(domain.LayerHazard) || st.HazardFile == "" {
		return nil, ErrNoHazard
	}
	return s.overlays.Render(st.HazardFile)
}

// RegionView is one region's outline and bounds.
type RegionView struct {
	Name     string                    `json:"name"`
	Bounds   domain.Bounds             `json:"bounds"`
	Features *region.FeatureCollection `json:"features"`
}

// Regions returns the sorted region names.
func (s *Service) Regions() ([]string, error) {
	regions, err := s.regionStore()
	if err != nil {
		return nil, err
	}
	return regions.Names(), nil
}

// Region returns the outline of one region.
func (s *Service) Region(name string) (RegionView, error) {
	regions, err := s.regionStore()
	if err != nil {
		return RegionView{}, err
	}
	b, err := regions.Bounds(name)
	if err != nil {
		return RegionView{}, err
	}
	fc, err := regions.Features(name)
	if err != nil {
		return RegionView{}, err
	}
	return RegionView{Name: name, Bounds: b, Features: fc}, nil
}
