package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidAction is returned by Update for malformed or unknown actions.
var ErrInvalidAction = errors.New("invalid action")

// AppState is the complete dashboard state of one browser session.
type AppState struct {
	SplashShown       bool    `json:"splash_shown"`
	LeftPanel         Panel   `json:"left_panel"`
	ShowDashboard     bool    `json:"show_dashboard"`
	DashboardExpanded bool    `json:"dashboard_expanded"`
	AgriSelected      bool    `json:"agri_selected"`
	EnergySelected    bool    `json:"energy_selected"`
	Layers            []Layer `json:"layers"`
	SelectedBasemap   string  `json:"selected_basemap"`
	SelectedRegion    string  `json:"selected_region,omitempty"`
	LastZoomedRegion  string  `json:"last_zoomed_region,omitempty"`
	ShowResetConfirm  bool    `json:"show_reset_confirm"`

	HazardFile string `json:"hazard_file,omitempty"`
	EnergyFile string `json:"energy_file,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultState is the state of a fresh session.
func DefaultState() AppState {
	return AppState{
		Layers:          []Layer{},
		SelectedBasemap: BasemapOpenStreetMap,
		UpdatedAt:       clock.Now(),
	}
}

// Layer returns the layer in slot k.
func (s AppState) Layer(k LayerKey) (Layer, bool) {
	for _, l := range s.Layers {
		if l.Key == k {
			return l, true
		}
	}
	return Layer{}, false
}

// HasLayer reports whether slot k is filled.
func (s AppState) HasLayer(k LayerKey) bool {
	_, ok := s.Layer(k)
	return ok
}

// Opacity returns the opacity of slot k, 1.0 when the slot is empty.
func (s AppState) Opacity(k LayerKey) float64 {
	if l, ok := s.Layer(k); ok {
		return l.Opacity
	}
	return 1.0
}

func (s AppState) clone() AppState {
	s.Layers = slices.Clone(s.Layers)
	if s.Layers == nil {
		s.Layers = []Layer{}
	}
	return s
}

// putLayer replaces slot l.Key in place or appends it.
func (s *AppState) putLayer(l Layer) {
	for i := range s.Layers {
		if s.Layers[i].Key == l.Key {
			s.Layers[i] = l
			return
		}
	}
	s.Layers = append(s.Layers, l)
}

func (s *AppState) dropLayer(k LayerKey) {
	s.Layers = slices.DeleteFunc(s.Layers, func(l Layer) bool { return l.Key == k })
}

// addLayer is the legend rule shared by every data layer: re-adding the same
// label is a no-op, a new hazard layer replaces the old one at the end of the
// legend, and every newly added layer starts at DefaultLayerOpacity.
func (s *AppState) addLayer(k LayerKey, label string) {
	if l, ok := s.Layer(k); ok && l.Label == label {
		return
	}
	if k == LayerHazard {
		s.dropLayer(LayerHazard)
	}
	s.putLayer(Layer{Key: k, Label: label, Opacity: DefaultLayerOpacity})
}

// ActionType names a state transition.
type ActionType string

const (
	ActionDismissSplash     ActionType = "dismiss_splash"
	ActionOpenPanel         ActionType = "open_panel"
	ActionClosePanel        ActionType = "close_panel"
	ActionToggleDashboard   ActionType = "toggle_dashboard"
	ActionExpandDashboard   ActionType = "expand_dashboard"
	ActionCollapseDashboard ActionType = "collapse_dashboard"
	ActionHideDashboard     ActionType = "hide_dashboard"
	ActionSelectBasemap     ActionType = "select_basemap"
	ActionSelectRegion      ActionType = "select_region"
	ActionClickRegion       ActionType = "click_region"
	ActionMapRendered       ActionType = "map_rendered"
	ActionSelectClimate     ActionType = "select_climate"
	ActionSelectHazard      ActionType = "select_hazard"
	ActionSelectAgriculture ActionType = "select_agriculture"
	ActionSelectEnergy      ActionType = "select_energy"
	ActionSetLayerVisible   ActionType = "set_layer_visible"
	ActionSetOpacity        ActionType = "set_opacity"
	ActionRemoveLayer       ActionType = "remove_layer"
	ActionRequestReset      ActionType = "request_reset"
	ActionCancelReset       ActionType = "cancel_reset"
	ActionConfirmReset      ActionType = "confirm_reset"
)

// ClimateSelection is the set of dropdown values that identifies a hazard file.
type ClimateSelection struct {
	Variable    string `json:"variable"`
	Scenario    string `json:"scenario"`
	Years       string `json:"years,omitempty"`
	Seasonality string `json:"seasonality"`
	Season      string `json:"season,omitempty"`
}

// Action is one UI interaction. Only the fields relevant to Type are read.
type Action struct {
	Type    ActionType        `json:"type"`
	Panel   Panel             `json:"panel,omitempty"`
	Name    string            `json:"name,omitempty"`
	Layer   LayerKey          `json:"layer,omitempty"`
	Label   string            `json:"label,omitempty"`
	File    string            `json:"-"`
	Crop    string            `json:"crop,omitempty"`
	Detail  string            `json:"detail,omitempty"`
	Visible *bool             `json:"visible,omitempty"`
	Opacity *float64          `json:"opacity,omitempty"`
	Climate *ClimateSelection `json:"climate,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

// Update applies a to s and returns the new state. s is left untouched.
// select_climate must be resolved to select_hazard by the caller, which owns
// the file catalog.
func Update(s AppState, a Action) (AppState, error) {
	next := s.clone()

	switch a.Type {
	case ActionDismissSplash:
		next.SplashShown = true

	case ActionOpenPanel:
		if !a.Panel.Valid() {
			return s, invalid("unknown panel %q", a.Panel)
		}
		next.LeftPanel = a.Panel

	case ActionClosePanel:
		next.LeftPanel = PanelNone

	case ActionToggleDashboard:
		switch {
		case next.DashboardExpanded:
			next.DashboardExpanded = false
			next.ShowDashboard = false
		case next.ShowDashboard:
			next.ShowDashboard = false
		default:
			next.ShowDashboard = true
		}

	case ActionExpandDashboard:
		next.DashboardExpanded = true
		next.LeftPanel = PanelNone

	case ActionCollapseDashboard:
		next.DashboardExpanded = false
		next.ShowDashboard = true

	case ActionHideDashboard:
		next.DashboardExpanded = false
		next.ShowDashboard = false

	case ActionSelectBasemap:
		if a.Name == "" {
			return s, invalid("basemap name is required")
		}
		if a.Name == next.SelectedBasemap {
			return s, nil
		}
		next.SelectedBasemap = a.Name
		next.dropLayer(LayerBasemap)
		if a.Name != BasemapNone {
			next.putLayer(Layer{Key: LayerBasemap, Label: a.Name, Opacity: DefaultBasemapOpacity})
		}

	case ActionSelectRegion:
		if a.Name == "" {
			return s, invalid("region name is required")
		}
		next.SelectedRegion = a.Name

	case ActionClickRegion:
		if a.Name == "" {
			return s, invalid("region name is required")
		}
		if next.SelectedRegion == a.Name {
			return s, nil
		}
		next.SelectedRegion = a.Name
		next.LastZoomedRegion = a.Name

	case ActionMapRendered:
		// A named render only clears its own fly-to; a newer click survives.
		if a.Name == "" || a.Name == next.LastZoomedRegion {
			next.LastZoomedRegion = ""
		}

	case ActionSelectClimate:
		return s, invalid("climate selection must be resolved to a hazard file")

	case ActionSelectHazard:
		if a.Label == "" || a.File == "" {
			return s, invalid("hazard label and file are required")
		}
		next.addLayer(LayerHazard, a.Label)
		next.HazardFile = a.File

	case ActionSelectAgriculture:
		if a.Crop == "" || a.Detail == "" {
			return s, invalid("crop and detail are required")
		}
		next.AgriSelected = true
		next.EnergySelected = false
		next.dropLayer(LayerEnergy)
		next.addLayer(LayerAgriculture, a.Crop+" - "+a.Detail)

	case ActionSelectEnergy:
		if a.Name == "" || a.File == "" {
			return s, invalid("energy asset and file are required")
		}
		next.EnergySelected = true
		next.AgriSelected = false
		next.dropLayer(LayerAgriculture)
		next.EnergyFile = a.File
		next.addLayer(LayerEnergy, a.Name)

	case ActionSetLayerVisible:
		l, ok := next.Layer(a.Layer)
		if !ok || a.Layer == LayerBasemap {
			return s, invalid("no legend entry for layer %q", a.Layer)
		}
		if a.Visible == nil {
			return s, invalid("visible is required")
		}
		switch {
		case !*a.Visible:
			l.Opacity = 0
		case l.Opacity == 0:
			l.Opacity = 1.0
		}
		next.putLayer(l)

	case ActionSetOpacity:
		l, ok := next.Layer(a.Layer)
		if !ok || a.Layer == LayerBasemap {
			return s, invalid("no legend entry for layer %q", a.Layer)
		}
		if a.Opacity == nil {
			return s, invalid("opacity is required")
		}
		l.Opacity = roundOpacity(*a.Opacity)
		next.putLayer(l)

	case ActionRemoveLayer:
		if !next.HasLayer(a.Layer) {
			return s, invalid("no legend entry for layer %q", a.Layer)
		}
		next.dropLayer(a.Layer)
		if Panel(a.Layer) == next.LeftPanel {
			next.LeftPanel = PanelNone
		}

	case ActionRequestReset:
		next.ShowResetConfirm = true

	case ActionCancelReset:
		next.ShowResetConfirm = false

	case ActionConfirmReset:
		next = DefaultState()
		next.SplashShown = true

	default:
		return s, invalid("unknown action type %q", a.Type)
	}

	next.UpdatedAt = clock.Now()
	return next, nil
}
