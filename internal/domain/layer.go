package domain

import "math"

// LayerKey identifies a map layer slot. Each slot holds at most one layer.
type LayerKey string

const (
	LayerBasemap     LayerKey = "Basemap"
	LayerHazard      LayerKey = "Hazard"
	LayerAgriculture LayerKey = "Agriculture"
	LayerEnergy      LayerKey = "Energy"
)

// Valid reports whether k is one of the known layer slots.
func (k LayerKey) Valid() bool {
	switch k {
	case LayerBasemap, LayerHazard, LayerAgriculture, LayerEnergy:
		return true
	}
	return false
}

// Panel is the options panel shown left of the map.
type Panel string

const (
	PanelNone        Panel = ""
	PanelBasemap     Panel = "Basemap"
	PanelRegion      Panel = "Region"
	PanelHazard      Panel = "Hazard"
	PanelAgriculture Panel = "Agriculture"
	PanelEnergy      Panel = "Energy"
)

// Valid reports whether p names a panel. PanelNone is not a panel.
func (p Panel) Valid() bool {
	switch p {
	case PanelBasemap, PanelRegion, PanelHazard, PanelAgriculture, PanelEnergy:
		return true
	}
	return false
}

// Basemap names.
const (
	BasemapNone          = "No Basemap"
	BasemapOpenStreetMap = "OpenStreetMap"
)

// Default opacities.
const (
	DefaultLayerOpacity   = 0.5
	DefaultBasemapOpacity = 1.0
	opacityStep           = 0.05
)

// Layer is one entry of the legend.
type Layer struct {
	Key     LayerKey `json:"key"`
	Label   string   `json:"label"`
	Opacity float64  `json:"opacity"`
}

// Visible reports whether the layer is drawn at all.
func (l Layer) Visible() bool { return l.Opacity > 0 }

// roundOpacity clamps o to [0, 1] and snaps it to the slider step.
func roundOpacity(o float64) float64 {
	if math.IsNaN(o) || o <= 0 {
		return 0
	}
	if o >= 1 {
		return 1
	}
	return math.Round(o/opacityStep) / (1 / opacityStep)
}
