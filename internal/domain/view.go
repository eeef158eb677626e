package domain

// Layout describes the page columns out of a 12-column grid. Index fields
// point into Columns and are -1 when the part is hidden.
type Layout struct {
	Columns   []int `json:"columns"`
	Panel     int   `json:"panel"`
	Map       int   `json:"map"`
	Dashboard int   `json:"dashboard"`
}

const (
	gridWidth  = 12
	sideColumn = 3
)

// LayoutOf derives the column layout from the open panels.
func LayoutOf(s AppState) Layout {
	mapWidth := gridWidth
	left := s.LeftPanel != PanelNone
	if left {
		mapWidth -= sideColumn
	}
	if s.ShowDashboard {
		mapWidth -= sideColumn
	}

	switch {
	case s.DashboardExpanded && left:
		return Layout{Columns: []int{sideColumn, gridWidth - sideColumn}, Panel: 0, Map: -1, Dashboard: 1}
	case s.DashboardExpanded:
		return Layout{Columns: []int{gridWidth}, Panel: -1, Map: -1, Dashboard: 0}
	case left && s.ShowDashboard:
		return Layout{Columns: []int{sideColumn, mapWidth, sideColumn}, Panel: 0, Map: 1, Dashboard: 2}
	case left:
		return Layout{Columns: []int{sideColumn, mapWidth}, Panel: 0, Map: 1, Dashboard: -1}
	case s.ShowDashboard:
		return Layout{Columns: []int{mapWidth, sideColumn}, Panel: -1, Map: 0, Dashboard: 1}
	default:
		return Layout{Columns: []int{gridWidth}, Panel: -1, Map: 0, Dashboard: -1}
	}
}

// LegendEntry is one row of the sidebar legend.
type LegendEntry struct {
	Key     LayerKey `json:"key"`
	Label   string   `json:"label"`
	Checked bool     `json:"checked"`
	Opacity float64  `json:"opacity"`
}

// Legend lists the data layers in the order they were added. The basemap is
// not part of the legend.
func Legend(s AppState) []LegendEntry {
	entries := make([]LegendEntry, 0, len(s.Layers))
	for _, l := range s.Layers {
		if l.Key == LayerBasemap {
			continue
		}
		entries = append(entries, LegendEntry{Key: l.Key, Label: l.Label, Checked: l.Visible(), Opacity: l.Opacity})
	}
	return entries
}

// Dashboard warnings shown until both a hazard and an exposure layer exist.
const (
	WarnSelectBoth     = "Please select climate and agriculture or energy layer"
	WarnSelectClimate  = "Please select climate layer"
	WarnSelectExposure = "Please select agriculture or energy layer"
)

// DashboardStatus returns the warning to show instead of the dashboard
// content, or "" when both a hazard and an exposure layer are in the legend.
func DashboardStatus(s AppState) string {
	hazard := s.HasLayer(LayerHazard)
	exposure := s.HasLayer(LayerAgriculture) || s.HasLayer(LayerEnergy)
	switch {
	case !hazard && !exposure:
		return WarnSelectBoth
	case !hazard:
		return WarnSelectClimate
	case !exposure:
		return WarnSelectExposure
	}
	return ""
}

// ShouldFlyTo reports whether the map should animate to the selected region.
// A map click sets LastZoomedRegion to the clicked region; the animation runs
// once and map_rendered for that region clears the marker again.
func ShouldFlyTo(s AppState) bool {
	return s.LastZoomedRegion == s.SelectedRegion
}

// ClimateLabel is the legend label of a climate selection.
func ClimateLabel(c ClimateSelection) string {
	label := c.Variable + " - " + c.Scenario
	if c.Scenario != ScenarioHistorical {
		label += " - " + c.Years
	}
	if c.Season != "" {
		label += " - " + c.Season
	}
	return label
}

// Climate selection constants shared with the file catalog.
const (
	ScenarioHistorical = "Historical"
	SeasonalityAnnual  = "Annual"
	SeasonalitySeason  = "Seasonal"
)
