package domain

import (
	"cmp"
	"fmt"
	"slices"
)

// HighClass is the first class counted as high exposure (teal and dark blue).
const HighClass = 2

// RegionExposure summarises one region against the visible hazard layer.
type RegionExposure struct {
	Region       string          `json:"region"`
	Cells        [ClassCount]int `json:"cells"`
	Classified   int             `json:"classified"`
	HighShare    float64         `json:"high_share"`
	Sites        int             `json:"sites"`
	SitesExposed int             `json:"sites_exposed"`
}

// Finalize derives Classified and HighShare from Cells.
func (e *RegionExposure) Finalize() {
	e.Classified = 0
	high := 0
	for k, n := range e.Cells {
		e.Classified += n
		if k >= HighClass {
			high += n
		}
	}
	e.HighShare = 0
	if e.Classified > 0 {
		e.HighShare = float64(high) / float64(e.Classified)
	}
}

// RankExposure orders regions by high-exposure share, then exposed sites,
// then name.
func RankExposure(rows []RegionExposure) {
	slices.SortStableFunc(rows, func(a, b RegionExposure) int {
		if c := cmp.Compare(b.HighShare, a.HighShare); c != 0 {
			return c
		}
		if c := cmp.Compare(b.SitesExposed, a.SitesExposed); c != 0 {
			return c
		}
		return cmp.Compare(a.Region, b.Region)
	})
}

// CompactRows is the number of regions shown in the side dashboard.
const CompactRows = 3

// Dashboard is the content of the dashboard panel.
type Dashboard struct {
	Title          string           `json:"title"`
	Expanded       bool             `json:"expanded"`
	Warning        string           `json:"warning,omitempty"`
	HazardLabel    string           `json:"hazard_label,omitempty"`
	ExposureLabel  string           `json:"exposure_label,omitempty"`
	Rows           []RegionExposure `json:"rows,omitempty"`
	Interpretation string           `json:"interpretation,omitempty"`
}

// BuildDashboard shapes ranked exposure rows for the compact or expanded view.
func BuildDashboard(s AppState, rows []RegionExposure) Dashboard {
	d := Dashboard{Title: "Dashboard", Expanded: s.DashboardExpanded}
	if d.Expanded {
		d.Title = "Full Dashboard View"
	}
	if w := DashboardStatus(s); w != "" {
		d.Warning = w
		return d
	}

	hazard, _ := s.Layer(LayerHazard)
	d.HazardLabel = hazard.Label
	if l, ok := s.Layer(LayerEnergy); ok {
		d.ExposureLabel = l.Label
	} else if l, ok := s.Layer(LayerAgriculture); ok {
		d.ExposureLabel = l.Label
	}

	ranked := slices.Clone(rows)
	RankExposure(ranked)
	if !d.Expanded && len(ranked) > CompactRows {
		ranked = ranked[:CompactRows]
	}
	d.Rows = ranked

	if d.Expanded && len(ranked) > 0 && ranked[0].Classified > 0 {
		top := ranked[0]
		d.Interpretation = fmt.Sprintf("%s is most exposed: %.0f%% of its area falls in the two highest %s classes",
			top.Region, top.HighShare*100, hazard.Label)
		if top.SitesExposed > 0 {
			d.Interpretation += fmt.Sprintf(", affecting %d energy sites", top.SitesExposed)
		}
		d.Interpretation += "."
	}
	return d
}
