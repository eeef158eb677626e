package explorer

import (
	"path/filepath"
	"strings"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
)

// Dashboard summarises regional exposure to the hazard layer of session id.
// Rendering problems are reported in the dashboard warning.
func (s *Service) Dashboard(id string) (domain.Dashboard, error) {
	st, err := s.sessions.Get(id)
	if err != nil {
		return domain.Dashboard{}, err
	}
	if domain.DashboardStatus(st) != "" {
		return domain.BuildDashboard(st, nil), nil
	}
	regions, err := s.regionStore()
	if err != nil {
		return domain.Dashboard{}, err
	}

	ov, err := s.overlays.Render(st.HazardFile)
	if err != nil {
		d := domain.BuildDashboard(st, nil)
		d.Warning = hazardWarning(st.HazardFile, err)
		return d, nil
	}

	var sites []region.Site
	if st.HasLayer(domain.LayerEnergy) && strings.EqualFold(filepath.Ext(st.EnergyFile), ".shp") {
		if sites, err = s.loadSites(st.EnergyFile); err != nil {
			s.logger.Warn("energy sites unavailable for dashboard", "file", st.EnergyFile, "error", err)
			sites = nil
		}
	}

	rows := regions.Exposure(ov.Raster, ov.Classification, sites)
	return domain.BuildDashboard(st, rows), nil
}
