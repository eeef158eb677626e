package explorer

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

// CatalogView lists everything the option panels offer.
type CatalogView struct {
	Options      catalog.Options `json:"options"`
	EnergyAssets []string        `json:"energy_assets"`
	Basemaps     []Basemap       `json:"basemaps"`
	Warning      string          `json:"warning,omitempty"`
}

// Catalog returns the option lists and the energy assets on disk. A missing
// energy folder is reported as a warning, not an error.
func (s *Service) Catalog() (CatalogView, error) {
	opts := s.catalog.Options()
	view := CatalogView{Options: opts, EnergyAssets: []string{}}
	for _, name := range opts.Basemaps {
		if b, ok := basemapFor(name, domain.DefaultBasemapOpacity); ok {
			view.Basemaps = append(view.Basemaps, b)
		}
	}

	assets, err := s.catalog.EnergyAssets()
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		view.Warning = "Energy folder path does not exist."
	case err != nil:
		return CatalogView{}, err
	default:
		view.EnergyAssets = assets
	}
	return view, nil
}

// Seasons returns the season labels available for a seasonal selection.
func (s *Service) Seasons(sel domain.ClimateSelection) ([]string, error) {
	sel.Seasonality = domain.SeasonalitySeason
	seasons, err := s.catalog.Seasons(sel)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(seasons))
	for i, season := range seasons {
		labels[i] = season.Label
	}
	return labels, nil
}

// EnergyIcon returns the path of an asset's marker icon.
func (s *Service) EnergyIcon(name string) (string, error) {
	asset, err := s.catalog.ResolveEnergy(name)
	if err != nil {
		return "", err
	}
	if !asset.HasIcon {
		return "", fmt.Errorf("%w: no icon for %q", catalog.ErrNotFound, name)
	}
	return asset.Icon, nil
}
