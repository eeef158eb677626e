// Package catalog discovers the climate rasters and energy assets on disk and
// maps dashboard selections to file paths.
//
// Climate rasters live under
//
//	<climate>/<variable>/<scenario>[/<years>]/{Annual|Seasonal}/*.tif
//
// where Historical has no year-range level. Energy assets are one folder per
// asset under <energy>, holding a .tif or a .shp and optionally a .png icon.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

var (
	// ErrIncompleteSelection is returned when a climate selection misses a
	// value or uses one outside the option lists.
	ErrIncompleteSelection = errors.New("incomplete climate selection")
	// ErrNotFound is returned when the folder for a selection holds no raster.
	ErrNotFound = errors.New("no matching file")
	// ErrUnknownAsset is returned for an energy asset that has no folder.
	ErrUnknownAsset = errors.New("unknown energy asset")
	// ErrNoEnergyFile is returned when an asset folder has no .tif or .shp.
	ErrNoEnergyFile = errors.New("no .tif or .shp file found inside the selected folder")
)

// Energy asset kinds.
const (
	KindRaster = "raster"
	KindSites  = "sites"
)

// Catalog resolves selections against the data directories.
type Catalog struct {
	climateDir string
	energyDir  string
	options    Options
}

// New creates a Catalog over the given climate and energy directories.
func New(climateDir, energyDir string, opts Options) *Catalog {
	return &Catalog{climateDir: climateDir, energyDir: energyDir, options: opts}
}

// Options returns the dropdown lists.
func (c *Catalog) Options() Options {
	return c.options
}

// ClimateFolder returns the folder that holds the rasters for sel.
func (c *Catalog) ClimateFolder(sel domain.ClimateSelection) (string, error) {
	switch {
	case !slices.Contains(c.options.Variables, sel.Variable):
		return "", fmt.Errorf("%w: variable %q", ErrIncompleteSelection, sel.Variable)
	case !slices.Contains(c.options.Scenarios, sel.Scenario):
		return "", fmt.Errorf("%w: scenario %q", ErrIncompleteSelection, sel.Scenario)
	case sel.Scenario != domain.ScenarioHistorical && !slices.Contains(c.options.YearRanges, sel.Years):
		return "", fmt.Errorf("%w: year range %q", ErrIncompleteSelection, sel.Years)
	case !slices.Contains(c.options.Seasonalities, sel.Seasonality):
		return "", fmt.Errorf("%w: seasonality %q", ErrIncompleteSelection, sel.Seasonality)
	}

	parts := []string{c.climateDir, sel.Variable, sel.Scenario}
	if sel.Scenario != domain.ScenarioHistorical {
		parts = append(parts, sel.Years)
	}
	parts = append(parts, sel.Seasonality)
	return filepath.Join(parts...), nil
}

// Season is one selectable file of a Seasonal folder.
type Season struct {
	Label string `json:"label"`
	Path  string `json:"-"`
}

// Seasons lists the season files available for sel, sorted by label.
// sel.Seasonality and sel.Season are ignored.
func (c *Catalog) Seasons(sel domain.ClimateSelection) ([]Season, error) {
	sel.Seasonality = domain.SeasonalitySeason
	folder, err := c.ClimateFolder(sel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(folder); err != nil {
		return nil, fmt.Errorf("%w: no seasonal folder found: %s", ErrNotFound, folder)
	}
	return parseSeasons(folder)
}

// parseSeasons labels every .tif in folder by the tail of its file name:
// a_b_06_09.tif is "06 - 09", a_JJAS.tif is "JJAS", and names without an
// underscore are skipped. When two files share a label the later one wins.
func parseSeasons(folder string) ([]Season, error) {
	files, err := filepath.Glob(filepath.Join(folder, "*.tif"))
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}

	byLabel := make(map[string]string, len(files))
	for _, f := range files {
		parts := strings.Split(strings.TrimSuffix(filepath.Base(f), ".tif"), "_")
		var label string
		switch n := len(parts); {
		case n >= 3:
			label = parts[n-2] + " - " + parts[n-1]
		case n == 2:
			label = parts[1]
		default:
			continue
		}
		byLabel[label] = f
	}

	seasons := make([]Season, 0, len(byLabel))
	for label, path := range byLabel {
		seasons = append(seasons, Season{Label: label, Path: path})
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].Label < seasons[j].Label })
	return seasons, nil
}

// ResolveClimate returns the legend label and raster path for a complete
// selection. Annual folders resolve to their first .tif in name order.
func (c *Catalog) ResolveClimate(sel domain.ClimateSelection) (label, path string, err error) {
	folder, err := c.ClimateFolder(sel)
	if err != nil {
		return "", "", err
	}

	switch sel.Seasonality {
	case domain.SeasonalityAnnual:
		files, err := filepath.Glob(filepath.Join(folder, "*.tif"))
		if err != nil {
			return "", "", fmt.Errorf("list annual rasters: %w", err)
		}
		if len(files) == 0 {
			return "", "", fmt.Errorf("%w: no annual .tif file found in: %s", ErrNotFound, folder)
		}
		sel.Season = ""
		return domain.ClimateLabel(sel), files[0], nil

	case domain.SeasonalitySeason:
		if sel.Season == "" {
			return "", "", fmt.Errorf("%w: season", ErrIncompleteSelection)
		}
		seasons, err := c.Seasons(sel)
		if err != nil {
			return "", "", err
		}
		for _, s := range seasons {
			if s.Label == sel.Season {
				return domain.ClimateLabel(sel), s.Path, nil
			}
		}
		return "", "", fmt.Errorf("%w: season %q in %s", ErrNotFound, sel.Season, folder)

	default:
		return "", "", fmt.Errorf("%w: seasonality %q", ErrIncompleteSelection, sel.Seasonality)
	}
}

// EnergyAsset is a resolved energy asset folder.
type EnergyAsset struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	File    string `json:"-"`
	Icon    string `json:"-"`
	HasIcon bool   `json:"has_icon"`
}

// EnergyAssets returns the sorted asset folder names.
func (c *Catalog) EnergyAssets() ([]string, error) {
	entries, err := os.ReadDir(c.energyDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: energy folder path does not exist", ErrNotFound)
		}
		return nil, fmt.Errorf("list energy assets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ResolveEnergy returns the data file of an asset: its first .tif, else its
// first .shp. The first .png in the folder, if any, is the marker icon.
func (c *Catalog) ResolveEnergy(name string) (EnergyAsset, error) {
	assets, err := c.EnergyAssets()
	if err != nil {
		return EnergyAsset{}, err
	}
	if !slices.Contains(assets, name) {
		return EnergyAsset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}

	dir := filepath.Join(c.energyDir, name)
	asset := EnergyAsset{Name: name}
	if tifs, _ := filepath.Glob(filepath.Join(dir, "*.tif")); len(tifs) > 0 {
		asset.Kind, asset.File = KindRaster, tifs[0]
	} else if shps, _ := filepath.Glob(filepath.Join(dir, "*.shp")); len(shps) > 0 {
		asset.Kind, asset.File = KindSites, shps[0]
	} else {
		return EnergyAsset{}, fmt.Errorf("%w: %s", ErrNoEnergyFile, name)
	}

	if icon := findIcon(dir); icon != "" {
		asset.Icon, asset.HasIcon = icon, true
	}
	return asset, nil
}

func findIcon(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}
