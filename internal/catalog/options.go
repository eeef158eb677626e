package catalog

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Options holds the dropdown lists offered by the dashboard.
type Options struct {
	Variables     []string `yaml:"variables" json:"variables"`
	Scenarios     []string `yaml:"scenarios" json:"scenarios"`
	YearRanges    []string `yaml:"year_ranges" json:"year_ranges"`
	Seasonalities []string `yaml:"seasonalities" json:"seasonalities"`
	Basemaps      []string `yaml:"basemaps" json:"basemaps"`
	Crops         []string `yaml:"crops" json:"crops"`
	CropLayers    []string `yaml:"crop_layers" json:"crop_layers"`
}

// DefaultOptions returns the lists shipped with the dashboard.
func DefaultOptions() Options {
	return Options{
		Variables:     []string{"Maximum Temperature", "Mean Temperature", "Minimum Temperature", "Precipitation", "Solar Radiation"},
		Scenarios:     []string{"Historical", "SSP1", "SSP2", "SSP3", "SSP5"},
		YearRanges:    []string{"2021-2040", "2041-2060", "2061-2080", "2081-2100"},
		Seasonalities: []string{"Annual", "Seasonal"},
		Basemaps:      []string{"No Basemap", "OpenStreetMap", "CartoDB.Positron", "CartoDB.DarkMatter", "Stamen.Terrain", "Stamen.Toner"},
		Crops:         []string{"Rice", "Wheat"},
		CropLayers:    []string{"Irrigated", "Rainfed", "Production"},
	}
}

// LoadOptions reads a YAML catalog file. Lists missing from the file keep
// their defaults; an empty path or a missing file yields the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return Options{}, fmt.Errorf("read catalog file: %w", err)
	}

	var file Options
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Options{}, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	override(&opts.Variables, file.Variables)
	override(&opts.Scenarios, file.Scenarios)
	override(&opts.YearRanges, file.YearRanges)
	override(&opts.Seasonalities, file.Seasonalities)
	override(&opts.Basemaps, file.Basemaps)
	override(&opts.Crops, file.Crops)
	override(&opts.CropLayers, file.CropLayers)
	return opts, nil
}

func override(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// HasBasemap reports whether name is one of the configured basemaps.
func (o Options) HasBasemap(name string) bool {
	return slices.Contains(o.Basemaps, name)
}

// HasCrop reports whether crop and layer are both configured.
func (o Options) HasCrop(crop, layer string) bool {
	return slices.Contains(o.Crops, crop) && slices.Contains(o.CropLayers, layer)
}
