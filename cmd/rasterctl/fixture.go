package main

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/raster"
)

// fixtureBounds covers Mongolia.
var fixtureBounds = domain.Bounds{West: 87.7, South: 41.6, East: 119.9, North: 52.1}

// fixtureRegions are laid out west to east, north to south on a 5x3 grid.
var fixtureRegions = []string{
	"Bayan-Olgii", "Zavkhan", "Bulgan", "Selenge", "Khentii",
	"Khovd", "Arkhangai", "Tov", "Dundgovi", "Dornod",
	"Govi-Altai", "Bayankhongor", "Ovorkhangai", "Omnogovi", "Dornogovi",
}

const (
	fixtureCols = 5
	fixtureRows = 3
	// fixtureNameField is the attribute carrying region names.
	fixtureNameField = "NAME"
	fixtureNoData    = -9999
)

type fixtureVariable struct {
	name   string
	abbr   string
	base   float64
	spread float64
}

var fixtureVariables = []fixtureVariable{
	{name: "Precipitation", abbr: "pr", base: 250, spread: 180},
	{name: "Maximum Temperature", abbr: "tasmax", base: 8, spread: 12},
}

type fixtureScenario struct {
	name  string
	years string
	shift float64
}

var fixtureScenarios = []fixtureScenario{
	{name: "Historical", shift: 0},
	{name: "SSP2", years: "2041-2060", shift: 0.15},
	{name: "SSP5", years: "2081-2100", shift: 0.35},
}

var fixtureSeasons = []struct {
	suffix string
	phase  float64
}{
	{suffix: "06_09", phase: 0},
	{suffix: "10_05", phase: math.Pi},
}

type regionRow struct {
	geom.Polygon
	NAME string
}

type siteRow struct {
	geom.Point
	NAME string
}

type fixtureOptions struct {
	out    string
	width  int
	height int
}

func newFixtureCmd() *cobra.Command {
	var opts fixtureOptions
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Generate a synthetic data folder",
		Long: `Writes Climate, Energy, and Adm folders laid out the way the explorer
expects, with synthetic GeoTIFFs, a grid of region polygons, and energy
sites. The region names are stored in the NAME attribute.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFixture(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.out, "out", "", "output data folder (required)")
	cmd.Flags().IntVar(&opts.width, "width", 320, "raster width in cells")
	cmd.Flags().IntVar(&opts.height, "height", 105, "raster height in cells")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runFixture(w io.Writer, opts fixtureOptions) error {
	if opts.width < 2 || opts.height < 2 {
		return fmt.Errorf("raster size must be at least 2x2, got %dx%d", opts.width, opts.height)
	}

	rasters, err := writeClimate(opts)
	if err != nil {
		return err
	}
	if err := writeRegionShapefile(filepath.Join(opts.out, "Adm", "regions.shp")); err != nil {
		return err
	}
	sites, err := writeEnergy(opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote fixture data to %s\n", opts.out)
	fmt.Fprintf(w, "  %d climate rasters (%dx%d)\n", rasters, opts.width, opts.height)
	fmt.Fprintf(w, "  %d regions, name field %s\n", len(fixtureRegions), fixtureNameField)
	fmt.Fprintf(w, "  %d energy sites\n", sites)
	fmt.Fprintf(w, "\nServe it with:\n  DATA_DIR=%s REGION_SHAPEFILE=%s REGION_NAME_FIELD=%s explorer\n",
		opts.out, filepath.Join(opts.out, "Adm", "regions.shp"), fixtureNameField)
	return nil
}

// writeClimate writes an annual raster and every season for each variable
// and scenario. It returns the number of files written.
func writeClimate(opts fixtureOptions) (int, error) {
	n := 0
	for _, v := range fixtureVariables {
		for _, sc := range fixtureScenarios {
			parts := []string{opts.out, "Climate", v.name, sc.name}
			if sc.years != "" {
				parts = append(parts, sc.years)
			}
			dir := filepath.Join(parts...)
			stem := v.abbr + "_" + lowerScenario(sc.name)

			annual := filepath.Join(dir, domain.SeasonalityAnnual, stem+".tif")
			if err := writeSyntheticRaster(annual, opts, v, sc.shift, 0); err != nil {
				return n, err
			}
			n++
			for _, season := range fixtureSeasons {
				path := filepath.Join(dir, domain.SeasonalitySeason, stem+"_"+season.suffix+".tif")
				if err := writeSyntheticRaster(path, opts, v, sc.shift, season.phase); err != nil {
					return n, err
				}
				n++
			}
		}
	}
	return n, nil
}

func lowerScenario(s string) string {
	if s == domain.ScenarioHistorical {
		return "hist"
	}
	return s
}

// writeSyntheticRaster fills a raster with a north-south gradient plus a
// wave, leaving the north-west corner as no-data.
func writeSyntheticRaster(path string, opts fixtureOptions, v fixtureVariable, shift, phase float64) error {
	r := &domain.Raster{
		Width:     opts.width,
		Height:    opts.height,
		Data:      make([]float64, opts.width*opts.height),
		NoData:    fixtureNoData,
		HasNoData: true,
		Bounds:    fixtureBounds,
		EPSG:      4326,
	}
	for y := range opts.height {
		fy := float64(y) / float64(opts.height-1)
		for x := range opts.width {
			fx := float64(x) / float64(opts.width-1)
			if fx < 0.05 && fy < 0.1 {
				r.Data[y*opts.width+x] = fixtureNoData
				continue
			}
			wave := math.Sin(fx*3*math.Pi+phase) * math.Cos(fy*2*math.Pi)
			r.Data[y*opts.width+x] = v.base + v.spread*(fy+0.5*wave+shift)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create climate folder: %w", err)
	}
	return raster.Write(path, r, raster.EncodeOptions{Compression: raster.Deflate, FloatPredictor: true})
}

func writeRegionShapefile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create region folder: %w", err)
	}
	enc, err := shp.NewEncoder(path, regionRow{})
	if err != nil {
		return fmt.Errorf("create region shapefile: %w", err)
	}
	defer enc.Close()

	dx := (fixtureBounds.East - fixtureBounds.West) / fixtureCols
	dy := (fixtureBounds.North - fixtureBounds.South) / fixtureRows
	for i, name := range fixtureRegions {
		col, row := i%fixtureCols, i/fixtureCols
		west := fixtureBounds.West + float64(col)*dx
		north := fixtureBounds.North - float64(row)*dy
		poly := geom.Polygon{{
			{X: west, Y: north - dy}, {X: west + dx, Y: north - dy},
			{X: west + dx, Y: north}, {X: west, Y: north}, {X: west, Y: north - dy},
		}}
		if err := enc.Encode(regionRow{Polygon: poly, NAME: name}); err != nil {
			return fmt.Errorf("write region %s: %w", name, err)
		}
	}
	return nil
}

var fixtureSites = []siteRow{
	{Point: geom.Point{X: 106.92, Y: 47.92}, NAME: "Ulaanbaatar CHP-4"},
	{Point: geom.Point{X: 105.97, Y: 49.49}, NAME: "Darkhan TPP"},
	{Point: geom.Point{X: 104.06, Y: 49.03}, NAME: "Erdenet TPP"},
	{Point: geom.Point{X: 114.53, Y: 48.07}, NAME: "Choibalsan TPP"},
	{Point: geom.Point{X: 105.62, Y: 43.62}, NAME: "Tavan Tolgoi PP"},
	{Point: geom.Point{X: 91.64, Y: 48.01}, NAME: "Durgun HPP"},
	{Point: geom.Point{X: 108.26, Y: 44.88}, NAME: ""},
}

// writeEnergy writes a point asset with an icon and a raster asset. It
// returns the number of sites.
func writeEnergy(opts fixtureOptions) (int, error) {
	plants := filepath.Join(opts.out, "Energy", "Power Plants")
	if err := os.MkdirAll(plants, 0o755); err != nil {
		return 0, fmt.Errorf("create energy folder: %w", err)
	}
	enc, err := shp.NewEncoder(filepath.Join(plants, "power_plants.shp"), siteRow{})
	if err != nil {
		return 0, fmt.Errorf("create energy shapefile: %w", err)
	}
	for _, s := range fixtureSites {
		if err := enc.Encode(s); err != nil {
			enc.Close()
			return 0, fmt.Errorf("write site %q: %w", s.NAME, err)
		}
	}
	enc.Close()

	if err := imaging.Save(markerIcon(), filepath.Join(plants, "icon.png")); err != nil {
		return 0, fmt.Errorf("write icon: %w", err)
	}

	solar := fixtureVariable{name: "Solar Potential", abbr: "pvout", base: 1400, spread: 400}
	if err := writeSyntheticRaster(filepath.Join(opts.out, "Energy", "Solar Potential", "pvout.tif"), opts, solar, 0, 0); err != nil {
		return 0, err
	}
	return len(fixtureSites), nil
}

// markerIcon draws a filled red circle.
func markerIcon() *image.NRGBA {
	img := imaging.New(30, 30, color.NRGBA{})
	red := color.NRGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	for y := range 30 {
		for x := range 30 {
			dx, dy := float64(x)-14.5, float64(y)-14.5
			if dx*dx+dy*dy <= 12*12 {
				img.SetNRGBA(x, y, red)
			}
		}
	}
	return img
}
