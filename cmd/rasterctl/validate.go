package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/raster"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type validateOptions struct {
	dataDir     string
	catalogFile string
	regions     string
	regionField string
}

func newValidateCmd() *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a data folder before serving it",
		Long: `Reads every climate raster, resolves every annual climate selection,
loads the region boundaries, and resolves every energy asset. Exits non-zero
when any phase fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", ".", "data folder holding Climate, Energy, and Adm")
	cmd.Flags().StringVar(&opts.catalogFile, "catalog", "", "YAML file overriding the dropdown option lists")
	cmd.Flags().StringVar(&opts.regions, "regions", "", "region shapefile (default: the only .shp under <data-dir>/Adm)")
	cmd.Flags().StringVar(&opts.regionField, "region-field", "adm1nm", "attribute holding region names")
	return cmd
}

func runValidate(w io.Writer, opts validateOptions) error {
	fmt.Fprintln(w, "=== Climate Risk Data Validation ===")
	fmt.Fprintln(w)

	options, err := catalog.LoadOptions(opts.catalogFile)
	if err != nil {
		return err
	}
	climateDir := filepath.Join(opts.dataDir, "Climate")
	cat := catalog.New(climateDir, filepath.Join(opts.dataDir, "Energy"), options)

	regions, regionPhase := validateRegions(opts)
	phases := []*phase{
		validateRasters(climateDir, regions),
		validateSelections(cat, options),
		regionPhase,
		validateEnergy(cat, regions),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if len(p.notes) == 0 && p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for _, n := range p.notes {
			fmt.Fprintf(w, "  %s\n", n)
		}
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return nil
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return errFailed
}

// validateRasters reads and classifies every .tif under the climate folder.
func validateRasters(climateDir string, regions *region.Store) *phase {
	p := &phase{name: "Climate rasters readable and classifiable"}
	count := 0
	err := filepath.WalkDir(climateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".tif") {
			return nil
		}
		count++
		rel, _ := filepath.Rel(climateDir, path)
		c, r, err := raster.ClassifyFileWithPalette(path, domain.DefaultPalette)
		if err != nil {
			p.errorf("%s: %v", rel, err)
			return nil
		}
		if c.Stats.Valid == 0 {
			p.errorf("%s: no valid cells", rel)
		}
		if r.EPSG != 0 && r.EPSG != 4326 {
			p.errorf("%s: CRS is EPSG:%d, expected EPSG:4326", rel, r.EPSG)
		}
		if regions != nil && !overlaps(r.Bounds, regions.TotalBounds()) {
			p.errorf("%s: raster does not overlap the region boundaries", rel)
		}
		return nil
	})
	if err != nil {
		p.errorf("walk %s: %v", climateDir, err)
		return p
	}
	if count == 0 {
		p.errorf("no .tif files under %s", climateDir)
	}
	p.notef("%d rasters checked", count)
	return p
}

func overlaps(a, b domain.Bounds) bool {
	return a.West <= b.East && b.West <= a.East && a.South <= b.North && b.South <= a.North
}

// validateSelections resolves every annual selection the dropdowns offer.
// Missing combinations are reported, not failed: a data folder may carry a
// subset. At least one must resolve.
func validateSelections(cat *catalog.Catalog, opts catalog.Options) *phase {
	p := &phase{name: "Annual climate selections resolve"}
	resolved, missing := 0, 0
	for _, v := range opts.Variables {
		for _, sc := range opts.Scenarios {
			years := opts.YearRanges
			if sc == domain.ScenarioHistorical {
				years = []string{""}
			}
			for _, y := range years {
				sel := domain.ClimateSelection{Variable: v, Scenario: sc, Years: y, Seasonality: domain.SeasonalityAnnual}
				_, _, err := cat.ResolveClimate(sel)
				switch {
				case err == nil:
					resolved++
				case errors.Is(err, catalog.ErrNotFound):
					missing++
				default:
					p.errorf("%s: %v", domain.ClimateLabel(sel), err)
				}
			}
		}
	}
	if resolved == 0 {
		p.errorf("no annual climate selection resolves to a file")
	}
	p.notef("%d selections resolve, %d have no data", resolved, missing)
	return p
}

func validateRegions(opts validateOptions) (*region.Store, *phase) {
	p := &phase{name: "Region boundaries load"}
	path := opts.regions
	if path == "" {
		matches, _ := filepath.Glob(filepath.Join(opts.dataDir, "Adm", "*.shp"))
		if len(matches) != 1 {
			p.errorf("expected one .shp under %s, found %d; pass --regions", filepath.Join(opts.dataDir, "Adm"), len(matches))
			return nil, p
		}
		path = matches[0]
	}

	store, err := region.Load(path, opts.regionField)
	if err != nil {
		p.errorf("%v", err)
		return nil, p
	}
	names := store.Names()
	if len(names) == 0 {
		p.errorf("no feature carries a %s value", opts.regionField)
		return nil, p
	}
	p.notef("%d regions in %s", len(names), filepath.Base(path))
	return store, p
}

// validateEnergy resolves every asset folder. A missing Energy folder is
// allowed; the dashboard shows a warning instead.
func validateEnergy(cat *catalog.Catalog, regions *region.Store) *phase {
	p := &phase{name: "Energy assets resolve"}
	assets, err := cat.EnergyAssets()
	if errors.Is(err, catalog.ErrNotFound) {
		p.notef("no Energy folder")
		return p
	}
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	for _, name := range assets {
		asset, err := cat.ResolveEnergy(name)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		switch asset.Kind {
		case catalog.KindSites:
			sites, err := region.LoadSites(asset.File)
			if err != nil {
				p.errorf("%s: %v", name, err)
				continue
			}
			located := 0
			for _, s := range sites {
				if regions != nil {
					if _, ok := regions.Locate(s.Lat, s.Lon); ok {
						located++
					}
				}
			}
			p.notef("%s: %d sites, %d inside a region, icon %t", name, len(sites), located, asset.HasIcon)
		case catalog.KindRaster:
			if _, err := raster.Read(asset.File); err != nil {
				p.errorf("%s: %v", name, err)
				continue
			}
			p.notef("%s: raster", name)
		}
	}
	return p
}
