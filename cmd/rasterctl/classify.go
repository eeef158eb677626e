package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
	"github.com/couchcryptid/climate-risk-explorer/internal/raster"
)

type classifyOptions struct {
	pngPath string
	maxDim  int
	asJSON  bool
}

func newClassifyCmd() *cobra.Command {
	var opts classifyOptions
	cmd := &cobra.Command{
		Use:   "classify <file.tif>",
		Short: "Classify a GeoTIFF into four hazard classes",
		Long: `Reads the first band of a GeoTIFF, cuts it at min, mean-2σ, mean,
mean+2σ, and max, and reports the class breaks and cell counts. With --png
the classified overlay is written as an image.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.pngPath, "png", "", "write the classified overlay to this PNG file")
	cmd.Flags().IntVar(&opts.maxDim, "max-dim", 0, "shrink the PNG so its longer side is at most this many pixels (0 keeps full size)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	return cmd
}

type classReport struct {
	Name  string  `json:"name"`
	Color string  `json:"color"`
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Cells int     `json:"cells"`
}

type classifyReport struct {
	File    string        `json:"file"`
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	EPSG    int           `json:"epsg,omitempty"`
	Bounds  domain.Bounds `json:"bounds"`
	Extent  domain.Extent `json:"extent"`
	Stats   *domain.Stats `json:"stats,omitempty"`
	Classes []classReport `json:"classes,omitempty"`
	PNG     string        `json:"png,omitempty"`
}

func runClassify(w io.Writer, path string, opts classifyOptions) error {
	c, r, err := raster.ClassifyFileWithPalette(path, domain.DefaultPalette)
	if err != nil {
		return err
	}

	rep := classifyReport{
		File:   path,
		Width:  r.Width,
		Height: r.Height,
		EPSG:   r.EPSG,
		Bounds: r.Bounds,
		Extent: c.Extent,
	}
	if c.Stats.Valid > 0 {
		stats := c.Stats
		rep.Stats = &stats
		counts := c.ClassCounts()
		for i := range domain.ClassCount {
			rep.Classes = append(rep.Classes, classReport{
				Name:  domain.ClassNames[i],
				Color: domain.DefaultPalette.Hex(i),
				From:  c.Thresholds[i],
				To:    c.Thresholds[i+1],
				Cells: counts[i],
			})
		}
	}

	if opts.pngPath != "" {
		b, _, err := overlay.EncodePNG(c.Image, opts.maxDim)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.pngPath, b, 0o644); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		rep.PNG = opts.pngPath
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	printClassifyReport(w, rep)
	return nil
}

func printClassifyReport(w io.Writer, rep classifyReport) {
	fmt.Fprintf(w, "File:    %s\n", rep.File)
	fmt.Fprintf(w, "Size:    %d x %d\n", rep.Width, rep.Height)
	fmt.Fprintf(w, "Bounds:  W %.4f  S %.4f  E %.4f  N %.4f\n", rep.Bounds.West, rep.Bounds.South, rep.Bounds.East, rep.Bounds.North)
	if rep.EPSG != 0 && rep.EPSG != 4326 {
		fmt.Fprintf(w, "Warning: CRS is EPSG:%d, the map assumes EPSG:4326\n", rep.EPSG)
	}
	if rep.Stats == nil {
		fmt.Fprintln(w, "No valid cells; nothing to classify.")
		return
	}
	fmt.Fprintf(w, "Cells:   %d valid\n", rep.Stats.Valid)
	fmt.Fprintf(w, "Mean:    %.4f  StdDev: %.4f  Min: %.4f  Max: %.4f\n", rep.Stats.Mean, rep.Stats.StdDev, rep.Stats.Min, rep.Stats.Max)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-12s %-8s %12s %12s %10s\n", "CLASS", "COLOR", "FROM", "TO", "CELLS")
	for _, c := range rep.Classes {
		fmt.Fprintf(w, "  %-12s %-8s %12.4f %12.4f %10d\n", c.Name, c.Color, c.From, c.To, c.Cells)
	}
	if rep.PNG != "" {
		fmt.Fprintf(w, "\nOverlay written to %s\n", rep.PNG)
	}
}
