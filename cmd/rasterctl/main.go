// Command rasterctl classifies hazard rasters, generates fixture data
// folders, and checks a data folder before the explorer serves it.
//
// Usage:
//
//	rasterctl classify Climate/Precipitation/Historical/Annual/pr.tif --png pr.png
//	rasterctl fixture --out testdata/data
//	rasterctl validate --data-dir testdata/data --region-field NAME
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rasterctl",
		Short:         "Hazard raster tooling for the climate risk explorer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newClassifyCmd(), newFixtureCmd(), newValidateCmd())
	return root
}

// errFailed reports a command that already printed its own diagnostics.
var errFailed = errors.New("validation failed")
