// Package domain models the climate-hazard rasters, map layers, and dashboard
// session state of the risk explorer.
//
// # Data Source
//
// Hazard layers are single-band GeoTIFF files produced by the climate team,
// one file per variable, scenario, year range, and season. They are laid out
// on disk as
//
//	Climate/<variable>/<scenario>[/<years>]/{Annual|Seasonal}/*.tif
//
// where Historical runs have no year range. Seasonal file names end in the
// season, e.g. "tmax_ssp2_06_09.tif" is the June-September season "06 - 09"
// and "pr_hist_JJAS.tif" is "JJAS". Files are expected in EPSG:4326 so the
// bounding box can be handed to the map as latitude/longitude directly.
//
// # Classification
//
// Every hazard raster is rendered as a four-class choropleth. Cells equal to
// the file's no-data value, or not finite, are missing. Over the remaining
// cells the classifier computes mean, population standard deviation, minimum,
// and maximum, and cuts the value range at
//
//	min | mean-2σ | mean | mean+2σ | max
//
// Class i is the half-open interval [t[i], t[i+1]):
//
//	0  pale yellow  #ffffcc
//	1  aqua green   #a1dab4
//	2  teal         #41b6c4
//	3  dark blue    #225ea8
//
// all at alpha 200. A cell matching no class stays fully transparent. That
// includes the maximum whenever mean+2σ lies at or below it, and every cell
// of a constant grid. Thresholds are not forced to be monotonic; when two
// classes match the same cell the later class wins.
//
// # Extent
//
// The overlay extent is [[south-0.15, west], [north-0.12, east]]. The two
// vertical offsets correct a fixed misalignment of the image overlay against
// the basemap tiles and must be kept as they are.
//
// # Session State
//
// The dashboard is driven by an [AppState] record that is replaced, never
// mutated, by [Update]. Layers are keyed by [LayerKey]; at most one hazard
// layer is visible, and agriculture and energy layers exclude each other.
package domain
