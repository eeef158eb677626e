package domain

import "math"

// Display offsets subtracted from the vertical bounds of every overlay extent.
// They compensate for a constant shift between the image overlay and the
// basemap tiles.
const (
	SouthDisplayOffset = 0.15
	NorthDisplayOffset = 0.12
)

// Bounds is a geographic bounding box in degrees (EPSG:4326).
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Contains reports whether the point lies inside the box, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

// Raster is a single band of floating-point cells in row-major order.
type Raster struct {
	Width     int
	Height    int
	Data      []float64
	NoData    float64
	HasNoData bool
	Bounds    Bounds
	EPSG      int // 0 when the file carries no recognised CRS code
}

// At returns the value of column x, row y.
func (r *Raster) At(x, y int) float64 {
	return r.Data[y*r.Width+x]
}

// CellSize returns the cell width and height in degrees.
func (r *Raster) CellSize() (dx, dy float64) {
	if r.Width == 0 || r.Height == 0 {
		return 0, 0
	}
	return (r.Bounds.East - r.Bounds.West) / float64(r.Width),
		(r.Bounds.North - r.Bounds.South) / float64(r.Height)
}

// CellCenter returns the latitude and longitude of the centre of cell (x, y).
// Row 0 is the northern edge.
func (r *Raster) CellCenter(x, y int) (lat, lon float64) {
	dx, dy := r.CellSize()
	return r.Bounds.North - (float64(y)+0.5)*dy, r.Bounds.West + (float64(x)+0.5)*dx
}

// CellAt returns the cell containing the point, or ok=false outside the raster.
func (r *Raster) CellAt(lat, lon float64) (x, y int, ok bool) {
	if !r.Bounds.Contains(lat, lon) {
		return 0, 0, false
	}
	dx, dy := r.CellSize()
	if dx == 0 || dy == 0 {
		return 0, 0, false
	}
	x = int(math.Floor((lon - r.Bounds.West) / dx))
	y = int(math.Floor((r.Bounds.North - lat) / dy))
	// Points on the east or south edge belong to the last column or row.
	x = min(x, r.Width-1)
	y = min(y, r.Height-1)
	return x, y, true
}

// isMissing reports whether v is the no-data value or not a finite number.
func (r *Raster) isMissing(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return r.HasNoData && v == r.NoData
}

// Extent is the two-corner overlay position [[lat_min, lon_min], [lat_max, lon_max]].
type Extent [2][2]float64

// ExtentFromBounds applies the fixed display offsets to a bounding box.
func ExtentFromBounds(b Bounds) Extent {
	return Extent{
		{b.South - SouthDisplayOffset, b.West},
		{b.North - NorthDisplayOffset, b.East},
	}
}
