package domain

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NoClass marks a cell that fell in no class.
const NoClass int8 = -1

// Stats are descriptive statistics over the non-missing cells of a raster.
// All fields are NaN when no cell is valid.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"` // population standard deviation
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Valid  int     `json:"valid"`
}

// Thresholds are the five class break points, low to high.
type Thresholds [ClassCount + 1]float64

// Classification is the result of classifying one raster.
type Classification struct {
	Image      *image.NRGBA
	Extent     Extent
	Stats      Stats
	Thresholds Thresholds
	// Classes holds the class index of every cell, row-major, or NoClass.
	Classes []int8
}

// ClassAt returns the class of cell (x, y).
func (c Classification) ClassAt(x, y int) int8 {
	return c.Classes[y*c.Image.Rect.Dx()+x]
}

// ClassCounts returns the number of cells per class.
func (c Classification) ClassCounts() [ClassCount]int {
	var counts [ClassCount]int
	for _, k := range c.Classes {
		if k != NoClass {
			counts[k]++
		}
	}
	return counts
}

// Classify renders a raster as a four-class RGBA image with DefaultPalette.
// The input is not modified.
func Classify(r *Raster) Classification {
	return ClassifyWithPalette(r, DefaultPalette)
}

// ClassifyWithPalette is Classify with a caller-supplied palette.
func ClassifyWithPalette(r *Raster, palette Palette) Classification {
	values := maskMissing(r)
	stats := ComputeStats(values)
	t := ThresholdsFromStats(stats)
	img, classes := classify(values, r.Width, r.Height, t, palette)
	return Classification{
		Image:      img,
		Extent:     ExtentFromBounds(r.Bounds),
		Stats:      stats,
		Thresholds: t,
		Classes:    classes,
	}
}

// maskMissing copies the raster data with missing cells replaced by NaN.
func maskMissing(r *Raster) []float64 {
	out := make([]float64, len(r.Data))
	for i, v := range r.Data {
		if r.isMissing(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}

// ComputeStats returns mean, population standard deviation, minimum, and
// maximum of the non-NaN values.
func ComputeStats(values []float64) Stats {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		nan := math.NaN()
		return Stats{Mean: nan, StdDev: nan, Min: nan, Max: nan}
	}
	mean, std := stat.PopMeanStdDev(valid, nil)
	return Stats{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(valid),
		Max:    floats.Max(valid),
		Valid:  len(valid),
	}
}

// ThresholdsFromStats cuts the value range at min, mean±2σ, mean, and max.
func ThresholdsFromStats(s Stats) Thresholds {
	return Thresholds{s.Min, s.Mean - 2*s.StdDev, s.Mean, s.Mean + 2*s.StdDev, s.Max}
}

// Class returns the index of the last class whose interval [t[i], t[i+1])
// contains v, or NoClass. NaN matches nothing.
func (t Thresholds) Class(v float64) int8 {
	k := NoClass
	for i := range ClassCount {
		if v >= t[i] && v < t[i+1] {
			k = int8(i)
		}
	}
	return k
}

func classify(values []float64, width, height int, t Thresholds, palette Palette) (*image.NRGBA, []int8) {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	classes := make([]int8, len(values))
	for i, v := range values {
		k := t.Class(v)
		classes[i] = k
		if k == NoClass {
			continue
		}
		c := palette[k]
		p := img.Pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
	}
	return img, classes
}
