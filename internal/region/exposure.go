package region

import (
	"math"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

// MaxExposureSamples caps the number of raster cells located per exposure
// summary. Larger rasters are sampled on a regular stride.
const MaxExposureSamples = 250_000

// Exposure tallies the classified cells of r falling in each region and the
// sites sitting on high-class cells. Every named region gets a row, in name
// order, with Finalize already applied.
func (s *Store) Exposure(r *domain.Raster, c domain.Classification, sites []Site) []domain.RegionExposure {
	rows := make(map[string]*domain.RegionExposure, len(s.names))
	for _, n := range s.names {
		rows[n] = &domain.RegionExposure{Region: n}
	}

	step := sampleStep(r.Width, r.Height)
	for y := 0; y < r.Height; y += step {
		for x := 0; x < r.Width; x += step {
			k := c.ClassAt(x, y)
			if k == domain.NoClass {
				continue
			}
			lat, lon := r.CellCenter(x, y)
			if name, ok := s.Locate(lat, lon); ok {
				rows[name].Cells[k]++
			}
		}
	}

	for _, site := range sites {
		name, ok := s.Locate(site.Lat, site.Lon)
		if !ok {
			continue
		}
		row := rows[name]
		row.Sites++
		if x, y, ok := r.CellAt(site.Lat, site.Lon); ok && c.ClassAt(x, y) >= domain.HighClass {
			row.SitesExposed++
		}
	}

	out := make([]domain.RegionExposure, 0, len(s.names))
	for _, n := range s.names {
		row := rows[n]
		row.Finalize()
		out = append(out, *row)
	}
	return out
}

func sampleStep(w, h int) int {
	n := w * h
	if n <= MaxExposureSamples {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(n) / MaxExposureSamples)))
}
