package region

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// DefaultSiteName labels sites whose file has no recognised name field.
const DefaultSiteName = "Energy Site"

// siteNameFields are tried in order; the first present in the file is used.
var siteNameFields = []string{
	"name", "Name", "NAME",
	"site_name", "Site_Name", "SITE_NAME",
	"title", "Title", "TITLE",
}

// Site is one point of an energy asset shapefile.
type Site struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// LoadSites reads the point features of an energy shapefile. Non-point
// features are skipped.
func LoadSites(path string) ([]Site, error) {
	field := probeNameField(path)

	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open energy shapefile: %w", err)
	}
	defer dec.Close()

	var fieldNames []string
	if field != "" {
		fieldNames = []string{field}
	}
	var sites []Site
	for {
		g, fields, more := dec.DecodeRowFields(fieldNames...)
		if !more {
			break
		}
		pt, ok := g.(geom.Point)
		if !ok {
			continue
		}
		name := DefaultSiteName
		if field != "" {
			if v := cleanField(fields[field]); v != "" {
				name = v
			}
		}
		sites = append(sites, Site{Name: name, Lat: pt.Y, Lon: pt.X})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode energy shapefile %s: %w", path, err)
	}
	return sites, nil
}

// probeNameField returns the first site name field the file carries, or ""
// when none decodes.
func probeNameField(path string) string {
	for _, f := range siteNameFields {
		if readsField(path, f) {
			return f
		}
	}
	return ""
}

func readsField(path, field string) bool {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return false
	}
	defer dec.Close()
	_, fields, more := dec.DecodeRowFields(field)
	if dec.Error() != nil || !more {
		return false
	}
	_, ok := fields[field]
	return ok
}
