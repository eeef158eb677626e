package explorer

import "github.com/couchcryptid/climate-risk-explorer/internal/domain"

// Basemap is a tile layer the map client draws under the overlays.
type Basemap struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Attribution string  `json:"attribution"`
	Opacity     float64 `json:"opacity"`
}

type tileSource struct {
	url         string
	attribution string
}

const (
	osmAttribution   = "&copy; OpenStreetMap contributors"
	cartoAttribution = osmAttribution + " &copy; CARTO"
	stamenAttr       = "Map tiles by Stamen Design, CC BY 3.0 &mdash; Map data " + osmAttribution
)

var tileSources = map[string]tileSource{
	domain.BasemapOpenStreetMap: {"https://tile.openstreetmap.org/{z}/{x}/{y}.png", osmAttribution},
	"CartoDB.Positron":          {"https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png", cartoAttribution},
	"CartoDB.DarkMatter":        {"https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png", cartoAttribution},
	"Stamen.Terrain":            {"https://tiles.stadiamaps.com/tiles/stamen_terrain/{z}/{x}/{y}{r}.png", stamenAttr},
	"Stamen.Toner":              {"https://tiles.stadiamaps.com/tiles/stamen_toner/{z}/{x}/{y}{r}.png", stamenAttr},
}

// basemapFor returns the tile layer of a basemap name. "No Basemap" and
// names without a known tile source have none.
func basemapFor(name string, opacity float64) (Basemap, bool) {
	src, ok := tileSources[name]
	if !ok {
		return Basemap{}, false
	}
	return Basemap{Name: name, URL: src.url, Attribution: src.attribution, Opacity: opacity}, true
}
