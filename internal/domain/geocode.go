package domain

import (
	"context"
	"log/slog"
)

// Place is a map location with optional geocoding enrichment.
type Place struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Region string  `json:"region,omitempty"`

	AdminArea string `json:"admin_area,omitempty"`

	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "forward", "reverse", "original", "failed"
}

// EnrichPlace attaches a reverse-geocoded place name to a clicked point.
// If geocoder is nil or geocoding fails, the place is returned with
// GeoSource set accordingly (graceful degradation).
func EnrichPlace(ctx context.Context, place Place, geocoder Geocoder, logger *slog.Logger) Place {
	if geocoder == nil {
		return place
	}

	result, err := geocoder.ReverseGeocode(ctx, place.Lat, place.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", place.Lat,
			"lon", place.Lon,
			"error", err,
		)
		place.GeoSource = "failed"
		return place
	}
	if !result.Found() {
		place.GeoSource = "original"
		return place
	}
	place.FormattedAddress = result.FormattedAddress
	place.PlaceName = result.PlaceName
	place.AdminArea = result.AdminArea
	place.GeoConfidence = result.Confidence
	place.GeoSource = "reverse"
	return place
}

// LocatePlace forward-geocodes a place name. ok is false when the geocoder
// is nil, fails, or finds nothing.
func LocatePlace(ctx context.Context, name, country string, geocoder Geocoder, logger *slog.Logger) (Place, bool) {
	if geocoder == nil || name == "" {
		return Place{}, false
	}

	result, err := geocoder.ForwardGeocode(ctx, name, country)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"query", name,
			"country", country,
			"error", err,
		)
		return Place{GeoSource: "failed"}, false
	}
	if result.Lat == 0 && result.Lon == 0 {
		return Place{GeoSource: "original"}, false
	}
	return Place{
		Lat:              result.Lat,
		Lon:              result.Lon,
		AdminArea:        result.AdminArea,
		FormattedAddress: result.FormattedAddress,
		PlaceName:        result.PlaceName,
		GeoConfidence:    result.Confidence,
		GeoSource:        "forward",
	}, true
}
