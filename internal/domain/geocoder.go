package domain

import "context"

// GeocodingResult is the best match a geocoding provider returned for a
// place query or a clicked coordinate. The zero value means no match.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	// AdminArea is the first-level administrative unit (aimag, province)
	// containing the match, when the provider reports one.
	AdminArea   string
	CountryCode string
	Confidence  float64 // 0.0–1.0 provider confidence score
}

// Found reports whether the provider matched anything.
func (r GeocodingResult) Found() bool {
	return r.FormattedAddress != "" || r.Lat != 0 || r.Lon != 0
}

// Geocoder resolves place names for map clicks and place searches.
type Geocoder interface {
	// ForwardGeocode looks up a place name. A non-empty country code limits
	// matches to that country.
	ForwardGeocode(ctx context.Context, name, country string) (GeocodingResult, error)

	// ReverseGeocode names the place at a coordinate.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
