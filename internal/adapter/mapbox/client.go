package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

	// Place types a dashboard search may land on, coarsest first.
	forwardTypes = "region,district,place,locality"
	// Reverse lookups accept a limit only together with a single type.
	reverseTypes = "place"
)

// Client implements domain.Geocoder against the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	language   string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		language:   "en",
		metrics:    metrics,
		logger:     logger,
	}
}

// ForwardGeocode looks up a place name. A non-empty country (ISO 3166-1
// alpha-2) restricts matches to that country.
func (c *Client) ForwardGeocode(ctx context.Context, name, country string) (domain.GeocodingResult, error) {
	params := c.params(forwardTypes)
	if country != "" {
		params.Set("country", strings.ToLower(country))
	}
	return c.lookup(ctx, "forward", url.PathEscape(name), params)
}

// ReverseGeocode names the settlement at a coordinate.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox paths are lon,lat.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	return c.lookup(ctx, "reverse", coord, c.params(reverseTypes))
}

func (c *Client) params(types string) url.Values {
	return url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {types},
		"language":     {c.language},
	}
}

func (c *Client) lookup(ctx context.Context, method, query string, params url.Values) (domain.GeocodingResult, error) {
	u := c.baseURL + "/" + query + ".json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("%s geocode request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	if len(fc.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
		c.logger.Debug("geocode returned no features", "method", method)
		return domain.GeocodingResult{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()
	return fc.Features[0].result(), nil
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string         `json:"id"`
	Center    []float64      `json:"center"` // [lon, lat]
	PlaceName string         `json:"place_name"`
	Text      string         `json:"text"`
	Relevance float64        `json:"relevance"`
	ShortCode string         `json:"short_code,omitempty"`
	Context   []contextEntry `json:"context,omitempty"`
}

// contextEntry is one enclosing feature, e.g. "region.123" or "country.456".
type contextEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code,omitempty"`
}

func (f feature) result() domain.GeocodingResult {
	r := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		r.Lon, r.Lat = f.Center[0], f.Center[1]
	}

	// A region match is its own admin area; otherwise look it up in the
	// enclosing features.
	switch featureType(f.ID) {
	case "region":
		r.AdminArea = f.Text
	case "country":
		r.CountryCode = f.ShortCode
	}
	for _, e := range f.Context {
		switch featureType(e.ID) {
		case "region":
			if r.AdminArea == "" {
				r.AdminArea = e.Text
			}
		case "country":
			r.CountryCode = e.ShortCode
		}
	}
	return r
}

func featureType(id string) string {
	typ, _, _ := strings.Cut(id, ".")
	return typ
}
