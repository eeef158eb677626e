package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/climate-risk-explorer/internal/adapter/http"
	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/explorer"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
	"github.com/couchcryptid/climate-risk-explorer/internal/raster"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
	"github.com/couchcryptid/climate-risk-explorer/internal/session"
)

type stubGeocoder struct {
	result domain.GeocodingResult
}

func (g stubGeocoder) ForwardGeocode(_ context.Context, _, _ string) (domain.GeocodingResult, error) {
	return g.result, nil
}

func (g stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return g.result, nil
}

func square(west, south, east, north float64) geom.Polygon {
	return geom.Polygon{{
		{X: west, Y: south}, {X: east, Y: south}, {X: east, Y: north}, {X: west, Y: north}, {X: west, Y: south},
	}}
}

// newTestService builds a service over a data folder with one annual
// precipitation raster and two regions. Regions are left unloaded when
// ready is false.
func newTestService(t *testing.T, ready bool) *explorer.Service {
	t.Helper()
	root := t.TempDir()
	annual := filepath.Join(root, "Climate", "Precipitation", "Historical", "Annual")
	require.NoError(t, os.MkdirAll(annual, 0o755))
	data := make([]float64, 8*4)
	for i := range data {
		data[i] = float64(i % 8)
	}
	require.NoError(t, raster.Write(filepath.Join(annual, "pr.tif"), &domain.Raster{
		Width: 8, Height: 4, Data: data,
		Bounds: domain.Bounds{West: 100, South: 40, East: 110, North: 45},
	}, raster.EncodeOptions{}))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Energy", "Solar"), 0o755))

	m := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := explorer.New(explorer.Deps{
		Catalog:  catalog.New(filepath.Join(root, "Climate"), filepath.Join(root, "Energy"), catalog.DefaultOptions()),
		Sessions: session.NewStore(time.Hour, clockwork.NewFakeClock(), m, logger),
		Overlays: overlay.NewRenderer(0, 2, m, logger),
		Geocoder: stubGeocoder{result: domain.GeocodingResult{Lat: 42, Lon: 107, PlaceName: "Dalanzadgad", FormattedAddress: "Dalanzadgad, Mongolia"}},
		Country:  "mn",
		Metrics:  m,
		Logger:   logger,
	})
	if ready {
		svc.SetRegions(region.NewStore([]region.Region{
			{Name: "Alpha", Shape: square(100, 40, 105, 45)},
			{Name: "Beta", Shape: square(105, 40, 110, 45)},
		}))
	}
	return svc
}

func newTestServer(t *testing.T) *httpadapter.Server {
	t.Helper()
	return httpadapter.NewServer(":0", newTestService(t, true), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, srv http.Handler) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decode[explorer.SessionView](t, rec)
	assert.Equal(t, "/api/sessions/"+view.ID, rec.Header().Get("Location"))
	return view.ID
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503UntilRegionsLoad(t *testing.T) {
	srv := httpadapter.NewServer(":0", newTestService(t, false), slog.Default())

	rec := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/regions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- catalog and regions ---

func TestCatalogEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[explorer.CatalogView](t, rec)
	assert.Equal(t, []string{"Solar"}, view.EnergyAssets)
	assert.Contains(t, view.Options.Variables, "Precipitation")
}

func TestSeasonsEndpoint_MissingFolder(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/catalog/seasons?variable=Precipitation&scenario=Historical", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "no seasonal folder found")
}

func TestSeasonsEndpoint_IncompleteSelection(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/catalog/seasons?variable=Snow&scenario=Historical", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegionsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"regions": {"Alpha", "Beta"}}, decode[map[string][]string](t, rec))

	rec = do(t, srv, http.MethodGet, "/api/regions/Beta", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Bounds{West: 105, South: 40, East: 110, North: 45}, decode[explorer.RegionView](t, rec).Bounds)

	rec = do(t, srv, http.MethodGet, "/api/regions/Gamma", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnergyIconEndpoint_NoData(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/energy/Solar/icon", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlacesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/places?q=Dalanzadgad", "")
	require.Equal(t, http.StatusOK, rec.Code)
	place := decode[domain.Place](t, rec)
	assert.Equal(t, "Beta", place.Region)
	assert.Equal(t, "Dalanzadgad", place.PlaceName)

	rec = do(t, srv, http.MethodGet, "/api/places", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- sessions ---

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[explorer.SessionView](t, rec)
	assert.Equal(t, domain.BasemapOpenStreetMap, view.State.SelectedBasemap)
	assert.Equal(t, []int{12}, view.Layout.Columns)

	rec = do(t, srv, http.MethodDelete, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/actions", `{"type":"open_panel","panel":"Hazard"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[explorer.SessionView](t, rec)
	assert.Equal(t, domain.PanelHazard, view.State.LeftPanel)
	assert.Equal(t, []int{3, 9}, view.Layout.Columns)

	rec = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/actions",
		`{"type":"select_climate","climate":{"variable":"Precipitation","scenario":"Historical","seasonality":"Annual"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[explorer.SessionView](t, rec)
	require.Len(t, view.Legend, 1)
	assert.Equal(t, "Precipitation - Historical", view.Legend[0].Label)
}

func TestActionEndpoint_Errors(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"malformed body", "/api/sessions/" + id + "/actions", `{"type":`, http.StatusBadRequest},
		{"client file paths rejected", "/api/sessions/" + id + "/actions", `{"type":"select_energy","name":"Solar","file":"/etc/passwd"}`, http.StatusBadRequest},
		{"unknown action", "/api/sessions/" + id + "/actions", `{"type":"fly"}`, http.StatusBadRequest},
		{"unknown region", "/api/sessions/" + id + "/actions", `{"type":"select_region","name":"Gamma"}`, http.StatusNotFound},
		{"energy folder without data", "/api/sessions/" + id + "/actions", `{"type":"select_energy","name":"Solar"}`, http.StatusUnprocessableEntity},
		{"unknown session", "/api/sessions/nope/actions", `{"type":"dismiss_splash"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestClickEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/sessions/"+id+"/click", `{"lat":42,"lon":102}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[explorer.ClickResult](t, rec)
	assert.Equal(t, "Alpha", res.Place.Region)
	assert.Equal(t, "Alpha", res.Session.State.SelectedRegion)

	rec = do(t, srv, http.MethodPost, "/api/sessions/"+id+"/click", `{"lat":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapEndpoint_ConsumesFlyTo(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)
	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/click", `{"lat":42,"lon":107}`)

	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/map", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[explorer.MapView](t, rec).FlyTo)

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/map", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[explorer.MapView](t, rec).FlyTo)
}

func TestHazardPNGEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/overlays/hazard.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/actions",
		`{"type":"select_climate","climate":{"variable":"Precipitation","scenario":"Historical","seasonality":"Annual"}}`)
	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/overlays/hazard.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
}

func TestDashboardEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/sessions/"+id+"/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.WarnSelectBoth, decode[domain.Dashboard](t, rec).Warning)

	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/actions",
		`{"type":"select_climate","climate":{"variable":"Precipitation","scenario":"Historical","seasonality":"Annual"}}`)
	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/actions", `{"type":"select_agriculture","crop":"Rice","detail":"Rainfed"}`)
	do(t, srv, http.MethodPost, "/api/sessions/"+id+"/actions", `{"type":"expand_dashboard"}`)

	rec = do(t, srv, http.MethodGet, "/api/sessions/"+id+"/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[domain.Dashboard](t, rec)
	assert.Equal(t, "Full Dashboard View", d.Title)
	assert.Empty(t, d.Warning)
	assert.Len(t, d.Rows, 2)
}
