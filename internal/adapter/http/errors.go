package http

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/explorer"
	"github.com/couchcryptid/climate-risk-explorer/internal/raster"
	"github.com/couchcryptid/climate-risk-explorer/internal/region"
	"github.com/couchcryptid/climate-risk-explorer/internal/session"
)

// statusFor maps service errors to response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, explorer.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, region.ErrUnknownRegion),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, catalog.ErrUnknownAsset),
		errors.Is(err, explorer.ErrNoHazard),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, catalog.ErrIncompleteSelection):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNoEnergyFile),
		errors.Is(err, raster.ErrNoBand),
		errors.Is(err, raster.ErrUnsupported):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
