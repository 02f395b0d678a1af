package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/banshee-data/traffic.replay/internal/dataset"
	"github.com/banshee-data/traffic.replay/internal/httputil"
	"github.com/banshee-data/traffic.replay/internal/roadmap"
	"github.com/banshee-data/traffic.replay/internal/security"
	"github.com/banshee-data/traffic.replay/internal/session"
)

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var (
		parseErr *dataset.ParseError
		valErrs  validator.ValidationErrors
	)
	switch {
	case errors.Is(err, session.ErrRegistryFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, dataset.ErrNotFound),
		errors.Is(err, roadmap.ErrNotFound),
		errors.Is(err, dataset.ErrNoTrajectoryData):
		return http.StatusNotFound
	case errors.As(err, &parseErr), errors.Is(err, roadmap.ErrInvalidMap):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrUnsupportedDataset),
		errors.Is(err, security.ErrOutsideRoot),
		errors.As(err, &valErrs),
		session.IsConfigError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}
