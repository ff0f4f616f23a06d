package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/codeready-toolchain/eap/pkg/apperr"
)

// mapServiceError maps a service-layer error to an HTTP status and message,
// the gin-native equivalent of the teacher's echo mapServiceError. Unknown
// errors are logged and reported as a generic 500 so internal details never
// leak to a caller.
func mapServiceError(err error) (int, string) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrCrossTenant):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden, "permission denied"
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, "resource already exists"
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, "resource is not in a state that permits this operation"
	}

	slog.Error("api.unexpected_service_error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}
