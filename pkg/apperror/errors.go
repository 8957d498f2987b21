package apperror

import (
	"errors"
	"net/http"

	"anoa.com/notifeed/internal/feed"
)

var ErrUnauthorized = errors.New("unauthorized")

// MapErrorToStatus maps domain errors to HTTP status codes
func MapErrorToStatus(err error) int {
	if errors.Is(err, feed.ErrLockTimeout) {
		// Lock not acquired, nothing was mutated; the caller may retry.
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, feed.ErrNoActivities) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}
