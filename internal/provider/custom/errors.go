package custom

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrServiceUnavailable = errors.New("custom face service unavailable")
	ErrInvalidResponse    = errors.New("invalid response from custom face service")
	ErrMissingEndpoint    = errors.New("custom face service endpoint not configured")
)

// statusError carries a non-2xx response from the face service.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("face service returned status %d: %s", e.StatusCode, e.Body)
}

// isClientError checks if the error is a 4xx client error
func isClientError(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func bodyOf(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return se.Body
	}
	return ""
}

func isAuthError(err error) bool {
	code := statusOf(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
