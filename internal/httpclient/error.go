package httpclient

import (
	"fmt"
	"net/http"

	ierr "github.com/cloudfin/finance/internal/errors"
)

// Error is a non-2xx response from an upstream service
type Error struct {
	StatusCode int
	Response   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// NewError wraps a failed response. 401 and 403 are marked unauthorized so
// callers can refresh their token, everything else is unavailable.
func NewError(statusCode int, response []byte) error {
	kind := ierr.ErrUnavailable
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		kind = ierr.ErrUnauthorized
	}
	return ierr.WithError(&Error{StatusCode: statusCode, Response: response}).
		WithHintf("Upstream service responded with status %d", statusCode).
		Mark(kind)
}

// IsHTTPError checks if an error is an HTTP client error
func IsHTTPError(err error) (*Error, bool) {
	var httpErr *Error
	if ierr.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
