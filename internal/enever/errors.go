package enever

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken indicates the API rejected the configured token.
	ErrInvalidToken = errors.New("enever: invalid API token")

	// ErrCannotConnect indicates a transport failure or timeout reaching the API.
	ErrCannotConnect = errors.New("enever: cannot connect")

	// ErrMalformedResponse indicates a 200 response whose body did not match
	// the documented shape.
	ErrMalformedResponse = errors.New("enever: malformed response")
)

// StatusError is returned for any non-200 HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("enever: unexpected HTTP status %d", e.StatusCode)
}

// Classify maps an error from the client onto a small label set, used for
// metrics and log fields.
func Classify(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrCannotConnect):
		return "cannot_connect"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.As(err, &statusErr):
		return "http_status"
	default:
		return "unclassified"
	}
}
