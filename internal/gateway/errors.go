package gateway

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is wrapped when a 2xx body is not a JSON envelope
var ErrMalformedResponse = errors.New("malformed upstream response")

// TransportError means the request never produced an HTTP response
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamHTTPError means upstream answered outside the 2xx range
type UpstreamHTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream %s returned HTTP %d", e.URL, e.Status)
}

// IsClientError reports whether upstream rejected the request itself (4xx)
func (e *UpstreamHTTPError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// IsTransport reports whether err is, or wraps, a *TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// HTTPStatus returns the upstream status carried by err, or 0
func HTTPStatus(err error) int {
	var he *UpstreamHTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
