package binding

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrVendor is returned when a vendor answers 200 with an error envelope.
	ErrVendor = errors.New("vendor reported an error")
	// ErrLoggedOut is returned when the vendor no longer accepts the session.
	ErrLoggedOut = errors.New("session is logged out")
	// ErrUnexpectedStatus is returned for an HTTP status the caller did not expect.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// UnexpectedStatus wraps ErrUnexpectedStatus with the request and the status received.
func UnexpectedStatus(resp *http.Response) error {
	return fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
}
