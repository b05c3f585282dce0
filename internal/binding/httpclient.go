package binding

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultTimeout is the per-request timeout every vendor client uses.
const DefaultTimeout = 15 * time.Second

// NewSessionClient copies base and gives the copy its own cookie jar and a
// fixed timeout. Redirects are returned to the caller instead of followed so
// that login flows can inspect each hop.
func NewSessionClient(base *http.Client, timeout time.Duration) *http.Client {
	c := NewClient(base, timeout)
	jar, err := cookiejar.New(nil)
	if err == nil {
		c.Jar = jar
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// NewClient copies base and sets a fixed timeout on the copy.
func NewClient(base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	c := *base
	c.Timeout = timeout
	return &c
}
