// Package identity walks the VW identity login redirect chain as a table of
// states, one HTTP hop per state.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

type State string

const (
	AwaitPortalCsrf           State = "AwaitPortalCsrf"
	AwaitLoginURL             State = "AwaitLoginURL"
	AwaitAuthorizeRedirect    State = "AwaitAuthorizeRedirect"
	AwaitEmailForm            State = "AwaitEmailForm"
	AwaitIdentifierRedirect   State = "AwaitIdentifierRedirect"
	AwaitPasswordForm         State = "AwaitPasswordForm"
	AwaitAuthenticateRedirect State = "AwaitAuthenticateRedirect"
	AwaitCallback             State = "AwaitCallback"
	AwaitCompleteLogin        State = "AwaitCompleteLogin"
	AwaitDashboard            State = "AwaitDashboard"
	Done                      State = "Done"
)

// MaxHops bounds the number of requests a single login may make.
const MaxHops = 25

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyHops        = errors.New("too many login hops")
	ErrVendor             = errors.New("vendor reported an error")
)

// StepError is returned when a hop fails. Status is the HTTP status of the
// hop, or 0 when no response was received.
type StepError struct {
	State  State
	Status int
	Err    error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("login step %s: unexpected status %d", e.State, e.Status)
	}
	if e.Status == 0 {
		return fmt.Sprintf("login step %s: %s", e.State, e.Err)
	}
	return fmt.Sprintf("login step %s (status %d): %s", e.State, e.Status, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Credentials of the VW identity account.
type Credentials struct {
	Email    string
	Password string
}

// Flow is the data carried from one hop to the next.
type Flow struct {
	Credentials

	// PortalURL is the Car-Net portal root, used by the portal table.
	PortalURL string
	// Next is the URL the next hop requests.
	Next string
	// Form is the last scraped login form.
	Form Form

	// PortalCsrf is the portal csrf token, refreshed on the dashboard.
	PortalCsrf string
	// DashboardURL is the vehicle dashboard the portal login lands on.
	DashboardURL string
	// Fragment holds the parameters of the final token redirect.
	Fragment url.Values
}

// Step is one hop: the request it makes, the statuses it accepts and how the
// response selects the next state.
type Step struct {
	Expect  []int
	Request func(ctx context.Context, f *Flow) (*http.Request, error)
	Next    func(f *Flow, resp *http.Response) (State, error)
}

// Table is a login flow: the initial state and one step per state.
type Table struct {
	Start State
	Steps map[State]Step
}

// Run walks the table from its start state until Done. The client must not
// follow redirects and should carry a cookie jar.
func Run(ctx context.Context, client *http.Client, table Table, f *Flow) error {
	state := table.Start
	for hops := 0; state != Done; hops++ {
		if hops >= MaxHops {
			return &StepError{State: state, Err: ErrTooManyHops}
		}
		step, ok := table.Steps[state]
		if !ok {
			return &StepError{State: state, Err: fmt.Errorf("no transition defined")}
		}
		req, err := step.Request(ctx, f)
		if err != nil {
			return &StepError{State: state, Err: err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return &StepError{State: state, Err: err}
		}
		if !expected(step.Expect, resp.StatusCode) {
			resp.Body.Close()
			return &StepError{State: state, Status: resp.StatusCode}
		}
		next, err := step.Next(f, resp)
		resp.Body.Close()
		if err != nil {
			return &StepError{State: state, Status: resp.StatusCode, Err: err}
		}
		log.Debug().Str("state", string(state)).Int("status", resp.StatusCode).Str("next", string(next)).Msg("Login hop")
		state = next
	}
	return nil
}

func expected(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
