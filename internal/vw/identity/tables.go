package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	PortalHomePath     = "/portal/en_GB/web/guest/home"
	LoginURLPath       = "/portal/en_GB/web/guest/home/-/csrftokenhandling/get-login-url"
	CompleteLoginPath  = "/portal/web/guest/complete-login"
	emailFormSelector  = "form#emailPasswordForm"
	passwordFormSelect = "form#credentialsForm"
)

var redirects = []int{http.StatusFound, http.StatusSeeOther}

// PortalLogin logs in to the Car-Net portal. It ends on the vehicle
// dashboard with a fresh portal csrf token.
func PortalLogin() Table {
	steps := identitySteps(func(f *Flow, location *url.URL) State {
		if strings.Contains(location.Path, CompleteLoginPath) {
			return AwaitCompleteLogin
		}
		return AwaitCallback
	})
	steps[AwaitPortalCsrf] = Step{
		Expect: []int{http.StatusOK},
		Request: func(ctx context.Context, f *Flow) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, f.PortalURL+PortalHomePath, nil)
		},
		Next: func(f *Flow, resp *http.Response) (State, error) {
			token, err := ScrapeMetaCsrf(resp.Body)
			if err != nil {
				return "", err
			}
			f.PortalCsrf = token
			return AwaitLoginURL, nil
		},
	}
	steps[AwaitLoginURL] = Step{
		Expect: []int{http.StatusOK},
		Request: func(ctx context.Context, f *Flow) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.PortalURL+LoginURLPath, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-CSRF-Token", f.PortalCsrf)
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
		Next: func(f *Flow, resp *http.Response) (State, error) {
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			result := gjson.ParseBytes(body)
			if code := result.Get("errorCode").String(); code != "0" {
				return "", fmt.Errorf("%w: errorCode %q", ErrVendor, code)
			}
			loginURL := result.Get("loginURL.path").String()
			if loginURL == "" {
				return "", fmt.Errorf("no login url in response")
			}
			f.Next = loginURL
			return AwaitAuthorizeRedirect, nil
		},
	}
	steps[AwaitCompleteLogin] = Step{
		Expect: []int{http.StatusFound},
		Request: func(ctx context.Context, f *Flow) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Next, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-CSRF-Token", f.PortalCsrf)
			return req, nil
		},
		Next: func(f *Flow, resp *http.Response) (State, error) {
			location, err := resp.Location()
			if err != nil {
				return "", err
			}
			f.Next = location.String()
			return AwaitDashboard, nil
		},
	}
	steps[AwaitDashboard] = Step{
		Expect: []int{http.StatusOK},
		Request: func(ctx context.Context, f *Flow) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, f.Next, nil)
		},
		Next: func(f *Flow, resp *http.Response) (State, error) {
			token, err := ScrapeMetaCsrf(resp.Body)
			if err != nil {
				return "", err
			}
			f.PortalCsrf = token
			f.DashboardURL = strings.TrimSuffix(f.Next, "/")
			return Done, nil
		},
	}
	return Table{Start: AwaitPortalCsrf, Steps: steps}
}

// TokenLogin logs in starting at f.Next, an authorize URL, and ends when the
// identity service redirects to a URL carrying an id_token fragment.
func TokenLogin() Table {
	steps := identitySteps(func(f *Flow, location *url.URL) State {
		fragment, err := url.ParseQuery(location.Fragment)
		if err == nil && fragment.Get("id_token") != "" {
			f.Fragment = fragment
			return Done
		}
		return AwaitCallback
	})
	return Table{Start: AwaitAuthorizeRedirect, Steps: steps}
}

// identitySteps are the hops shared by both flows, from the authorize
// redirect to the final callback. landed decides whether a callback
// location ends the identity part of the flow.
func identitySteps(landed func(f *Flow, location *url.URL) State) map[State]Step {
	follow := func(ctx context.Context, f *Flow) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, f.Next, nil)
	}
	submit := func(ctx context.Context, f *Flow) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Form.Action, strings.NewReader(f.Form.Fields.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}
	return map[State]Step{
		AwaitAuthorizeRedirect: {
			Expect:  redirects,
			Request: follow,
			Next: func(f *Flow, resp *http.Response) (State, error) {
				return redirectTo(f, resp, AwaitEmailForm)
			},
		},
		AwaitEmailForm: {
			Expect:  []int{http.StatusOK},
			Request: follow,
			Next: func(f *Flow, resp *http.Response) (State, error) {
				form, err := ScrapeForm(resp.Body, resp.Request.URL, emailFormSelector)
				if err != nil {
					return "", err
				}
				form.Fields.Set("email", f.Email)
				f.Form = form
				return AwaitIdentifierRedirect, nil
			},
		},
		AwaitIdentifierRedirect: {
			Expect:  redirects,
			Request: submit,
			Next: func(f *Flow, resp *http.Response) (State, error) {
				return redirectTo(f, resp, AwaitPasswordForm)
			},
		},
		AwaitPasswordForm: {
			Expect:  []int{http.StatusOK},
			Request: follow,
			Next: func(f *Flow, resp *http.Response) (State, error) {
				form, err := ScrapeForm(resp.Body, resp.Request.URL, passwordFormSelect)
				if err != nil {
					return "", err
				}
				form.Fields.Set("email", f.Email)
				form.Fields.Set("password", f.Password)
				f.Form = form
				return AwaitAuthenticateRedirect, nil
			},
		},
		AwaitAuthenticateRedirect: {
			Expect:  redirects,
			Request: submit,
			Next: func(f *Flow, resp *http.Response) (State, error) {
				location, err := resp.Location()
				if err != nil {
					return "", err
				}
				if reason := location.Query().Get("error"); reason != "" {
					return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, reason)
				}
				f.Next = location.String()
				return landed(f, location), nil
			},
		},
		AwaitCallback: {
			Expect:  redirects,
			Request: follow,
			Next: func(f *Flow, resp *http.Response) (State, error) {
				location, err := resp.Location()
				if err != nil {
					return "", err
				}
				f.Next = location.String()
				return landed(f, location), nil
			},
		},
	}
}

func redirectTo(f *Flow, resp *http.Response, next State) (State, error) {
	location, err := resp.Location()
	if err != nil {
		return "", err
	}
	f.Next = location.String()
	return next, nil
}
