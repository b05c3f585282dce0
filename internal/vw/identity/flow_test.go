package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/vw/identity/identitytest"
)

const vin = "WVWZZZ1KZAW000001"

func newServer(t *testing.T) (*identitytest.Server, *httptest.Server, *http.Client) {
	fake := identitytest.NewServer("anna@example.com", "secret", vin)
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server, binding.NewSessionClient(server.Client(), binding.DefaultTimeout)
}

func TestPortalLogin(t *testing.T) {
	fake, server, client := newServer(t)
	flow := &Flow{
		Credentials: Credentials{Email: "anna@example.com", Password: "secret"},
		PortalURL:   server.URL,
	}

	require.NoError(t, Run(context.Background(), client, PortalLogin(), flow))

	assert.Equal(t, server.URL+"/portal/delegate/dashboard/"+vin, flow.DashboardURL)
	assert.Equal(t, identitytest.DashboardCsrf, flow.PortalCsrf)
	assert.Equal(t, 1, fake.Logins())
}

func TestTokenLogin(t *testing.T) {
	_, server, client := newServer(t)
	flow := &Flow{
		Credentials: Credentials{Email: "anna@example.com", Password: "secret"},
		Next:        identitytest.AuthorizeURL(server.URL, "carnet://identity-kit/login"),
	}

	require.NoError(t, Run(context.Background(), client, TokenLogin(), flow))

	assert.Equal(t, identitytest.IDToken, flow.Fragment.Get("id_token"))
	assert.Equal(t, identitytest.Code, flow.Fragment.Get("code"))
}

func TestLogin_WrongPassword(t *testing.T) {
	_, server, client := newServer(t)
	flow := &Flow{
		Credentials: Credentials{Email: "anna@example.com", Password: "nope"},
		PortalURL:   server.URL,
	}

	err := Run(context.Background(), client, PortalLogin(), flow)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, AwaitAuthenticateRedirect, stepErr.State)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UndeclaredStatusFails(t *testing.T) {
	fake, server, client := newServer(t)
	fake.FailPath("/signin-service/v1/signin/client", http.StatusInternalServerError)
	flow := &Flow{
		Credentials: Credentials{Email: "anna@example.com", Password: "secret"},
		PortalURL:   server.URL,
	}

	err := Run(context.Background(), client, PortalLogin(), flow)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, AwaitEmailForm, stepErr.State)
	assert.Equal(t, http.StatusInternalServerError, stepErr.Status)
}

func TestLogin_RedirectLoopIsBounded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	flow := &Flow{Next: server.URL + "/loop"}
	table := Table{Start: AwaitCallback, Steps: identitySteps(func(*Flow, *url.URL) State { return AwaitCallback })}

	err := Run(context.Background(), binding.NewSessionClient(server.Client(), binding.DefaultTimeout), table, flow)

	assert.ErrorIs(t, err, ErrTooManyHops)
}

func TestLogin_VendorErrorCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PortalHomePath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<meta name="_csrf" content="c"/>`))
	})
	mux.HandleFunc(LoginURLPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errorCode":"2","errorMsg":"Service unavailable"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	err := Run(context.Background(), binding.NewSessionClient(server.Client(), binding.DefaultTimeout), PortalLogin(), &Flow{PortalURL: server.URL})

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, AwaitLoginURL, stepErr.State)
	assert.ErrorIs(t, err, ErrVendor)
}

func TestScrapeForm(t *testing.T) {
	page := `<html><body>
<form id="other" action="/nope"><input type="hidden" name="_csrf" value="x"/></form>
<form id="emailPasswordForm" action="login/identifier">
<input type="hidden" name="_csrf" value="c1"/>
<input type="hidden" name="relayState" value="r1"/>
<input type="hidden" name="hmac" value="h1"/>
<input type="email" name="email"/>
</form></body></html>`
	base, _ := url.Parse("https://identity.vwgroup.io/signin-service/v1/signin/client")

	form, err := ScrapeForm(strings.NewReader(page), base, "form#emailPasswordForm")

	require.NoError(t, err)
	assert.Equal(t, "https://identity.vwgroup.io/signin-service/v1/signin/login/identifier", form.Action)
	assert.Equal(t, "c1", form.Fields.Get("_csrf"))
	assert.Equal(t, "r1", form.Fields.Get("relayState"))
	assert.Equal(t, "h1", form.Fields.Get("hmac"))
	_, hasEmail := form.Fields["email"]
	assert.False(t, hasEmail)

	_, err = ScrapeForm(strings.NewReader(page), base, "form#other")
	assert.Error(t, err)
}
