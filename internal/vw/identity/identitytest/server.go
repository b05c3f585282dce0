// Package identitytest serves a fake VW identity service and Car-Net portal
// login for tests.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const (
	PortalCsrf    = "portal-csrf"
	DashboardCsrf = "dashboard-csrf"
	IDToken       = "id-token"
	Code          = "auth-code"

	relayState = "relay-1"
	emailHmac  = "hmac-email"
	authHmac   = "hmac-password"
	signinCsrf = "signin-csrf"
)

const formPage = `<html><body>
<form id="%s" method="POST" action="%s">
<input type="hidden" name="_csrf" value="%s"/>
<input type="hidden" name="relayState" value="%s"/>
<input type="hidden" name="hmac" value="%s"/>
%s
</form></body></html>`

const metaPage = `<html><head><meta name="_csrf" content="%s"/></head><body></body></html>`

// Server is a ServeMux so tests can add vendor API routes next to the login.
type Server struct {
	*http.ServeMux
	Email    string
	Password string
	VIN      string

	mu           sync.Mutex
	failures     map[string]int
	redirectURI  string
	responseType string
	state        string
	logins       int
}

func NewServer(email, password, vin string) *Server {
	s := &Server{ServeMux: http.NewServeMux(), Email: email, Password: password, VIN: vin, failures: map[string]int{}}
	s.HandleFunc("/portal/en_GB/web/guest/home", s.portalHome)
	s.HandleFunc("/portal/en_GB/web/guest/home/-/csrftokenhandling/get-login-url", s.loginURL)
	s.HandleFunc("/oidc/v1/authorize", s.authorize)
	s.HandleFunc("/signin-service/v1/signin/client", s.emailForm)
	s.HandleFunc("/signin-service/v1/client/login/identifier", s.identifier)
	s.HandleFunc("/signin-service/v1/client/login/authenticate", s.authenticate)
	s.HandleFunc("/oidc/v1/oauth/sso", s.sso)
	s.HandleFunc("/oidc/v1/oauth/client/callback/success", s.callback)
	s.HandleFunc("/portal/web/guest/complete-login", s.completeLogin)
	s.HandleFunc("/portal/delegate/dashboard/"+vin, s.dashboard)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, failing := s.failures[r.URL.Path]
	s.mu.Unlock()
	if failing {
		w.WriteHeader(status)
		return
	}
	s.ServeMux.ServeHTTP(w, r)
}

// FailPath makes every request to path answer with status.
func (s *Server) FailPath(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = status
}

// Logins counts successful password submissions.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) SetPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Password = password
}

// AuthorizeURL is where a token login starts.
func AuthorizeURL(base string, redirectURI string) string {
	query := url.Values{
		"client_id":     {"client"},
		"response_type": {"code id_token token"},
		"state":         {"state-1"},
		"redirect_uri":  {redirectURI},
	}
	return base + "/oidc/v1/authorize?" + query.Encode()
}

func base(r *http.Request) string {
	return "http://" + r.Host
}

func (s *Server) portalHome(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "portal", Value: "1", Path: "/"})
	fmt.Fprintf(w, metaPage, PortalCsrf)
}

func (s *Server) loginURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.Header.Get("X-CSRF-Token") != PortalCsrf {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	query := url.Values{
		"client_id":     {"portal"},
		"response_type": {"code"},
		"state":         {"state-1"},
		"redirect_uri":  {base(r) + "/portal/web/guest/complete-login"},
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errorCode": "0",
		"loginURL":  map[string]string{"path": base(r) + "/oidc/v1/authorize?" + query.Encode()},
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.redirectURI = r.URL.Query().Get("redirect_uri")
	s.responseType = r.URL.Query().Get("response_type")
	s.state = r.URL.Query().Get("state")
	s.mu.Unlock()
	http.Redirect(w, r, "/signin-service/v1/signin/client?relayState="+relayState, http.StatusFound)
}

func (s *Server) emailForm(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, formPage, "emailPasswordForm", "/signin-service/v1/client/login/identifier",
		signinCsrf, relayState, emailHmac, `<input type="email" name="email"/>`)
}

func (s *Server) identifier(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if !s.validForm(r, emailHmac) || r.PostForm.Get("email") != s.Email {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/signin-service/v1/client/login/authenticate?relayState="+relayState+"&email="+url.QueryEscape(s.Email), http.StatusSeeOther)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		fmt.Fprintf(w, formPage, "credentialsForm", "/signin-service/v1/client/login/authenticate",
			signinCsrf, relayState, authHmac,
			fmt.Sprintf(`<input type="hidden" name="email" value="%s"/><input type="password" name="password"/>`, s.Email))
		return
	}
	_ = r.ParseForm()
	if !s.validForm(r, authHmac) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.PostForm.Get("password") != s.Password {
		http.Redirect(w, r, "/signin-service/v1/client/login/authenticate?relayState="+relayState+"&error=login.errors.password_invalid", http.StatusSeeOther)
		return
	}
	s.logins++
	http.Redirect(w, r, "/oidc/v1/oauth/sso?clientId=client&relayState="+relayState, http.StatusFound)
}

func (s *Server) validForm(r *http.Request, hmac string) bool {
	return r.PostForm.Get("_csrf") == signinCsrf &&
		r.PostForm.Get("relayState") == relayState &&
		r.PostForm.Get("hmac") == hmac
}

func (s *Server) sso(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/oidc/v1/oauth/client/callback/success?relayState="+relayState, http.StatusFound)
}

func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var location string
	if strings.Contains(s.responseType, "id_token") {
		fragment := url.Values{
			"state":        {s.state},
			"code":         {Code},
			"id_token":     {IDToken},
			"access_token": {"identity-access"},
			"expires_in":   {"3600"},
		}
		location = s.redirectURI + "#" + fragment.Encode()
	} else {
		location = s.redirectURI + "?" + url.Values{"state": {s.state}, "code": {Code}}.Encode()
	}
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("portal"); err != nil || r.Method != http.MethodPost ||
		r.URL.Query().Get("code") != Code || r.Header.Get("X-CSRF-Token") != PortalCsrf {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	http.Redirect(w, r, "/portal/delegate/dashboard/"+s.VIN, http.StatusFound)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, metaPage, DashboardCsrf)
}
