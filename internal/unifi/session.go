package unifi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

const csrfHeader = "X-Csrf-Token"

// Session keeps a cookie session against one controller site.
type Session struct {
	httpClient   *http.Client
	baseURL      string
	site         string
	username     string
	password     string
	considerHome time.Duration
	registry     *binding.Registry[Client]
	now          func() time.Time

	mu       sync.Mutex
	loggedIn bool
	csrf     string
}

func NewSession(httpClient *http.Client, cfg Config) *Session {
	return &Session{
		httpClient:   binding.NewSessionClient(httpClient, binding.DefaultTimeout),
		baseURL:      strings.TrimSuffix(cfg.baseURL(), "/"),
		site:         cfg.Site,
		username:     cfg.Username,
		password:     cfg.Password,
		considerHome: time.Duration(cfg.ConsiderHome) * time.Second,
		registry:     binding.NewRegistry[Client](),
		now:          time.Now,
	}
}

func (s *Session) Registry() *binding.Registry[Client] {
	return s.registry
}

func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *Session) Initialize(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.login(ctx); err != nil {
		log.Warn().Err(err).Str("controller", s.baseURL).Msg("UniFi login failed")
		return false
	}
	return true
}

// Refresh polls the site's clients. A rejected cookie triggers one new login.
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients, err := s.pollLoggedIn(ctx)
	if err != nil {
		log.Warn().Err(err).Str("controller", s.baseURL).Str("site", s.site).Msg("UniFi refresh failed")
		return false
	}
	s.registry.Sync(clients)
	return true
}

func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedIn {
		// Best effort; the controller expires the cookie on its own.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.send(ctx, http.MethodPost, "/api/logout", nil, nil)
		cancel()
	}
	s.loggedIn = false
	s.csrf = ""
	s.registry.Clear()
}

func (s *Session) pollLoggedIn(ctx context.Context) ([]Client, error) {
	if !s.loggedIn {
		if err := s.login(ctx); err != nil {
			return nil, err
		}
	}
	clients, err := s.poll(ctx)
	if errors.Is(err, binding.ErrLoggedOut) {
		log.Debug().Str("controller", s.baseURL).Msg("UniFi session expired, logging in again")
		if err := s.login(ctx); err != nil {
			return nil, err
		}
		clients, err = s.poll(ctx)
	}
	return clients, err
}

func (s *Session) login(ctx context.Context) error {
	s.loggedIn = false
	s.csrf = ""
	err := s.send(ctx, http.MethodPost, "/api/login", loginJSON{Username: s.username, Password: s.password}, nil)
	if err != nil {
		return fmt.Errorf("login rejected: %w", err)
	}
	s.loggedIn = true
	log.Debug().Str("controller", s.baseURL).Str("user", s.username).Msg("Logged in to UniFi controller")
	return nil
}

func (s *Session) sitePath(path string) string {
	return fmt.Sprintf("/api/s/%s/%s", s.site, path)
}

func (s *Session) poll(ctx context.Context) ([]Client, error) {
	var active envelope[clientJSON]
	if err := s.send(ctx, http.MethodGet, s.sitePath("stat/sta"), nil, &active); err != nil {
		return nil, err
	}
	var known envelope[clientJSON]
	if err := s.send(ctx, http.MethodGet, s.sitePath("rest/user"), nil, &known); err != nil {
		return nil, err
	}

	now := s.now()
	clients := make(map[string]*Client)
	order := make([]string, 0, len(active.Data)+len(known.Data))
	for _, c := range active.Data {
		id := clientKey(c.MAC)
		if id == "" {
			continue
		}
		client := s.toClient(c)
		client.Active = true
		clients[id] = &client
		order = append(order, id)
	}
	for _, u := range known.Data {
		id := clientKey(u.MAC)
		if id == "" {
			continue
		}
		if existing, ok := clients[id]; ok {
			existing.Blocked = u.Blocked
			if existing.Name == "" {
				existing.Name = u.Name
			}
			continue
		}
		client := s.toClient(u)
		clients[id] = &client
		order = append(order, id)
	}

	result := make([]Client, 0, len(order))
	for _, id := range order {
		client := clients[id]
		client.Online = client.Active
		if seen, ok := client.LastSeenTime(); ok && !client.Online {
			client.Online = now.Sub(seen) <= s.considerHome
		}
		result = append(result, *client)
	}
	return result, nil
}

// clientKey merges the two client lists, which do not agree on MAC case.
func clientKey(mac string) string {
	return binding.NormalizeID(strings.ToLower(mac))
}

func (s *Session) toClient(c clientJSON) Client {
	client := Client{
		MAC:      strings.ToLower(c.MAC),
		Name:     c.Name,
		Hostname: c.Hostname,
		IP:       c.IP,
		Site:     s.site,
		Wired:    c.IsWired,
		Blocked:  c.Blocked,
		Uptime:   c.Uptime,
		LastSeen: c.LastSeen,
	}
	if !c.IsWired {
		client.ESSID = c.ESSID
		client.APMAC = c.APMAC
		client.RSSI = c.RSSI
	}
	return client
}

// Reconnect kicks a wireless client off its access point.
func (s *Session) Reconnect(ctx context.Context, mac string) error {
	return s.stamgr(ctx, "kick-sta", mac)
}

func (s *Session) Block(ctx context.Context, mac string, blocked bool) error {
	if blocked {
		return s.stamgr(ctx, "block-sta", mac)
	}
	return s.stamgr(ctx, "unblock-sta", mac)
}

func (s *Session) stamgr(ctx context.Context, cmd string, mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return binding.ErrLoggedOut
	}
	body := stamgrJSON{Cmd: cmd, MAC: strings.ToLower(mac)}
	err := s.send(ctx, http.MethodPost, s.sitePath("cmd/stamgr"), body, nil)
	if errors.Is(err, binding.ErrLoggedOut) {
		if err := s.login(ctx); err != nil {
			return err
		}
		err = s.send(ctx, http.MethodPost, s.sitePath("cmd/stamgr"), body, nil)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd, mac, err)
	}
	return nil
}

// send issues one JSON request and checks the controller's meta envelope.
// target may be nil when only the envelope matters.
func (s *Session) send(ctx context.Context, method string, path string, payload interface{}, target interface{}) error {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.csrf != "" {
		req.Header.Set(csrfHeader, s.csrf)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if token := resp.Header.Get(csrfHeader); token != "" {
		s.csrf = token
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrf_token" && cookie.Value != "" {
			s.csrf = cookie.Value
		}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.loggedIn = false
		return binding.ErrLoggedOut
	}
	if resp.StatusCode != http.StatusOK {
		return binding.UnexpectedStatus(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope[json.RawMessage]
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unable to decode %s: %w", path, err)
	}
	if env.Meta.RC != "ok" {
		return fmt.Errorf("%w: %s %s", binding.ErrVendor, path, env.Meta.Msg)
	}
	if target != nil {
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("unable to decode %s: %w", path, err)
		}
	}
	return nil
}
