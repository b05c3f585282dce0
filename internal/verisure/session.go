package verisure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

// Alarm arm states accepted by the vendor.
const (
	ArmStateDisarmed  = "DISARMED"
	ArmStateArmedHome = "ARMED_HOME"
	ArmStateArmedAway = "ARMED_AWAY"
)

// Session keeps a logged in cookie session against My Pages and the last
// snapshot of every device.
type Session struct {
	httpClient *http.Client
	baseURL    string
	country    string
	username   string
	password   string
	registry   *binding.Registry[Device]

	mu       sync.Mutex
	loggedIn bool
	csrf     string
}

func NewSession(httpClient *http.Client, cfg Config) *Session {
	return &Session{
		httpClient: binding.NewSessionClient(httpClient, binding.DefaultTimeout),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		country:    cfg.Country,
		username:   cfg.Username,
		password:   cfg.Password,
		registry:   binding.NewRegistry[Device](),
	}
}

func (s *Session) Registry() *binding.Registry[Device] {
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
		log.Warn().Err(err).Str("user", s.username).Msg("Verisure login failed")
		return false
	}
	return true
}

// Refresh logs in again when the session is gone, then polls every device page.
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn || !s.alive(ctx) {
		if err := s.login(ctx); err != nil {
			log.Warn().Err(err).Str("user", s.username).Msg("Verisure login failed")
			return false
		}
	}
	devices, err := s.poll(ctx)
	if err != nil {
		if errors.Is(err, binding.ErrLoggedOut) {
			s.loggedIn = false
		}
		log.Warn().Err(err).Msg("Verisure refresh failed")
		return false
	}
	s.registry.Sync(devices)
	return true
}

func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.csrf = ""
	s.registry.Clear()
}

func (s *Session) url(path string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.country, path)
}

func (s *Session) login(ctx context.Context) error {
	s.loggedIn = false
	csrf, err := s.scrapeCsrf(ctx, "login.html")
	if err != nil {
		return fmt.Errorf("unable to load login page: %w", err)
	}
	form := url.Values{
		"j_username": {s.username},
		"j_password": {s.password},
		"_csrf":      {csrf},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url("j_spring_security_check?locale="+s.country), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to post credentials: %w", err)
	}
	resp.Body.Close()
	location := resp.Header.Get("Location")
	if resp.StatusCode != http.StatusFound || !strings.Contains(location, "start.html") {
		return fmt.Errorf("credentials rejected, redirected to %q with status %d", location, resp.StatusCode)
	}
	csrf, err = s.scrapeCsrf(ctx, "start.html")
	if err != nil {
		return fmt.Errorf("unable to load start page: %w", err)
	}
	s.csrf = csrf
	s.loggedIn = true
	log.Debug().Str("user", s.username).Msg("Logged in to Verisure")
	return nil
}

func (s *Session) scrapeCsrf(ctx context.Context, page string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(page), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", binding.UnexpectedStatus(resp)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}
	csrf, ok := doc.Find("input[name=_csrf]").Attr("value")
	if !ok || csrf == "" {
		return "", fmt.Errorf("no csrf token on %s", page)
	}
	return csrf, nil
}

// alive requests the remote control page. A redirect back to the login page
// means the vendor dropped the session.
func (s *Session) alive(ctx context.Context) bool {
	_, err := s.get(ctx, "remotecontrol")
	if err != nil {
		log.Debug().Err(err).Msg("Verisure session check failed")
		s.loggedIn = false
		return false
	}
	return true
}

func (s *Session) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, binding.ErrLoggedOut
	}
	if resp.StatusCode != http.StatusOK {
		return nil, binding.UnexpectedStatus(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(body); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return body, nil
}

func checkEnvelope(body []byte) error {
	result := gjson.ParseBytes(body)
	if result.IsObject() && result.Get("status").String() == "error" {
		return fmt.Errorf("%w: %s", binding.ErrVendor, result.Get("message").String())
	}
	return nil
}

func (s *Session) getJSON(ctx context.Context, path string, target interface{}) error {
	body, err := s.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return nil
}

func (s *Session) poll(ctx context.Context) ([]Device, error) {
	devices := make([]Device, 0)

	var remote []remoteControlJSON
	if err := s.getJSON(ctx, "remotecontrol", &remote); err != nil {
		return nil, err
	}
	var lockSettings []smartLockSettingsJSON
	if err := s.getJSON(ctx, "settings/smartlock", &lockSettings); err != nil {
		return nil, err
	}
	settings := make(map[string]smartLockSettingsJSON, len(lockSettings))
	for _, l := range lockSettings {
		settings[binding.NormalizeID(l.DeviceLabel)] = l
	}
	for _, r := range remote {
		switch r.Type {
		case "ARM_STATE":
			devices = append(devices, Alarm{
				ID:        r.ID,
				Status:    r.Status,
				Label:     r.Label,
				Date:      r.Date,
				ChangedBy: r.Name,
				Location:  r.Location,
			})
		case "DOOR_LOCK":
			l := settings[binding.NormalizeID(r.ID)]
			devices = append(devices, SmartLock{
				ID:                 r.ID,
				Status:             r.Status,
				Label:              r.Label,
				Date:               r.Date,
				ChangedBy:          r.Name,
				Location:           r.Location,
				AutoRelock:         l.AutoRelockEnabled,
				Volume:             l.Volume,
				VoiceLevel:         l.VoiceLevel,
				VolumeSettings:     l.VolumeSettings,
				VoiceLevelSettings: l.VoiceLevelSettings,
			})
		default:
			log.Debug().Str("type", r.Type).Msg("Ignoring unknown remote control entry")
		}
	}

	var plugs []smartPlugJSON
	if err := s.getJSON(ctx, "overview/smartplug", &plugs); err != nil {
		return nil, err
	}
	for _, p := range plugs {
		devices = append(devices, SmartPlug{ID: p.DeviceLabel, Location: p.Location, Status: p.Status})
	}

	var climate []climateJSON
	if err := s.getJSON(ctx, "overview/climatedevice", &climate); err != nil {
		return nil, err
	}
	for _, c := range climate {
		devices = append(devices, ClimateSensor{
			ID:          c.DeviceLabel,
			Location:    c.Location,
			Temperature: c.Temperature,
			Humidity:    c.Humidity,
			Timestamp:   c.Timestamp,
		})
	}

	var doors []doorWindowJSON
	if err := s.getJSON(ctx, "settings/doorwindow", &doors); err != nil {
		return nil, err
	}
	for _, d := range doors {
		devices = append(devices, DoorWindow{ID: d.DeviceLabel, Location: d.Area, State: d.State})
	}

	var users []userPresenceJSON
	if err := s.getJSON(ctx, "userpresence", &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		devices = append(devices, UserPresence{
			ID:       u.WebAccount,
			Name:     u.Name,
			Status:   u.UserLocationStatus,
			Location: u.CurrentLocationName,
		})
	}
	return devices, nil
}

// SetAlarmState arms or disarms the installation.
func (s *Session) SetAlarmState(ctx context.Context, pin string, state string) error {
	return s.post(ctx, "remotecontrol/armstatechange.cmd", url.Values{
		"code":  {pin},
		"state": {state},
	})
}

func (s *Session) SetSmartLock(ctx context.Context, pin string, deviceID string, locked bool) error {
	state := "UNLOCKED"
	if locked {
		state = "LOCKED"
	}
	return s.post(ctx, "remotecontrol/lockunlock.cmd", url.Values{
		"code":        {pin},
		"deviceLabel": {deviceID},
		"state":       {state},
	})
}

// SetSmartLockSettings submits the full settings form of one lock.
func (s *Session) SetSmartLockSettings(ctx context.Context, deviceID string, autoRelock bool, volume string, voiceLevel string) error {
	return s.post(ctx, "settings/smartlock/"+url.PathEscape(deviceID), url.Values{
		"autoRelockEnabled": {fmt.Sprint(autoRelock)},
		"volume":            {volume},
		"voiceLevel":        {voiceLevel},
	})
}

func (s *Session) SetSmartPlug(ctx context.Context, deviceID string, on bool) error {
	return s.post(ctx, "smartplugs/onoffplug.cmd", url.Values{
		"targetDeviceLabel": {deviceID},
		"targetOn":          {fmt.Sprint(on)},
	})
}

func (s *Session) post(ctx context.Context, path string, form url.Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return binding.ErrLoggedOut
	}
	form.Set("_csrf", s.csrf)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-TOKEN", s.csrf)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to send %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		s.loggedIn = false
		return binding.ErrLoggedOut
	}
	if resp.StatusCode != http.StatusOK {
		return binding.UnexpectedStatus(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return checkEnvelope(body)
}
