package weconnect

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
	"time"

	"github.com/guregu/null"
	"github.com/rs/zerolog/log"
	"github.com/shimmeringbee/retry"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/vw/identity"
)

// Session holds a bearer token for the vehicle API and the vehicles of the
// account.
type Session struct {
	httpClient  *http.Client
	config      Config
	credentials identity.Credentials
	registry    *binding.Registry[Vehicle]
	now         func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewSession(httpClient *http.Client, cfg Config) *Session {
	return &Session{
		httpClient:  binding.NewSessionClient(httpClient, binding.DefaultTimeout),
		config:      cfg,
		credentials: identity.Credentials{Email: cfg.Username, Password: cfg.Password},
		registry:    binding.NewRegistry[Vehicle](),
		now:         time.Now,
	}
}

func (s *Session) Registry() *binding.Registry[Vehicle] {
	return s.registry
}

// LoggedIn reports whether the session holds a token that has not expired.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validToken()
}

func (s *Session) validToken() bool {
	return s.token != "" && s.now().Before(s.expiresAt)
}

func (s *Session) Initialize(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.login(ctx); err != nil {
		log.Warn().Err(err).Str("user", s.credentials.Email).Msg("We-Connect login failed")
		return false
	}
	return true
}

func (s *Session) authorizeURL() string {
	query := url.Values{
		"client_id":     {clientID},
		"response_type": {"code id_token token"},
		"redirect_uri":  {redirectURI},
		"scope":         {scope},
		"state":         {fmt.Sprint(s.now().UnixNano())},
		"nonce":         {fmt.Sprint(s.now().Unix())},
	}
	return strings.TrimSuffix(s.config.IdentityURL, "/") + "/oidc/v1/authorize?" + query.Encode()
}

func (s *Session) login(ctx context.Context) error {
	s.token = ""
	flow := &identity.Flow{Credentials: s.credentials, Next: s.authorizeURL()}
	if err := identity.Run(ctx, s.httpClient, identity.TokenLogin(), flow); err != nil {
		return err
	}
	return s.exchange(ctx, flow.Fragment.Get("id_token"))
}

// exchange trades the identity id_token for a vehicle API access token.
func (s *Session) exchange(ctx context.Context, idToken string) error {
	form := url.Values{
		"grant_type": {"id_token"},
		"token":      {idToken},
		"scope":      {"sc2:fal"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Client-Id", clientID)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return binding.UnexpectedStatus(resp)
	}
	var token tokenJSON
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("unable to decode token: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("token exchange returned no access token")
	}
	s.token = token.AccessToken
	s.expiresAt = s.now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenMargin)
	log.Debug().Time("expires", s.expiresAt).Msg("Logged in to We-Connect")
	return nil
}

// Refresh logs in when the token is missing or expired and polls every
// vehicle on the account.
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validToken() {
		if err := s.login(ctx); err != nil {
			log.Warn().Err(err).Msg("We-Connect login failed")
			return false
		}
	}
	vehicles, err := s.poll(ctx)
	if err != nil {
		if errors.Is(err, binding.ErrLoggedOut) {
			s.token = ""
		}
		log.Warn().Err(err).Msg("We-Connect refresh failed")
		return false
	}
	s.registry.Sync(vehicles)
	return true
}

func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.registry.Clear()
}

func (s *Session) vehicleURL(service string, vin string, suffix string) string {
	return fmt.Sprintf("%s/bs/%s/v1/VW/DE/vehicles/%s/%s", strings.TrimSuffix(s.config.APIURL, "/"), service, vin, suffix)
}

func (s *Session) do(req *http.Request, target interface{}) (int, error) {
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, binding.ErrLoggedOut
	case resp.StatusCode == http.StatusNoContent:
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, binding.UnexpectedStatus(resp)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return resp.StatusCode, fmt.Errorf("unable to decode %s: %w", req.URL.Path, err)
	}
	return resp.StatusCode, nil
}

func (s *Session) get(ctx context.Context, endpoint string, target interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	return s.do(req, target)
}

func (s *Session) poll(ctx context.Context) ([]Vehicle, error) {
	var list vehiclesJSON
	listURL := strings.TrimSuffix(s.config.APIURL, "/") + "/usermanagement/users/v1/VW/DE/vehicles"
	if _, err := s.get(ctx, listURL, &list); err != nil {
		return nil, err
	}
	vehicles := make([]Vehicle, 0, len(list.UserVehicles.Vehicle))
	for _, vin := range list.UserVehicles.Vehicle {
		vehicle, err := s.pollVehicle(ctx, vin)
		if err != nil {
			return nil, fmt.Errorf("vehicle %s: %w", vin, err)
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, nil
}

func (s *Session) pollVehicle(ctx context.Context, vin string) (Vehicle, error) {
	vehicle := Vehicle{VIN: vin, Climatisation: "off"}

	var status statusJSON
	if _, err := s.get(ctx, s.vehicleURL("vsr", vin, "status"), &status); err != nil {
		return vehicle, err
	}
	for _, data := range status.StoredVehicleDataResponse.VehicleData.Data {
		for _, f := range data.Field {
			if set, ok := fieldSetters[f.ID]; ok {
				set(&vehicle, f.Value)
			}
		}
	}

	// The position is not reported while the car is moving.
	var position positionJSON
	code, err := s.get(ctx, s.vehicleURL("cf", vin, "position"), &position)
	if err != nil {
		return vehicle, err
	}
	if code == http.StatusOK {
		coordinate := position.FindCarResponse.Position.CarCoordinate
		vehicle.Readings.Latitude = null.FloatFrom(float64(coordinate.Latitude) / 1e6)
		vehicle.Readings.Longitude = null.FloatFrom(float64(coordinate.Longitude) / 1e6)
	}

	var climater climaterJSON
	if _, err := s.get(ctx, s.vehicleURL("rs", vin, "status"), &climater); err != nil {
		return vehicle, err
	}
	if state := climater.StatusResponse.ClimatisationStateReport.ClimatisationState; state != "" {
		vehicle.Climatisation = state
	}
	return vehicle, nil
}

// Lock locks or unlocks the doors after answering the security PIN challenge.
func (s *Session) Lock(ctx context.Context, vin string, pin string, lock bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validToken() {
		return binding.ErrLoggedOut
	}
	operation, action := "UNLOCK", "unlock"
	if lock {
		operation, action = "LOCK", "lock"
	}
	secToken, err := s.securityToken(ctx, vin, "rlu_v1", operation, pin)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(`<?xml version="1.0" encoding= "UTF-8" ?><rluAction xmlns="http://audi.de/connect/rlu"><action>%s</action></rluAction>`, action)
	return s.postAction(ctx, s.vehicleURL("rlu", vin, "actions"), "application/vnd.vwg.mbb.RemoteLockUnlock_v1_0_0+xml", body, secToken)
}

// Climatisation starts the heater or the ventilation, or stops either when
// mode is "off". Starting needs the security PIN.
func (s *Session) Climatisation(ctx context.Context, vin string, pin string, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validToken() {
		return binding.ErrLoggedOut
	}
	quickstart := map[string]interface{}{"active": false}
	secToken := ""
	if mode != "off" {
		quickstart = map[string]interface{}{"active": true, "climatisationDuration": 30, "startMode": mode}
		var err error
		if secToken, err = s.securityToken(ctx, vin, "rheating_v1", "P_QSACT", pin); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(map[string]interface{}{"performAction": map[string]interface{}{"quickstart": quickstart}})
	if err != nil {
		return err
	}
	return s.postAction(ctx, s.vehicleURL("rs", vin, "action"), "application/vnd.vwg.mbb.RemoteStandheizung_v2_0_0+json", string(payload), secToken)
}

// postAction sends a vehicle action, retrying a few times since the vehicle
// backend often rejects the first attempt while it wakes the car.
func (s *Session) postAction(ctx context.Context, target string, contentType string, body string, secToken string) error {
	return retry.Retry(ctx, actionTimeout, actionRetries, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		if secToken != "" {
			req.Header.Set("X-MBBSecToken", secToken)
		}
		_, err = s.do(req, nil)
		if err != nil {
			log.Debug().Err(err).Str("url", target).Msg("Vehicle action attempt failed")
		}
		return err
	})
}
