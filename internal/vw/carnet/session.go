package carnet

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

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/vw/identity"
)

const requestInProgress = "REQUEST_IN_PROGRESS"

// Session is a logged in Car-Net portal session and the vehicles it sees.
type Session struct {
	httpClient  *http.Client
	portalURL   string
	credentials identity.Credentials
	registry    *binding.Registry[Vehicle]

	mu       sync.Mutex
	loggedIn bool
	csrf     string
	landing  string
}

func NewSession(httpClient *http.Client, cfg Config) *Session {
	return &Session{
		httpClient:  binding.NewSessionClient(httpClient, binding.DefaultTimeout),
		portalURL:   strings.TrimSuffix(cfg.PortalURL, "/"),
		credentials: identity.Credentials{Email: cfg.Username, Password: cfg.Password},
		registry:    binding.NewRegistry[Vehicle](),
	}
}

func (s *Session) Registry() *binding.Registry[Vehicle] {
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
		log.Warn().Err(err).Str("user", s.credentials.Email).Msg("Car-Net login failed")
		return false
	}
	return true
}

func (s *Session) login(ctx context.Context) error {
	s.loggedIn = false
	flow := &identity.Flow{Credentials: s.credentials, PortalURL: s.portalURL}
	if err := identity.Run(ctx, s.httpClient, identity.PortalLogin(), flow); err != nil {
		return err
	}
	s.csrf = flow.PortalCsrf
	s.landing = flow.DashboardURL
	s.loggedIn = true
	log.Debug().Str("dashboard", flow.DashboardURL).Msg("Logged in to Car-Net")
	return nil
}

// Refresh polls every vehicle on the account, logging in again when the
// portal has dropped the session.
func (s *Session) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		if err := s.login(ctx); err != nil {
			log.Warn().Err(err).Msg("Car-Net login failed")
			return false
		}
	}
	cars, err := s.fullyLoadedCars(ctx)
	if errors.Is(err, binding.ErrLoggedOut) {
		if err = s.login(ctx); err == nil {
			cars, err = s.fullyLoadedCars(ctx)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("Car-Net refresh failed")
		return false
	}
	vehicles := make([]Vehicle, 0, len(cars))
	for _, car := range cars {
		vehicle, err := s.pollVehicle(ctx, car)
		if err != nil {
			if errors.Is(err, binding.ErrLoggedOut) {
				s.loggedIn = false
			}
			log.Warn().Err(err).Str("vin", car.VIN).Msg("Car-Net vehicle poll failed")
			return false
		}
		vehicles = append(vehicles, vehicle)
	}
	s.registry.Sync(vehicles)
	return true
}

func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.registry.Clear()
}

func (s *Session) dashboard(vin string) string {
	return fmt.Sprintf("%s/portal/delegate/dashboard/%s", s.portalURL, vin)
}

// post sends a portal action and checks the errorCode envelope.
func (s *Session) post(ctx context.Context, dashboard string, action string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dashboard+"/-/"+action, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CSRF-Token", s.csrf)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, binding.ErrLoggedOut
	}
	if resp.StatusCode != http.StatusOK {
		return nil, binding.UnexpectedStatus(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if code := gjson.GetBytes(data, "errorCode").String(); code != "0" {
		return nil, fmt.Errorf("%s: %w: errorCode %q", action, binding.ErrVendor, code)
	}
	return data, nil
}

func (s *Session) postJSON(ctx context.Context, dashboard string, action string, payload interface{}, target interface{}) error {
	data, err := s.post(ctx, dashboard, action, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unable to decode %s: %w", action, err)
	}
	return nil
}

type car struct {
	VIN  string
	Name string
}

func (s *Session) fullyLoadedCars(ctx context.Context) ([]car, error) {
	var response fullyLoadedCarsJSON
	if err := s.postJSON(ctx, s.landing, "mainnavigation/get-fully-loaded-cars", nil, &response); err != nil {
		return nil, err
	}
	cars := make([]car, 0)
	for _, v := range response.FullyLoadedVehiclesResponse.CompleteVehicles {
		cars = append(cars, car{VIN: v.VIN, Name: v.Name})
	}
	return cars, nil
}

func (s *Session) pollVehicle(ctx context.Context, c car) (Vehicle, error) {
	vehicle := Vehicle{VIN: c.VIN, Name: c.Name}
	dashboard := s.dashboard(c.VIN)

	var vsr vsrJSON
	if err := s.postJSON(ctx, dashboard, "vsr/get-vsr", nil, &vsr); err != nil {
		return vehicle, err
	}
	if vsr.VehicleStatusData.RequestStatus == requestInProgress {
		log.Debug().Str("vin", c.VIN).Msg("Status report pending, fetching latest")
		if err := s.postJSON(ctx, dashboard, "vsr/get-latest-vsr", nil, &vsr); err != nil {
			return vehicle, err
		}
	}
	status := vsr.VehicleStatusData
	if status.RequestStatus == requestInProgress {
		// Still no report: carry the last one over rather than guess.
		log.Debug().Str("vin", c.VIN).Msg("Status report still pending, keeping previous readings")
		if previous, ok := s.registry.Get(c.VIN); ok {
			vehicle.DoorsOpen = previous.DoorsOpen
			vehicle.WindowsOpen = previous.WindowsOpen
			vehicle.TrunkOpen = previous.TrunkOpen
			vehicle.HoodOpen = previous.HoodOpen
			vehicle.Locked = previous.Locked
			vehicle.Levels = previous.Levels
		}
	} else {
		doors := status.CarRenderData.Doors
		vehicle.DoorsOpen = openingsFrom(doors)
		vehicle.TrunkOpen = opening(doors.Trunk)
		vehicle.HoodOpen = opening(doors.Hood)
		vehicle.WindowsOpen = openingsFrom(status.CarRenderData.Windows)
		vehicle.Locked = lockedFrom(status.LockData)
		vehicle.Levels.FuelLevel = status.FuelLevel
		vehicle.Levels.BatteryLevel = status.BatteryLevel
		vehicle.Levels.FuelRange = status.FuelRange
		vehicle.Levels.BatteryRange = status.BatteryRange
		vehicle.Levels.TotalRange = status.TotalRange
	}

	var details detailsJSON
	if err := s.postJSON(ctx, dashboard, "vehicle-info/get-vehicle-details", nil, &details); err != nil {
		return vehicle, err
	}
	vehicle.Levels.Mileage = details.VehicleDetails.DistanceCovered
	vehicle.ServiceInspection = details.VehicleDetails.ServiceInspectionData
	vehicle.OilInspection = details.VehicleDetails.OilInspectionData
	vehicle.LastConnection = strings.Join(details.VehicleDetails.LastConnectionTimeStamp, " ")

	var location locationJSON
	if err := s.postJSON(ctx, dashboard, "cf/get-location", nil, &location); err != nil {
		return vehicle, err
	}
	vehicle.Levels.Latitude = location.Position.Lat
	vehicle.Levels.Longitude = location.Position.Lng

	// Vehicles without e-manager or auxiliary heating answer with an error
	// code on these.
	var emanager emanagerJSON
	if err := s.postJSON(ctx, dashboard, "emanager/get-emanager", nil, &emanager); err == nil {
		rpc := emanager.EManager.RPC.Status
		vehicle.ClimateActive = rpc.ClimatisationState != "" && rpc.ClimatisationState != "OFF"
		vehicle.WindowHeatActive = rpc.WindowHeatingStateFront == "ON" || rpc.WindowHeatingStateRear == "ON"
		vehicle.Charging = emanager.EManager.RBC.Status.ChargingState == "CHARGING"
	} else if !errors.Is(err, binding.ErrVendor) {
		return vehicle, err
	}
	var heater heaterJSON
	if err := s.postJSON(ctx, dashboard, "rah/get-status", nil, &heater); err == nil {
		vehicle.HeaterActive = heater.RemoteAuxiliaryHeating.Status.Active
	} else if !errors.Is(err, binding.ErrVendor) {
		return vehicle, err
	}
	return vehicle, nil
}

func (s *Session) action(ctx context.Context, vin string, action string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return binding.ErrLoggedOut
	}
	_, err := s.post(ctx, s.dashboard(vin), action, payload)
	if errors.Is(err, binding.ErrLoggedOut) {
		s.loggedIn = false
	}
	return err
}

// Lock locks or unlocks the doors. The portal wants the security PIN.
func (s *Session) Lock(ctx context.Context, vin string, pin string, lock bool) error {
	action := "vsr/remote-unlock"
	if lock {
		action = "vsr/remote-lock"
	}
	return s.action(ctx, vin, action, map[string]string{"spin": pin})
}

func (s *Session) RemoteHeater(ctx context.Context, vin string, pin string, on bool) error {
	if !on {
		return s.action(ctx, vin, "rah/quick-stop", nil)
	}
	return s.action(ctx, vin, "rah/quick-start", map[string]interface{}{
		"startMode": "HEATING",
		"spin":      pin,
		"duration":  30,
	})
}

func (s *Session) Climate(ctx context.Context, vin string, on bool) error {
	return s.action(ctx, vin, "emanager/trigger-climatisation", map[string]bool{
		"triggerAction": on,
		"electricClima": true,
	})
}

func (s *Session) WindowHeat(ctx context.Context, vin string, on bool) error {
	return s.action(ctx, vin, "emanager/trigger-windowheating", map[string]bool{"triggerAction": on})
}

func (s *Session) Charging(ctx context.Context, vin string, on bool) error {
	return s.action(ctx, vin, "emanager/charge-battery", map[string]interface{}{
		"triggerAction":  on,
		"batteryPercent": "100",
	})
}
