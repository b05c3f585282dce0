package carnet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
	"github.com/jgulick48/cloud-bindings/internal/thing/thingtest"
	"github.com/jgulick48/cloud-bindings/internal/vw/identity/identitytest"
)

const vin = "WVWZZZ1KZAW000001"

// fakePortal adds the Car-Net dashboard actions to the fake identity server.
type fakePortal struct {
	*identitytest.Server
	mu           sync.Mutex
	fuelLevel    float64
	pending      bool
	stillPending bool
	noLockData   bool
	noEManager   bool
	actions      map[string]string
}

func newFakePortal() *fakePortal {
	f := &fakePortal{
		Server:    identitytest.NewServer("anna@example.com", "secret", vin),
		fuelLevel: 54,
		actions:   map[string]string{},
	}
	dashboard := "/portal/delegate/dashboard/" + vin + "/-/"
	f.HandleFunc(dashboard+"mainnavigation/get-fully-loaded-cars", f.json(`{"errorCode":"0","fullyLoadedVehiclesResponse":{"completeVehicles":[{"vin":"`+vin+`","name":"Golf"}]}}`))
	f.HandleFunc(dashboard+"vsr/get-vsr", f.vsr(true))
	f.HandleFunc(dashboard+"vsr/get-latest-vsr", f.vsr(false))
	f.HandleFunc(dashboard+"vehicle-info/get-vehicle-details", f.json(`{"errorCode":"0","vehicleDetails":{"lastConnectionTimeStamp":["19-05-2024","10:30"],"distanceCovered":12345,"serviceInspectionData":"120 days / 5000 km","oilInspectionData":"200 days / 10000 km"}}`))
	f.HandleFunc(dashboard+"cf/get-location", f.json(`{"errorCode":"0","position":{"lat":59.33,"lng":18.06}}`))
	f.HandleFunc(dashboard+"emanager/get-emanager", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.noEManager {
			fmt.Fprint(w, `{"errorCode":"1"}`)
			return
		}
		fmt.Fprint(w, `{"errorCode":"0","EManager":{"rpc":{"status":{"climatisationState":"HEATING","windowHeatingStateFront":"OFF","windowHeatingStateRear":"OFF"}},"rbc":{"status":{"chargingState":"OFF"}}}}`)
	})
	f.HandleFunc(dashboard+"rah/get-status", f.json(`{"errorCode":"0","remoteAuxiliaryHeating":{"status":{"active":false}}}`))
	for _, action := range []string{"vsr/remote-lock", "vsr/remote-unlock", "rah/quick-start", "rah/quick-stop", "emanager/trigger-climatisation"} {
		action := action
		f.HandleFunc(dashboard+action, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-CSRF-Token") != identitytest.DashboardCsrf {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.actions[action] = string(body)
			f.mu.Unlock()
			fmt.Fprint(w, `{"errorCode":"0"}`)
		})
	}
	return f
}

func (f *fakePortal) json(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-CSRF-Token") != identitytest.DashboardCsrf {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, body)
	}
}

func (f *fakePortal) vsr(first bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		status := map[string]interface{}{
			"carRenderData": map[string]interface{}{
				"doors":   map[string]int{"left_front": 3, "right_front": 3, "left_back": 3, "right_back": 3, "trunk": 2, "hood": 3},
				"windows": map[string]int{"left_front": 3, "right_front": 3, "left_back": 3, "right_back": 3},
			},
			"lockData":     map[string]int{"left_front": 2, "right_front": 2, "left_back": 2, "right_back": 2, "trunk": 2},
			"fuelLevel":    f.fuelLevel,
			"batteryLevel": nil,
			"fuelRange":    420,
			"totalRange":   420,
		}
		if f.noLockData {
			delete(status, "lockData")
		}
		if (first && f.pending) || f.stillPending {
			status = map[string]interface{}{"requestStatus": "REQUEST_IN_PROGRESS"}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"errorCode": "0", "vehicleStatusData": status})
	}
}

func (f *fakePortal) setFuelLevel(level float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fuelLevel = level
}

func (f *fakePortal) action(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.actions[name]
	return body, ok
}

func newTestSession(t *testing.T, fake *fakePortal) *Session {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return NewSession(server.Client(), Config{Username: "anna@example.com", Password: "secret", PortalURL: server.URL})
}

func TestSession_Refresh(t *testing.T) {
	fake := newFakePortal()
	session := newTestSession(t, fake)

	require.True(t, session.Initialize(context.Background()))
	require.True(t, session.Refresh(context.Background()))

	vehicle, ok := session.Registry().Get(vin)
	require.True(t, ok)
	assert.Equal(t, "Golf", vehicle.Name)
	assert.Equal(t, null.BoolFrom(true), vehicle.Locked)
	assert.Equal(t, null.BoolFrom(true), vehicle.TrunkOpen)
	assert.Equal(t, null.BoolFrom(false), vehicle.DoorsOpen.FrontLeft)
	assert.Equal(t, 54.0, vehicle.Levels.FuelLevel.Float64)
	assert.False(t, vehicle.Levels.BatteryLevel.Valid)
	assert.Equal(t, 12345.0, vehicle.Levels.Mileage.Float64)
	assert.Equal(t, "19-05-2024 10:30", vehicle.LastConnection)
	assert.True(t, vehicle.ClimateActive)
	assert.False(t, vehicle.HeaterActive)
}

func TestSession_PendingStatusReportFetchesLatest(t *testing.T) {
	fake := newFakePortal()
	fake.pending = true
	session := newTestSession(t, fake)

	require.True(t, session.Refresh(context.Background()))

	vehicle, _ := session.Registry().Get(vin)
	assert.True(t, vehicle.Levels.FuelLevel.Valid)
	assert.Equal(t, null.BoolFrom(true), vehicle.Locked)
}

func TestSession_StillPendingReportKeepsPreviousReadings(t *testing.T) {
	fake := newFakePortal()
	session := newTestSession(t, fake)
	require.True(t, session.Refresh(context.Background()))

	fake.mu.Lock()
	fake.stillPending = true
	fake.mu.Unlock()
	require.True(t, session.Refresh(context.Background()))

	vehicle, _ := session.Registry().Get(vin)
	assert.Equal(t, null.BoolFrom(true), vehicle.Locked)
	assert.Equal(t, null.BoolFrom(false), vehicle.DoorsOpen.FrontLeft)
	assert.Equal(t, null.BoolFrom(false), vehicle.HoodOpen)
	assert.Equal(t, 54.0, vehicle.Levels.FuelLevel.Float64)
}

func TestSession_StillPendingReportWithoutHistoryIsUnknown(t *testing.T) {
	fake := newFakePortal()
	fake.stillPending = true
	session := newTestSession(t, fake)

	require.True(t, session.Refresh(context.Background()))

	vehicle, ok := session.Registry().Get(vin)
	require.True(t, ok)
	assert.False(t, vehicle.Locked.Valid)
	assert.Equal(t, Openings{}, vehicle.DoorsOpen)
	assert.False(t, vehicle.TrunkOpen.Valid)
	assert.False(t, vehicle.Levels.FuelLevel.Valid)
	assert.Equal(t, 12345.0, vehicle.Levels.Mileage.Float64)
}

func TestSession_MissingEManagerIsNotAFailure(t *testing.T) {
	fake := newFakePortal()
	fake.noEManager = true
	session := newTestSession(t, fake)

	require.True(t, session.Refresh(context.Background()))
	vehicle, _ := session.Registry().Get(vin)
	assert.False(t, vehicle.ClimateActive)
}

func TestSession_LoginFailureThenRecovery(t *testing.T) {
	fake := newFakePortal()
	fake.SetPassword("changed")
	session := newTestSession(t, fake)

	assert.False(t, session.Initialize(context.Background()))
	assert.False(t, session.LoggedIn())

	fake.SetPassword("secret")
	assert.True(t, session.Refresh(context.Background()))
	assert.Equal(t, 1, fake.Logins())
}

func TestSession_VendorErrorFailsRefresh(t *testing.T) {
	fake := newFakePortal()
	fake.FailPath("/portal/delegate/dashboard/"+vin+"/-/cf/get-location", http.StatusInternalServerError)
	session := newTestSession(t, fake)

	assert.False(t, session.Refresh(context.Background()))
	assert.Equal(t, 0, session.Registry().Len())
}

func TestSession_LockSendsPin(t *testing.T) {
	fake := newFakePortal()
	session := newTestSession(t, fake)
	require.True(t, session.Initialize(context.Background()))

	require.NoError(t, session.Lock(context.Background(), vin, "1234", true))

	body, ok := fake.action("vsr/remote-lock")
	require.True(t, ok)
	assert.JSONEq(t, `{"spin":"1234"}`, body)
}

func TestVehicle_Equal(t *testing.T) {
	a := Vehicle{VIN: vin, Locked: null.BoolFrom(true)}
	a.Levels.FuelLevel.Valid, a.Levels.FuelLevel.Float64 = true, 54.0
	b := a
	assert.True(t, a.Equal(b))
	b.Levels.FuelLevel.Float64 = 53.0
	assert.False(t, a.Equal(b))
	c := a
	c.Locked = null.BoolFrom(false)
	assert.False(t, a.Equal(c))
	c.Locked = null.Bool{}
	assert.False(t, a.Equal(c))
}

type VehicleHandlerTest struct {
	suite.Suite
	fake     *fakePortal
	server   *httptest.Server
	sched    *scheduler.Manual
	callback *thingtest.Recorder
	bridge   *Bridge
	vehicle  *VehicleHandler
}

func (s *VehicleHandlerTest) SetupTest() {
	s.fake = newFakePortal()
	s.server = httptest.NewServer(s.fake)
	s.sched = scheduler.NewManual(time.Unix(0, 0))
	s.callback = thingtest.NewRecorder()
	factory := NewFactory(s.sched, s.server.Client())

	bridge, err := factory.Create(thing.Thing{
		UID:  "carnet:bridge:account",
		Type: ThingTypeBridge,
		Configuration: thing.Configuration{
			"username":  "anna@example.com",
			"password":  "secret",
			"pin":       "1234",
			"portalUrl": s.server.URL,
		},
	}, nil, s.callback)
	s.Require().NoError(err)
	s.bridge = bridge.(*Bridge)
	s.bridge.Initialize()
	s.sched.RunPending()

	vehicle, err := factory.Create(thing.Thing{
		UID:           "carnet:vehicle:account:golf",
		Type:          ThingTypeVehicle,
		Bridge:        "carnet:bridge:account",
		Configuration: thing.Configuration{"vin": vin},
	}, s.bridge, s.callback)
	s.Require().NoError(err)
	s.vehicle = vehicle.(*VehicleHandler)
	s.vehicle.Initialize()
}

func (s *VehicleHandlerTest) TearDownTest() {
	s.bridge.Dispose()
	s.server.Close()
}

func (s *VehicleHandlerTest) Test_ChannelsPublished() {
	uid := s.vehicle.Thing().UID
	status, _ := s.callback.LastStatus(uid)
	s.Equal(thing.StatusOnline, status.Status)

	lock, _ := s.callback.State(uid, ChannelLock)
	s.Equal(thing.On, lock)
	trunk, _ := s.callback.State(uid, ChannelTrunk)
	s.Equal(thing.Open, trunk)
	battery, _ := s.callback.State(uid, ChannelBatteryLevel)
	s.Equal(thing.Undef, battery)
	location, _ := s.callback.State(uid, ChannelLocation)
	s.Equal(thing.Point{Latitude: 59.33, Longitude: 18.06}, location)
}

func (s *VehicleHandlerTest) Test_MissingLockDataPublishesUndef() {
	s.fake.mu.Lock()
	s.fake.noLockData = true
	s.fake.mu.Unlock()
	mark := s.callback.Mark()

	s.sched.Advance(DefaultRefresh * time.Second)

	s.Equal([]string{ChannelLock}, s.callback.ChannelsUpdated(mark))
	lock, _ := s.callback.State(s.vehicle.Thing().UID, ChannelLock)
	s.Equal(thing.Undef, lock)
	door, _ := s.callback.State(s.vehicle.Thing().UID, ChannelFrontLeftDoor)
	s.Equal(thing.Closed, door)
}

func (s *VehicleHandlerTest) Test_FuelChangeUpdatesOnlyFuel() {
	mark := s.callback.Mark()
	s.fake.setFuelLevel(40)
	s.sched.Advance(DefaultRefresh * time.Second)
	s.Equal([]string{ChannelFuelLevel}, s.callback.ChannelsUpdated(mark))
}

func (s *VehicleHandlerTest) Test_HeaterCommand() {
	s.vehicle.HandleCommand(s.vehicle.Thing().Channel(ChannelRemoteHeater), thing.On)

	body, ok := s.fake.action("rah/quick-start")
	s.Require().True(ok)
	s.JSONEq(`{"startMode":"HEATING","spin":"1234","duration":30}`, body)
	s.Equal(1, s.sched.PendingOneOff())
}

func (s *VehicleHandlerTest) Test_NonOnOffCommandIgnored() {
	s.vehicle.HandleCommand(s.vehicle.Thing().Channel(ChannelLock), thing.Decimal(1))
	_, ok := s.fake.action("vsr/remote-lock")
	s.False(ok)
}

func TestVehicleHandler(t *testing.T) {
	suite.Run(t, new(VehicleHandlerTest))
}
