package verisure

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
	"github.com/jgulick48/cloud-bindings/internal/thing/thingtest"
)

type HandlerTest struct {
	suite.Suite
	fake     *fakeMyPages
	server   *httptest.Server
	sched    *scheduler.Manual
	callback *thingtest.Recorder
	factory  *Factory
	bridge   *Bridge
}

func (s *HandlerTest) SetupTest() {
	s.fake = newFakeMyPages()
	s.server = httptest.NewServer(s.fake)
	s.sched = scheduler.NewManual(time.Unix(0, 0))
	s.callback = thingtest.NewRecorder()
	s.factory = NewFactory(s.sched, s.server.Client())

	handler, err := s.factory.Create(thing.Thing{
		UID:  "verisure:bridge:home",
		Type: ThingTypeBridge,
		Configuration: thing.Configuration{
			"username": "anna@example.com",
			"password": "secret",
			"pin":      "1234",
			"baseUrl":  s.server.URL,
			"refresh":  600,
		},
	}, nil, s.callback)
	s.Require().NoError(err)
	s.bridge = handler.(*Bridge)
	s.bridge.Initialize()
	s.sched.RunPending()
	status, _ := s.callback.LastStatus(s.bridge.Thing().UID)
	s.Require().Equal(thing.StatusOnline, status.Status)
}

func (s *HandlerTest) TearDownTest() {
	s.bridge.Dispose()
	s.server.Close()
}

func (s *HandlerTest) child(uid thing.UID, thingType thing.TypeUID, deviceID string) *Handler {
	handler, err := s.factory.Create(thing.Thing{
		UID:           uid,
		Type:          thingType,
		Bridge:        s.bridge.Thing().UID,
		Configuration: thing.Configuration{"deviceId": deviceID},
	}, s.bridge, s.callback)
	s.Require().NoError(err)
	h := handler.(*Handler)
	h.Initialize()
	return h
}

func (s *HandlerTest) Test_StatusOnlyChangeUpdatesStatusChannels() {
	alarm := s.child("verisure:alarm:home:alarm", ThingTypeAlarm, "alarm")
	state, ok := s.callback.State(alarm.Thing().UID, ChannelNumericStatus)
	s.Require().True(ok)
	s.Equal(thing.Decimal(0), state)

	mark := s.callback.Mark()
	s.fake.setAlarmStatus("armed")
	s.sched.Advance(600 * time.Second)

	s.ElementsMatch([]string{ChannelStatus, ChannelNumericStatus, ChannelSetAlarmStatus}, s.callback.ChannelsUpdated(mark))
	state, _ = s.callback.State(alarm.Thing().UID, ChannelNumericStatus)
	s.Equal(thing.Decimal(2), state)
}

func (s *HandlerTest) Test_EqualSnapshotPublishesNothing() {
	s.child("verisure:alarm:home:alarm", ThingTypeAlarm, "alarm")
	s.child("verisure:climateSensor:home:hall", ThingTypeClimateSensor, "27C2 9A11")

	mark := s.callback.Mark()
	s.sched.Advance(600 * time.Second)
	s.Empty(s.callback.ChannelsUpdated(mark))
}

func (s *HandlerTest) Test_ClimateSensorChannels() {
	climate := s.child("verisure:climateSensor:home:hall", ThingTypeClimateSensor, "27C2 9A11")
	temperature, _ := s.callback.State(climate.Thing().UID, ChannelTemperature)
	s.Equal(thing.Quantity{Value: 21.5, Unit: "°C"}, temperature)
	humidity, _ := s.callback.State(climate.Thing().UID, ChannelHumidity)
	s.Equal(thing.Undef, humidity)
}

func (s *HandlerTest) Test_UnknownPlugStatusPublishesUndef() {
	plug := s.child("verisure:smartPlug:home:kitchen", ThingTypeSmartPlug, "6EA3 F2B1")
	state, _ := s.callback.State(plug.Thing().UID, ChannelSmartPlugStatus)
	s.Equal(thing.OnOff(true), state)

	s.fake.setPlugStatus("unavailable")
	s.sched.Advance(600 * time.Second)

	state, _ = s.callback.State(plug.Thing().UID, ChannelSmartPlugStatus)
	s.Equal(thing.Undef, state)
}

func (s *HandlerTest) Test_DoorWindowState() {
	door := s.child("verisure:doorWindow:home:back", ThingTypeDoorWindow, "1A2B 3C4D")
	state, ok := s.callback.State(door.Thing().UID, ChannelState)
	s.Require().True(ok)
	s.Equal(thing.OpenClosed(false), state)
}

func (s *HandlerTest) Test_DeviceOfAnotherKindIsAConfigurationError() {
	plug := s.child("verisure:smartPlug:home:wrong", ThingTypeSmartPlug, "3C7B DE45")

	status, _ := s.callback.LastStatus(plug.Thing().UID)
	s.Equal(thing.StatusOffline, status.Status)
	s.Equal(thing.DetailConfigurationError, status.Detail)
	_, ok := s.callback.State(plug.Thing().UID, ChannelSmartPlugStatus)
	s.False(ok)

	plug.HandleCommand(plug.Thing().Channel(ChannelSmartPlugStatus), thing.OnOff(false))
	s.Empty(s.fake.posted())
}

func (s *HandlerTest) Test_DisallowedVolumeIsNeverDispatched() {
	lock := s.child("verisure:smartLock:home:front", ThingTypeSmartLock, "3C7B DE45")
	volume := lock.Thing().Channel(ChannelSmartLockVolume)

	lock.HandleCommand(volume, thing.String("LOUD"))
	s.Empty(s.fake.posted())
	s.Equal(0, s.sched.PendingOneOff())

	lock.HandleCommand(volume, thing.String("HIGH"))
	posted := s.fake.posted()
	s.Require().Len(posted, 1)
	s.Equal("settings/smartlock/3C7B DE45", posted[0].Path)
	s.Equal("HIGH", posted[0].Form.Get("volume"))
	s.Equal("ESSENTIAL", posted[0].Form.Get("voiceLevel"))
	s.Equal(1, s.sched.PendingOneOff())
}

func (s *HandlerTest) Test_AlarmCommand() {
	alarm := s.child("verisure:alarm:home:alarm", ThingTypeAlarm, "alarm")
	channel := alarm.Thing().Channel(ChannelSetAlarmStatus)

	alarm.HandleCommand(channel, thing.Decimal(1.5))
	s.Empty(s.fake.posted())

	alarm.HandleCommand(channel, thing.Decimal(2))
	posted := s.fake.posted()
	s.Require().Len(posted, 1)
	s.Equal(ArmStateArmedAway, posted[0].Form.Get("state"))
	s.Equal("1234", posted[0].Form.Get("code"))
	status, _ := s.callback.State(alarm.Thing().UID, ChannelStatus)
	s.Equal(PendingState, status)
}

func (s *HandlerTest) Test_BridgeOfflinePropagates() {
	plug := s.child("verisure:smartPlug:home:kitchen", ThingTypeSmartPlug, "6EA3 F2B1")
	plug.BridgeStatusChanged(thing.Offline(thing.DetailCommunicationError, ""))
	status, _ := s.callback.LastStatus(plug.Thing().UID)
	s.Equal(thing.Offline(thing.DetailBridgeOffline, ""), status)
}

func TestHandler(t *testing.T) {
	suite.Run(t, new(HandlerTest))
}

func TestBridge_MissingCredentials(t *testing.T) {
	callback := thingtest.NewRecorder()
	bridge := NewBridge(thing.Thing{UID: "verisure:bridge:home", Type: ThingTypeBridge}, callback, scheduler.NewManual(time.Unix(0, 0)), nil)
	bridge.Initialize()

	status, ok := callback.LastStatus("verisure:bridge:home")
	require.True(t, ok)
	assert.Equal(t, thing.StatusOffline, status.Status)
	assert.Equal(t, thing.DetailConfigurationError, status.Detail)
	assert.Nil(t, bridge.Registry())
}

func TestFactory_RejectsForeignBridge(t *testing.T) {
	factory := NewFactory(scheduler.NewManual(time.Unix(0, 0)), nil)
	assert.True(t, factory.Supports(ThingTypeDoorWindow))
	assert.False(t, factory.Supports("unifi:client"))

	_, err := factory.Create(thing.Thing{UID: "verisure:alarm:x:alarm", Type: ThingTypeAlarm}, foreignHandler{}, thingtest.NewRecorder())
	assert.Error(t, err)
}

type foreignHandler struct{}

func (foreignHandler) Thing() thing.Thing                            { return thing.Thing{} }
func (foreignHandler) Initialize()                                   {}
func (foreignHandler) Dispose()                                      {}
func (foreignHandler) HandleCommand(thing.ChannelUID, thing.Command) {}
