package binding

import (
	"testing"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type testDevice struct {
	id     string
	status string
	level  float64
}

func (d testDevice) DeviceID() string {
	return d.id
}

func (d testDevice) Equal(other testDevice) bool {
	return d == other
}

type mockListener struct {
	mock.Mock
}

func (m *mockListener) OnDeviceStateChanged(device testDevice) {
	m.Called(device)
}

func (m *mockListener) OnDeviceAdded(device testDevice) {
	m.Called(device)
}

func (m *mockListener) OnDeviceRemoved(device testDevice) {
	m.Called(device)
}

type RegistryTest struct {
	suite.Suite
	registry *Registry[testDevice]
	first    *mockListener
	second   *mockListener
}

func (s *RegistryTest) SetupTest() {
	s.registry = NewRegistry[testDevice]()
	s.first = &mockListener{}
	s.second = &mockListener{}
	s.registry.RegisterListener(s.first)
	s.registry.RegisterListener(s.second)
}

func (s *RegistryTest) Test_Put_ChangedNotifiesOncePerListener() {
	initial := testDevice{id: "lock-1", status: "locked", level: 1}
	for _, l := range []*mockListener{s.first, s.second} {
		l.On("OnDeviceAdded", initial).Return().Once()
		l.On("OnDeviceStateChanged", initial).Return().Once()
	}
	s.registry.Put(initial)

	changed := testDevice{id: "lock-1", status: "unlocked", level: 1}
	for _, l := range []*mockListener{s.first, s.second} {
		l.On("OnDeviceStateChanged", changed).Return().Once()
	}
	s.registry.Put(changed)

	for _, l := range []*mockListener{s.first, s.second} {
		l.AssertNumberOfCalls(s.T(), "OnDeviceStateChanged", 2)
		l.AssertNumberOfCalls(s.T(), "OnDeviceAdded", 1)
	}
}

func (s *RegistryTest) Test_Put_EqualSnapshotNotifiesNobody() {
	device := testDevice{id: "lock-1", status: "locked", level: 0.5}
	s.first.On("OnDeviceAdded", device).Return().Once()
	s.first.On("OnDeviceStateChanged", device).Return().Once()
	s.second.On("OnDeviceAdded", device).Return().Once()
	s.second.On("OnDeviceStateChanged", device).Return().Once()
	s.registry.Put(device)

	s.registry.Put(testDevice{id: "lock-1", status: "locked", level: 0.5})

	s.first.AssertExpectations(s.T())
	s.second.AssertExpectations(s.T())
	s.first.AssertNumberOfCalls(s.T(), "OnDeviceStateChanged", 1)
}

func (s *RegistryTest) Test_Put_NormalizedIdentity() {
	s.first.On("OnDeviceAdded", mock.Anything).Return()
	s.first.On("OnDeviceStateChanged", mock.Anything).Return()
	s.second.On("OnDeviceAdded", mock.Anything).Return()
	s.second.On("OnDeviceStateChanged", mock.Anything).Return()

	s.registry.Put(testDevice{id: "00:11:22:AA", status: "online"})
	s.registry.Put(testDevice{id: "0011-22AA", status: "offline"})

	s.Equal(1, s.registry.Len())
	device, ok := s.registry.Get("001122AA")
	s.True(ok)
	s.Equal("offline", device.status)
	s.first.AssertNumberOfCalls(s.T(), "OnDeviceAdded", 1)
}

func (s *RegistryTest) Test_Sync_RemovesMissingDevices() {
	s.first.On("OnDeviceAdded", mock.Anything).Return()
	s.first.On("OnDeviceStateChanged", mock.Anything).Return()
	s.second.On("OnDeviceAdded", mock.Anything).Return()
	s.second.On("OnDeviceStateChanged", mock.Anything).Return()
	plug := testDevice{id: "plug", status: "on"}
	lock := testDevice{id: "lock", status: "locked"}
	s.registry.Sync([]testDevice{plug, lock})

	s.first.On("OnDeviceRemoved", plug).Return().Once()
	s.second.On("OnDeviceRemoved", plug).Return().Once()
	s.registry.Sync([]testDevice{lock})

	s.first.AssertCalled(s.T(), "OnDeviceRemoved", plug)
	s.second.AssertCalled(s.T(), "OnDeviceRemoved", plug)
	_, ok := s.registry.Get("plug")
	s.False(ok)
	s.first.AssertNumberOfCalls(s.T(), "OnDeviceStateChanged", 2)
}

func (s *RegistryTest) Test_UnregisteredListenerIsNotCalled() {
	s.True(s.registry.UnregisterListener(s.second))
	s.False(s.registry.UnregisterListener(s.second))
	s.first.On("OnDeviceAdded", mock.Anything).Return()
	s.first.On("OnDeviceStateChanged", mock.Anything).Return()

	s.registry.Put(testDevice{id: "plug", status: "on"})

	s.second.AssertNotCalled(s.T(), "OnDeviceStateChanged", mock.Anything)
}

func (s *RegistryTest) Test_RegisterListenerTwice() {
	s.False(s.registry.RegisterListener(s.first))
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistryTest))
}

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"00:11:22:aa:bb:cc": "001122aabbcc",
		"Front Door-1":      "FrontDoor1",
		"3C7B DE45":         "3C7BDE45",
		"":                  "",
		"__--::":            "",
		"åäö-1":             "åäö1",
	}
	for in, expected := range cases {
		once := NormalizeID(in)
		assert.Equal(t, expected, once, in)
		assert.Equal(t, once, NormalizeID(once), "normalize must be idempotent for %q", in)
	}
}

func TestFloatEqual(t *testing.T) {
	assert.True(t, FloatEqual(null.FloatFrom(1.10), null.FloatFrom(1.1)))
	assert.True(t, FloatEqual(null.Float{}, null.NewFloat(5, false)))
	assert.False(t, FloatEqual(null.FloatFrom(0), null.Float{}))
	assert.False(t, FloatEqual(null.FloatFrom(1), null.FloatFrom(2)))
}
