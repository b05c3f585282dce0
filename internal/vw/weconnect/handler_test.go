package weconnect

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
	"github.com/jgulick48/cloud-bindings/internal/thing/thingtest"
)

func TestVehicleHandler(t *testing.T) {
	fake := newFakeMBB()
	server := httptest.NewServer(fake)
	defer server.Close()
	sched := scheduler.NewManual(time.Unix(0, 0))
	callback := thingtest.NewRecorder()
	factory := NewFactory(sched, server.Client())

	cfg := testConfig(server.URL)
	bridgeHandler, err := factory.Create(thing.Thing{
		UID:  "weconnect:bridge:account",
		Type: ThingTypeBridge,
		Configuration: thing.Configuration{
			"username":    cfg.Username,
			"password":    cfg.Password,
			"pin":         cfg.PIN,
			"identityUrl": cfg.IdentityURL,
			"tokenUrl":    cfg.TokenURL,
			"apiUrl":      cfg.APIURL,
			"securityUrl": cfg.SecurityURL,
		},
	}, nil, callback)
	require.NoError(t, err)
	bridge := bridgeHandler.(*Bridge)
	bridge.Initialize()
	defer bridge.Dispose()
	sched.RunPending()

	vehicleHandler, err := factory.Create(thing.Thing{
		UID:           "weconnect:vehicle:account:passat",
		Type:          ThingTypeVehicle,
		Bridge:        "weconnect:bridge:account",
		Configuration: thing.Configuration{"vin": vin},
	}, bridge, callback)
	require.NoError(t, err)
	vehicle := vehicleHandler.(*VehicleHandler)
	vehicle.Initialize()

	uid := vehicle.Thing().UID
	heater, _ := callback.State(uid, ChannelHeater)
	assert.Equal(t, thing.On, heater)
	ventilation, _ := callback.State(uid, ChannelVentilation)
	assert.Equal(t, thing.Off, ventilation)
	door, _ := callback.State(uid, ChannelFrontLeftDoor)
	assert.Equal(t, thing.Open, door)
	window, _ := callback.State(uid, ChannelRearRightWindow)
	assert.Equal(t, thing.Undef, window)
	lock, _ := callback.State(uid, ChannelLock)
	assert.Equal(t, thing.On, lock)
	service, _ := callback.State(uid, ChannelServiceInspection)
	assert.Equal(t, thing.Quantity{Value: 120, Unit: "d"}, service)

	mark := callback.Mark()
	fake.mu.Lock()
	fake.fuelLevel = "40"
	fake.mu.Unlock()
	sched.Advance(DefaultRefresh * time.Second)
	assert.Equal(t, []string{ChannelFuelLevel}, callback.ChannelsUpdated(mark))

	vehicle.HandleCommand(vehicle.Thing().Channel(ChannelLock), thing.On)
	assert.Equal(t, "sec-1", fake.actionSecToken)
	assert.Equal(t, 1, sched.PendingOneOff())
}
