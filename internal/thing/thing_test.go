package thing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelUID_ItemName(t *testing.T) {
	channel := NewChannelUID("verisure:smart-lock:bridge:front-door", "status")
	assert.Equal(t, "verisure:smart-lock:bridge:front-door:status", channel.String())
	assert.Equal(t, "verisure_smart_lock_bridge_front_door_status", channel.ItemName())
}

func TestParseChannelUID(t *testing.T) {
	channel, err := ParseChannelUID("unifi:wirelessClient:home:phone:online")
	require.NoError(t, err)
	assert.Equal(t, UID("unifi:wirelessClient:home:phone"), channel.Thing)
	assert.Equal(t, "online", channel.ID)

	_, err = ParseChannelUID("nochannel")
	assert.Error(t, err)
	_, err = ParseChannelUID("thing:")
	assert.Error(t, err)
}

func TestParseCommand(t *testing.T) {
	assert.Equal(t, Refresh, ParseCommand("refresh"))
	assert.Equal(t, On, ParseCommand("ON"))
	assert.Equal(t, Off, ParseCommand(" off "))
	assert.Equal(t, Decimal(2), ParseCommand("2"))
	assert.Equal(t, String("HIGH"), ParseCommand("HIGH"))
}

func TestConfiguration_As(t *testing.T) {
	type config struct {
		Username string `json:"username"`
		Refresh  int    `json:"refresh"`
	}
	var cfg config
	err := Configuration{"username": "jane", "refresh": 600}.As(&cfg)
	require.NoError(t, err)
	assert.Equal(t, config{Username: "jane", Refresh: 600}, cfg)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "ON", On.String())
	assert.Equal(t, "CLOSED", Closed.String())
	assert.Equal(t, "21.5", Decimal(21.5).String())
	assert.Equal(t, "12 km", Quantity{Value: 12, Unit: "km"}.String())
	assert.Equal(t, "59.3,18.07", Point{Latitude: 59.3, Longitude: 18.07}.String())
	assert.Equal(t, "2019-05-03T06:00:00.000+0000", NewDateTime(time.Date(2019, 5, 3, 6, 0, 0, 0, time.UTC)).String())
	assert.Equal(t, "UNDEF", Undef.String())
}

func TestNumeric(t *testing.T) {
	value, ok := Numeric(Decimal(3))
	assert.True(t, ok)
	assert.Equal(t, float64(3), value)
	value, ok = Numeric(On)
	assert.True(t, ok)
	assert.Equal(t, float64(1), value)
	_, ok = Numeric(String("x"))
	assert.False(t, ok)
}
