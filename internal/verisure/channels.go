package verisure

import "github.com/jgulick48/cloud-bindings/internal/thing"

const (
	BindingID = "verisure"

	ThingTypeBridge        thing.TypeUID = "verisure:bridge"
	ThingTypeAlarm         thing.TypeUID = "verisure:alarm"
	ThingTypeSmartLock     thing.TypeUID = "verisure:smartLock"
	ThingTypeSmartPlug     thing.TypeUID = "verisure:smartPlug"
	ThingTypeClimateSensor thing.TypeUID = "verisure:climateSensor"
	ThingTypeDoorWindow    thing.TypeUID = "verisure:doorWindow"
	ThingTypeUserPresence  thing.TypeUID = "verisure:userPresence"
)

const (
	ChannelStatus             = "status"
	ChannelNumericStatus      = "numericStatus"
	ChannelAlarmStatus        = "alarmStatus"
	ChannelLastUpdate         = "lastUpdate"
	ChannelChangedByUser      = "changedByUser"
	ChannelSetAlarmStatus     = "setAlarmStatus"
	ChannelSetSmartLockStatus = "setSmartLockStatus"
	ChannelSmartLockVolume    = "smartLockVolume"
	ChannelSmartLockVoice     = "smartLockVoiceLevel"
	ChannelAutoRelock         = "autoRelock"
	ChannelSmartPlugStatus    = "smartPlugStatus"
	ChannelTemperature        = "temperature"
	ChannelHumidity           = "humidity"
	ChannelState              = "state"
	ChannelUserLocationStatus = "userLocationStatus"
	ChannelLocation           = "location"
)

const (
	DefaultBaseURL = "https://mypages.verisure.com"
	DefaultCountry = "se"
	// DefaultRefresh is the refresh interval in seconds.
	DefaultRefresh = 600
)

// PendingState is published on a setter channel until the next poll
// confirms the command.
const PendingState = thing.String("pending")
