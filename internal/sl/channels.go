package sl

import "github.com/jgulick48/cloud-bindings/internal/thing"

const (
	ThingTypeBridge     thing.TypeUID = "sl:bridge"
	ThingTypeDepartures thing.TypeUID = "sl:departures"
)

const (
	ChannelNextDeparture      = "nextDeparture"
	ChannelNextLine           = "nextLine"
	ChannelNextDestination    = "nextDestination"
	ChannelNextDisplayTime    = "nextDisplayTime"
	ChannelFollowingDeparture = "followingDeparture"
	ChannelDeviations         = "deviations"
	ChannelDepartureCount     = "departureCount"
)

const (
	DefaultBaseURL    = "https://api.sl.se/api2"
	DefaultRefresh    = 60
	DefaultTimeWindow = 30
	// MaxTimeWindow is the longest window in minutes the API accepts.
	MaxTimeWindow = 60
)
