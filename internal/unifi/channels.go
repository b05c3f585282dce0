package unifi

import "github.com/jgulick48/cloud-bindings/internal/thing"

const (
	ThingTypeController     thing.TypeUID = "unifi:controller"
	ThingTypeWirelessClient thing.TypeUID = "unifi:wirelessClient"
	ThingTypeWiredClient    thing.TypeUID = "unifi:wiredClient"
)

const (
	ChannelOnline    = "online"
	ChannelSite      = "site"
	ChannelMAC       = "macAddress"
	ChannelIP        = "ipAddress"
	ChannelUptime    = "uptime"
	ChannelLastSeen  = "lastSeen"
	ChannelESSID     = "essid"
	ChannelAP        = "ap"
	ChannelRSSI      = "rssi"
	ChannelBlocked   = "blocked"
	ChannelReconnect = "reconnect"
)

const (
	DefaultPort         = 8443
	DefaultSite         = "default"
	DefaultRefresh      = 10
	DefaultConsiderHome = 180
)
