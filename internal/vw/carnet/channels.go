package carnet

import "github.com/jgulick48/cloud-bindings/internal/thing"

const (
	ThingTypeBridge  thing.TypeUID = "carnet:bridge"
	ThingTypeVehicle thing.TypeUID = "carnet:vehicle"
)

const (
	ChannelFrontLeftDoor     = "frontLeftDoor"
	ChannelFrontRightDoor    = "frontRightDoor"
	ChannelRearLeftDoor      = "rearLeftDoor"
	ChannelRearRightDoor     = "rearRightDoor"
	ChannelTrunk             = "trunk"
	ChannelHood              = "hood"
	ChannelFrontLeftWindow   = "frontLeftWindow"
	ChannelFrontRightWindow  = "frontRightWindow"
	ChannelRearLeftWindow    = "rearLeftWindow"
	ChannelRearRightWindow   = "rearRightWindow"
	ChannelLock              = "lock"
	ChannelFuelLevel         = "fuelLevel"
	ChannelBatteryLevel      = "batteryLevel"
	ChannelFuelRange         = "fuelRange"
	ChannelBatteryRange      = "batteryRange"
	ChannelTotalRange        = "totalRange"
	ChannelMileage           = "mileage"
	ChannelServiceInspection = "serviceInspection"
	ChannelOilInspection     = "oilInspection"
	ChannelLocation          = "location"
	ChannelRemoteHeater      = "remoteHeater"
	ChannelClimate           = "climate"
	ChannelWindowHeat        = "windowHeat"
	ChannelCharging          = "charging"
	ChannelLastConnection    = "lastConnection"
)

const (
	DefaultPortalURL = "https://www.portal.volkswagen-we.com"
	DefaultRefresh   = 600
)

// Door and lock codes used by the status report.
const (
	doorClosed = 3
	lockLocked = 2
)
