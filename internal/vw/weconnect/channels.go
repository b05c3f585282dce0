package weconnect

import (
	"time"

	"github.com/jgulick48/cloud-bindings/internal/thing"
)

const (
	ThingTypeBridge  thing.TypeUID = "weconnect:bridge"
	ThingTypeVehicle thing.TypeUID = "weconnect:vehicle"
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
	ChannelMileage           = "mileage"
	ChannelFuelLevel         = "fuelLevel"
	ChannelBatteryLevel      = "batteryLevel"
	ChannelFuelRange         = "fuelRange"
	ChannelBatteryRange      = "batteryRange"
	ChannelTotalRange        = "totalRange"
	ChannelServiceInspection = "serviceInspectionDays"
	ChannelOilInspection     = "oilInspectionDays"
	ChannelLocation          = "location"
	ChannelHeater            = "heater"
	ChannelVentilation       = "ventilation"
)

const (
	DefaultIdentityURL = "https://identity.vwgroup.io"
	DefaultTokenURL    = "https://mbboauth-1d.prd.ece.vwg-connect.com/mbbcoauth/mobile/oauth2/v1/token"
	DefaultAPIURL      = "https://msg.volkswagen.de/fs-car"
	DefaultSecurityURL = "https://mal-1a.prd.ece.vwg-connect.com/api"
	DefaultRefresh     = 600

	clientID    = "9496332b-ea03-4091-a224-8c746b885068@apps_vw-dilab_com"
	redirectURI = "carnet://identity-kit/login"
	scope       = "openid profile mbb cars birthdate nickname address phone"

	// tokenMargin renews the access token before the vendor expires it.
	tokenMargin = time.Minute

	// actionTimeout and actionRetries bound the retried action POST.
	actionTimeout = 10 * time.Second
	actionRetries = 3
)
