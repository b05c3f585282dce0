package weconnect

import (
	"github.com/guregu/null"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type VehicleConfig struct {
	VIN string `json:"vin"`
}

type VehicleHandler struct {
	*binding.ThingHandler[Vehicle]
	bridge *Bridge
}

func NewVehicleHandler(t thing.Thing, callback thing.Callback, bridge *Bridge) *VehicleHandler {
	var cfg VehicleConfig
	if err := t.Configuration.As(&cfg); err != nil {
		log.Warn().Err(err).Str("thing", string(t.UID)).Msg("Invalid vehicle configuration")
	}
	h := &VehicleHandler{bridge: bridge}
	var access binding.BridgeAccess[Vehicle]
	if bridge != nil {
		access = bridge
	}
	h.ThingHandler = binding.NewThingHandler[Vehicle](t, callback, access, cfg.VIN, h.update)
	return h
}

func (h *VehicleHandler) update(v Vehicle) {
	h.UpdateState(ChannelFrontLeftDoor, openClosed(v.DoorsOpen.FrontLeft))
	h.UpdateState(ChannelFrontRightDoor, openClosed(v.DoorsOpen.FrontRight))
	h.UpdateState(ChannelRearLeftDoor, openClosed(v.DoorsOpen.RearLeft))
	h.UpdateState(ChannelRearRightDoor, openClosed(v.DoorsOpen.RearRight))
	h.UpdateState(ChannelTrunk, openClosed(v.TrunkOpen))
	h.UpdateState(ChannelHood, openClosed(v.HoodOpen))
	h.UpdateState(ChannelFrontLeftWindow, openClosed(v.WindowsOpen.FrontLeft))
	h.UpdateState(ChannelFrontRightWindow, openClosed(v.WindowsOpen.FrontRight))
	h.UpdateState(ChannelRearLeftWindow, openClosed(v.WindowsOpen.RearLeft))
	h.UpdateState(ChannelRearRightWindow, openClosed(v.WindowsOpen.RearRight))
	if locked := v.Locked(); locked.Valid {
		h.UpdateState(ChannelLock, thing.OnOff(locked.Bool))
	} else {
		h.UpdateState(ChannelLock, thing.Undef)
	}
	h.UpdateState(ChannelMileage, quantity(v.Readings.Mileage, "km"))
	h.UpdateState(ChannelFuelLevel, quantity(v.Readings.FuelLevel, "%"))
	h.UpdateState(ChannelBatteryLevel, quantity(v.Readings.BatteryLevel, "%"))
	h.UpdateState(ChannelFuelRange, quantity(v.Readings.FuelRange, "km"))
	h.UpdateState(ChannelBatteryRange, quantity(v.Readings.BatteryRange, "km"))
	h.UpdateState(ChannelTotalRange, quantity(v.Readings.TotalRange, "km"))
	h.UpdateState(ChannelServiceInspection, quantity(v.Readings.ServiceInspection, "d"))
	h.UpdateState(ChannelOilInspection, quantity(v.Readings.OilInspection, "d"))
	if v.Readings.Latitude.Valid && v.Readings.Longitude.Valid {
		h.UpdateState(ChannelLocation, thing.Point{Latitude: v.Readings.Latitude.Float64, Longitude: v.Readings.Longitude.Float64})
	} else {
		h.UpdateState(ChannelLocation, thing.Undef)
	}
	h.UpdateState(ChannelHeater, thing.OnOff(v.Climatisation == "heating"))
	h.UpdateState(ChannelVentilation, thing.OnOff(v.Climatisation == "ventilation"))
}

func openClosed(value null.Bool) thing.State {
	if !value.Valid {
		return thing.Undef
	}
	return thing.OpenClosed(value.Bool)
}

func quantity(value null.Float, unit string) thing.State {
	if !value.Valid {
		return thing.Undef
	}
	return thing.Quantity{Value: value.Float64, Unit: unit}
}

func (h *VehicleHandler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		h.Refresh()
		return
	}
	on, ok := command.(thing.OnOff)
	if !ok || h.bridge == nil {
		return
	}
	session := h.bridge.Session()
	device, known := h.Device()
	if session == nil || !known {
		log.Warn().Str("channel", channel.String()).Msg("No vehicle state yet, ignoring command")
		return
	}
	ctx := h.bridge.Context()
	var err error
	switch channel.ID {
	case ChannelLock:
		err = session.Lock(ctx, device.VIN, h.bridge.PIN(), bool(on))
	case ChannelHeater, ChannelVentilation:
		mode := "off"
		if on && channel.ID == ChannelHeater {
			mode = "heating"
		} else if on {
			mode = "ventilation"
		}
		err = session.Climatisation(ctx, device.VIN, h.bridge.PIN(), mode)
	default:
		log.Debug().Str("channel", channel.String()).Msg("Channel is read only")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("channel", channel.String()).Msg("We-Connect command failed")
		h.Refresh()
		return
	}
	h.ScheduleImmediateRefresh()
}
