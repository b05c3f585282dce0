package carnet

import (
	"context"

	"github.com/guregu/null"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type VehicleConfig struct {
	VIN string `json:"vin"`
}

// VehicleHandler maps one vehicle onto its channels.
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
	if v.Locked.Valid {
		h.UpdateState(ChannelLock, thing.OnOff(v.Locked.Bool))
	} else {
		h.UpdateState(ChannelLock, thing.Undef)
	}
	h.UpdateState(ChannelFuelLevel, quantity(v.Levels.FuelLevel, "%"))
	h.UpdateState(ChannelBatteryLevel, quantity(v.Levels.BatteryLevel, "%"))
	h.UpdateState(ChannelFuelRange, quantity(v.Levels.FuelRange, "km"))
	h.UpdateState(ChannelBatteryRange, quantity(v.Levels.BatteryRange, "km"))
	h.UpdateState(ChannelTotalRange, quantity(v.Levels.TotalRange, "km"))
	h.UpdateState(ChannelMileage, quantity(v.Levels.Mileage, "km"))
	h.UpdateState(ChannelServiceInspection, text(v.ServiceInspection))
	h.UpdateState(ChannelOilInspection, text(v.OilInspection))
	if v.Levels.Latitude.Valid && v.Levels.Longitude.Valid {
		h.UpdateState(ChannelLocation, thing.Point{Latitude: v.Levels.Latitude.Float64, Longitude: v.Levels.Longitude.Float64})
	} else {
		h.UpdateState(ChannelLocation, thing.Undef)
	}
	h.UpdateState(ChannelRemoteHeater, thing.OnOff(v.HeaterActive))
	h.UpdateState(ChannelClimate, thing.OnOff(v.ClimateActive))
	h.UpdateState(ChannelWindowHeat, thing.OnOff(v.WindowHeatActive))
	h.UpdateState(ChannelCharging, thing.OnOff(v.Charging))
	h.UpdateState(ChannelLastConnection, text(v.LastConnection))
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

func text(value string) thing.State {
	if value == "" {
		return thing.Undef
	}
	return thing.String(value)
}

func (h *VehicleHandler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		h.Refresh()
		return
	}
	on, ok := command.(thing.OnOff)
	if !ok {
		log.Warn().Str("channel", channel.String()).Str("command", command.String()).Msg("Vehicle channels only accept ON and OFF")
		return
	}
	if h.bridge == nil {
		return
	}
	session := h.bridge.Session()
	if session == nil {
		return
	}
	var send func(ctx context.Context) error
	switch channel.ID {
	case ChannelLock:
		send = func(ctx context.Context) error { return session.Lock(ctx, h.DeviceID(), h.bridge.PIN(), bool(on)) }
	case ChannelRemoteHeater:
		send = func(ctx context.Context) error {
			return session.RemoteHeater(ctx, h.DeviceID(), h.bridge.PIN(), bool(on))
		}
	case ChannelClimate:
		send = func(ctx context.Context) error { return session.Climate(ctx, h.DeviceID(), bool(on)) }
	case ChannelWindowHeat:
		send = func(ctx context.Context) error { return session.WindowHeat(ctx, h.DeviceID(), bool(on)) }
	case ChannelCharging:
		send = func(ctx context.Context) error { return session.Charging(ctx, h.DeviceID(), bool(on)) }
	default:
		log.Debug().Str("channel", channel.String()).Msg("Channel is read only")
		return
	}
	if err := send(h.bridge.Context()); err != nil {
		log.Warn().Err(err).Str("channel", channel.String()).Msg("Car-Net command failed")
		h.Refresh()
		return
	}
	h.ScheduleImmediateRefresh()
}
