package verisure

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type DeviceConfig struct {
	DeviceID string `json:"deviceId"`
}

// Handler maps one Verisure device onto its channels.
type Handler struct {
	*binding.ThingHandler[Device]
	bridge *Bridge
	kind   Kind
}

func NewHandler(t thing.Thing, callback thing.Callback, bridge *Bridge) *Handler {
	var cfg DeviceConfig
	if err := t.Configuration.As(&cfg); err != nil {
		log.Warn().Err(err).Str("thing", string(t.UID)).Msg("Invalid device configuration")
	}
	h := &Handler{bridge: bridge, kind: Kind(strings.TrimPrefix(string(t.Type), "verisure:"))}
	var access binding.BridgeAccess[Device]
	if bridge != nil {
		access = bridge
	}
	h.ThingHandler = binding.NewThingHandler[Device](t, callback, access, cfg.DeviceID, h.update)
	return h
}

func (h *Handler) update(device Device) {
	if device.Kind() != h.kind {
		h.UpdateStatus(thing.Offline(thing.DetailConfigurationError, fmt.Sprintf("Device %s is a %s, not a %s", device.DeviceID(), device.Kind(), h.kind)))
		return
	}
	switch d := device.(type) {
	case Alarm:
		h.UpdateState(ChannelStatus, thing.String(d.Status))
		if n, ok := d.NumericStatus(); ok {
			h.UpdateState(ChannelNumericStatus, thing.Decimal(n))
			h.UpdateState(ChannelSetAlarmStatus, thing.Decimal(n))
		} else {
			h.UpdateState(ChannelNumericStatus, thing.Undef)
			h.UpdateState(ChannelSetAlarmStatus, thing.Undef)
		}
		h.UpdateState(ChannelAlarmStatus, stringOrUndef(d.Label))
		h.UpdateState(ChannelLastUpdate, stringOrUndef(d.Date))
		h.UpdateState(ChannelChangedByUser, stringOrUndef(d.ChangedBy))
		h.UpdateState(ChannelLocation, stringOrUndef(d.Location))
	case SmartLock:
		h.UpdateState(ChannelStatus, thing.String(d.Status))
		switch locked, known := d.Locked(); {
		case !known:
			h.UpdateState(ChannelNumericStatus, thing.Undef)
			h.UpdateState(ChannelSetSmartLockStatus, thing.Undef)
		case locked:
			h.UpdateState(ChannelNumericStatus, thing.Decimal(1))
			h.UpdateState(ChannelSetSmartLockStatus, thing.OnOff(true))
		default:
			h.UpdateState(ChannelNumericStatus, thing.Decimal(0))
			h.UpdateState(ChannelSetSmartLockStatus, thing.OnOff(false))
		}
		h.UpdateState(ChannelLastUpdate, stringOrUndef(d.Date))
		h.UpdateState(ChannelChangedByUser, stringOrUndef(d.ChangedBy))
		h.UpdateState(ChannelLocation, stringOrUndef(d.Location))
		h.UpdateState(ChannelAutoRelock, thing.OnOff(d.AutoRelock))
		h.UpdateState(ChannelSmartLockVolume, stringOrUndef(d.Volume))
		h.UpdateState(ChannelSmartLockVoice, stringOrUndef(d.VoiceLevel))
	case SmartPlug:
		h.UpdateState(ChannelStatus, thing.String(d.Status))
		if on, known := d.On(); known {
			h.UpdateState(ChannelSmartPlugStatus, thing.OnOff(on))
		} else {
			h.UpdateState(ChannelSmartPlugStatus, thing.Undef)
		}
		h.UpdateState(ChannelLocation, stringOrUndef(d.Location))
	case ClimateSensor:
		if d.Temperature.Valid {
			h.UpdateState(ChannelTemperature, thing.Quantity{Value: d.Temperature.Float64, Unit: "°C"})
		} else {
			h.UpdateState(ChannelTemperature, thing.Undef)
		}
		if d.Humidity.Valid {
			h.UpdateState(ChannelHumidity, thing.Quantity{Value: d.Humidity.Float64, Unit: "%"})
		} else {
			h.UpdateState(ChannelHumidity, thing.Undef)
		}
		h.UpdateState(ChannelLastUpdate, stringOrUndef(d.Timestamp))
		h.UpdateState(ChannelLocation, stringOrUndef(d.Location))
	case DoorWindow:
		if open, known := d.Open(); known {
			h.UpdateState(ChannelState, thing.OpenClosed(open))
		} else {
			h.UpdateState(ChannelState, thing.Undef)
		}
		h.UpdateState(ChannelLocation, stringOrUndef(d.Location))
	case UserPresence:
		h.UpdateState(ChannelStatus, stringOrUndef(d.Name))
		h.UpdateState(ChannelUserLocationStatus, stringOrUndef(d.Status))
		h.UpdateState(ChannelLocation, stringOrUndef(d.Location))
	default:
		log.Warn().Str("thing", string(h.Thing().UID)).Msgf("Unhandled device %T", device)
	}
}

func stringOrUndef(value string) thing.State {
	if value == "" {
		return thing.Undef
	}
	return thing.String(value)
}

// HandleCommand validates a command against the device's current snapshot
// and sends it through the bridge session. Callers run it on the scheduler.
func (h *Handler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		h.Refresh()
		return
	}
	device, ok := h.Device()
	if !ok || h.bridge == nil {
		log.Warn().Str("channel", channel.String()).Msg("No device state yet, ignoring command")
		return
	}
	if device.Kind() != h.kind {
		log.Warn().Str("channel", channel.String()).Str("kind", string(device.Kind())).Msg("Device kind does not match thing type, ignoring command")
		return
	}
	session := h.bridge.Session()
	if session == nil {
		return
	}
	ctx := h.bridge.Context()

	var err error
	switch d := device.(type) {
	case Alarm:
		if channel.ID != ChannelSetAlarmStatus {
			break
		}
		state, valid := armState(command)
		if !valid {
			log.Warn().Str("channel", channel.String()).Str("command", command.String()).Msg("Rejected alarm command")
			return
		}
		h.UpdateState(ChannelStatus, PendingState)
		err = session.SetAlarmState(ctx, h.bridge.PIN(), state)
	case SmartLock:
		err = h.handleSmartLock(d, channel, command)
		if errors.Is(err, errRejected) {
			return
		}
	case SmartPlug:
		if channel.ID != ChannelSmartPlugStatus {
			break
		}
		on, valid := command.(thing.OnOff)
		if !valid {
			return
		}
		h.UpdateState(ChannelStatus, PendingState)
		err = session.SetSmartPlug(ctx, d.ID, bool(on))
	case ClimateSensor, DoorWindow, UserPresence:
		log.Debug().Str("channel", channel.String()).Msg("Channel is read only")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("channel", channel.String()).Msg("Verisure command failed")
		h.Refresh()
		return
	}
	h.ScheduleImmediateRefresh()
}

var errRejected = errors.New("command rejected")

func (h *Handler) handleSmartLock(d SmartLock, channel thing.ChannelUID, command thing.Command) error {
	session := h.bridge.Session()
	ctx := h.bridge.Context()
	switch channel.ID {
	case ChannelSetSmartLockStatus:
		locked, valid := command.(thing.OnOff)
		if !valid {
			return errRejected
		}
		h.UpdateState(ChannelStatus, PendingState)
		return session.SetSmartLock(ctx, h.bridge.PIN(), d.ID, bool(locked))
	case ChannelSmartLockVolume:
		volume := command.String()
		if !slices.Contains(d.VolumeSettings, volume) {
			log.Warn().Str("channel", channel.String()).Str("volume", volume).Strs("allowed", d.VolumeSettings).Msg("Rejected smart lock volume")
			return errRejected
		}
		return session.SetSmartLockSettings(ctx, d.ID, d.AutoRelock, volume, d.VoiceLevel)
	case ChannelSmartLockVoice:
		level := command.String()
		if !slices.Contains(d.VoiceLevelSettings, level) {
			log.Warn().Str("channel", channel.String()).Str("voiceLevel", level).Strs("allowed", d.VoiceLevelSettings).Msg("Rejected smart lock voice level")
			return errRejected
		}
		return session.SetSmartLockSettings(ctx, d.ID, d.AutoRelock, d.Volume, level)
	case ChannelAutoRelock:
		relock, valid := command.(thing.OnOff)
		if !valid {
			return errRejected
		}
		return session.SetSmartLockSettings(ctx, d.ID, bool(relock), d.Volume, d.VoiceLevel)
	}
	return errRejected
}

// armState accepts 0, 1 and 2 as well as the vendor state names.
func armState(command thing.Command) (string, bool) {
	switch c := command.(type) {
	case thing.Decimal:
		if float64(c) != float64(int(c)) {
			return "", false
		}
		switch int(c) {
		case 0:
			return ArmStateDisarmed, true
		case 1:
			return ArmStateArmedHome, true
		case 2:
			return ArmStateArmedAway, true
		}
	case thing.String:
		state := strings.ToUpper(string(c))
		switch state {
		case ArmStateDisarmed, ArmStateArmedHome, ArmStateArmedAway:
			return state, true
		}
	}
	return "", false
}
