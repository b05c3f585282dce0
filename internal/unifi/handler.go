package unifi

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type ClientConfig struct {
	// CID is the client's MAC address.
	CID string `json:"cid"`
}

type ClientHandler struct {
	*binding.ThingHandler[Client]
	controller *Controller
	wireless   bool
}

func NewClientHandler(t thing.Thing, callback thing.Callback, controller *Controller) *ClientHandler {
	var cfg ClientConfig
	if err := t.Configuration.As(&cfg); err != nil {
		log.Warn().Err(err).Str("thing", string(t.UID)).Msg("Invalid client configuration")
	}
	h := &ClientHandler{controller: controller, wireless: t.Type == ThingTypeWirelessClient}
	var access binding.BridgeAccess[Client]
	if controller != nil {
		access = controller
	}
	h.ThingHandler = binding.NewThingHandler[Client](t, callback, access, strings.ToLower(cfg.CID), h.update)
	return h
}

func (h *ClientHandler) update(c Client) {
	h.UpdateState(ChannelOnline, thing.OnOff(c.Online))
	h.UpdateState(ChannelSite, text(c.Site))
	h.UpdateState(ChannelMAC, text(c.MAC))
	h.UpdateState(ChannelIP, text(c.IP))
	h.UpdateState(ChannelBlocked, thing.OnOff(c.Blocked))
	if c.Uptime.Valid && c.Active {
		h.UpdateState(ChannelUptime, thing.Quantity{Value: float64(c.Uptime.Int64), Unit: "s"})
	} else {
		h.UpdateState(ChannelUptime, thing.Undef)
	}
	if seen, ok := c.LastSeenTime(); ok {
		h.UpdateState(ChannelLastSeen, thing.NewDateTime(seen))
	} else {
		h.UpdateState(ChannelLastSeen, thing.Undef)
	}
	if !h.wireless {
		return
	}
	h.UpdateState(ChannelESSID, text(c.ESSID))
	h.UpdateState(ChannelAP, text(c.APMAC))
	if c.RSSI.Valid && c.Active {
		h.UpdateState(ChannelRSSI, thing.Decimal(c.RSSI.Int64))
	} else {
		h.UpdateState(ChannelRSSI, thing.Undef)
	}
	h.UpdateState(ChannelReconnect, thing.Off)
}

func text(value string) thing.State {
	if value == "" {
		return thing.Undef
	}
	return thing.String(value)
}

func (h *ClientHandler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		h.Refresh()
		return
	}
	on, ok := command.(thing.OnOff)
	if !ok || h.controller == nil {
		return
	}
	session := h.controller.Session()
	client, known := h.Device()
	if session == nil || !known {
		log.Warn().Str("channel", channel.String()).Msg("Client is not known to the controller, ignoring command")
		return
	}
	ctx := h.controller.Context()
	var err error
	switch channel.ID {
	case ChannelBlocked:
		h.UpdateState(ChannelBlocked, on)
		err = session.Block(ctx, client.MAC, bool(on))
	case ChannelReconnect:
		if !bool(on) || !h.wireless {
			return
		}
		err = session.Reconnect(ctx, client.MAC)
		h.UpdateState(ChannelReconnect, thing.Off)
	default:
		log.Debug().Str("channel", channel.String()).Msg("Channel is read only")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("channel", channel.String()).Msg("UniFi command failed")
		h.Refresh()
		return
	}
	h.ScheduleImmediateRefresh()
}
