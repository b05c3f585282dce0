package recycling

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type AddressConfig struct {
	Address string `json:"address"`
}

var fractionChannels = map[Fraction]string{
	FractionFood:     ChannelFoodWaste,
	FractionResidual: ChannelResidualWaste,
	FractionPaper:    ChannelPaper,
	FractionPlastic:  ChannelPlastic,
	FractionGlass:    ChannelGlass,
	FractionMetal:    ChannelMetal,
}

type AddressHandler struct {
	*binding.ThingHandler[Schedule]
	provider *Provider
	address  string
}

func NewAddressHandler(t thing.Thing, callback thing.Callback, provider *Provider) *AddressHandler {
	var cfg AddressConfig
	if err := t.Configuration.As(&cfg); err != nil {
		log.Warn().Err(err).Str("thing", string(t.UID)).Msg("Invalid address configuration")
	}
	h := &AddressHandler{provider: provider, address: strings.TrimSpace(cfg.Address)}
	var access binding.BridgeAccess[Schedule]
	if provider != nil {
		access = provider
	}
	id := ""
	if h.address != "" {
		id = string(t.UID)
	}
	h.ThingHandler = binding.NewThingHandler[Schedule](t, callback, access, id, h.update)
	return h
}

func (h *AddressHandler) Initialize() {
	if h.provider != nil && h.address != "" {
		h.provider.Watch(h.DeviceID(), h.address)
	}
	h.ThingHandler.Initialize()
	h.ScheduleImmediateRefresh()
}

func (h *AddressHandler) Dispose() {
	if h.provider != nil {
		h.provider.Unwatch(h.DeviceID())
	}
	h.ThingHandler.Dispose()
}

func (h *AddressHandler) update(s Schedule) {
	if len(s.Pickups) == 0 {
		h.UpdateState(ChannelNextPickup, thing.Undef)
		h.UpdateState(ChannelNextFraction, thing.Undef)
	} else {
		h.UpdateState(ChannelNextPickup, thing.NewDateTime(s.Pickups[0].Date))
		h.UpdateState(ChannelNextFraction, thing.String(s.Pickups[0].Name))
	}
	for fraction, channel := range fractionChannels {
		if p, ok := s.Next(fraction); ok {
			h.UpdateState(channel, thing.NewDateTime(p.Date))
		} else {
			h.UpdateState(channel, thing.Undef)
		}
	}
}

func (h *AddressHandler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		h.Refresh()
	}
}
