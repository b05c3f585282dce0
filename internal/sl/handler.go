package sl

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type DeparturesConfig struct {
	SiteID     string `json:"siteId"`
	TimeWindow int    `json:"timeWindow"`
	// Modes and Lines are comma separated lists.
	Modes     string `json:"transportModes"`
	Lines     string `json:"lines"`
	Direction int    `json:"direction"`
}

func (c DeparturesConfig) query() Query {
	window := c.TimeWindow
	if window <= 0 {
		window = DefaultTimeWindow
	}
	if window > MaxTimeWindow {
		window = MaxTimeWindow
	}
	return Query{
		SiteID:     strings.TrimSpace(c.SiteID),
		TimeWindow: window,
		Modes:      splitList(c.Modes),
		Lines:      splitList(c.Lines),
		Direction:  c.Direction,
	}
}

func splitList(value string) []string {
	var list []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}

// DeparturesHandler shows the next departures from one stop.
type DeparturesHandler struct {
	*binding.ThingHandler[Board]
	bridge *Bridge
	query  Query
}

func NewDeparturesHandler(t thing.Thing, callback thing.Callback, bridge *Bridge) *DeparturesHandler {
	var cfg DeparturesConfig
	if err := t.Configuration.As(&cfg); err != nil {
		log.Warn().Err(err).Str("thing", string(t.UID)).Msg("Invalid departures configuration")
	}
	h := &DeparturesHandler{bridge: bridge, query: cfg.query()}
	var access binding.BridgeAccess[Board]
	if bridge != nil {
		access = bridge
	}
	id := ""
	if h.query.SiteID != "" {
		id = string(t.UID)
	}
	h.ThingHandler = binding.NewThingHandler[Board](t, callback, access, id, h.update)
	return h
}

func (h *DeparturesHandler) Initialize() {
	if h.bridge != nil && h.query.SiteID != "" {
		h.bridge.Watch(h.DeviceID(), h.query)
	}
	h.ThingHandler.Initialize()
	h.ScheduleImmediateRefresh()
}

func (h *DeparturesHandler) Dispose() {
	if h.bridge != nil {
		h.bridge.Unwatch(h.DeviceID())
	}
	h.ThingHandler.Dispose()
}

func (h *DeparturesHandler) update(b Board) {
	h.UpdateState(ChannelDepartureCount, thing.Decimal(len(b.Departures)))
	if len(b.Deviations) > 0 {
		h.UpdateState(ChannelDeviations, thing.String(strings.Join(b.Deviations, "; ")))
	} else {
		h.UpdateState(ChannelDeviations, thing.Undef)
	}
	if len(b.Departures) == 0 {
		for _, channel := range []string{ChannelNextDeparture, ChannelNextLine, ChannelNextDestination, ChannelNextDisplayTime, ChannelFollowingDeparture} {
			h.UpdateState(channel, thing.Undef)
		}
		return
	}
	next := b.Departures[0]
	h.UpdateState(ChannelNextDeparture, thing.NewDateTime(next.When()))
	h.UpdateState(ChannelNextLine, thing.String(next.Line))
	h.UpdateState(ChannelNextDestination, thing.String(next.Destination))
	h.UpdateState(ChannelNextDisplayTime, thing.String(next.DisplayTime))
	if len(b.Departures) > 1 {
		h.UpdateState(ChannelFollowingDeparture, thing.NewDateTime(b.Departures[1].When()))
	} else {
		h.UpdateState(ChannelFollowingDeparture, thing.Undef)
	}
}

func (h *DeparturesHandler) HandleCommand(channel thing.ChannelUID, command thing.Command) {
	if _, ok := command.(thing.RefreshType); ok {
		h.Refresh()
	}
}
