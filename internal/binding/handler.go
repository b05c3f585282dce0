package binding

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/thing"
)

// DefaultImmediateRefreshDelay is how long after a command the bridge is
// asked to poll again.
const DefaultImmediateRefreshDelay = 10 * time.Second

// BridgeAccess is what a child handler needs from its bridge.
type BridgeAccess[T Device[T]] interface {
	Status() thing.StatusInfo
	// Registry is nil while the bridge has no session.
	Registry() *Registry[T]
	ScheduleImmediateRefresh(delay time.Duration) bool
}

// ThingHandler carries the status and listener plumbing shared by every
// child handler. The binding supplies the channel mapping through update.
type ThingHandler[T Device[T]] struct {
	thing    thing.Thing
	callback thing.Callback
	bridge   BridgeAccess[T]
	deviceID string
	update   func(device T)

	mu         sync.Mutex
	registered *Registry[T]
	disposed   bool
	published  map[string]thing.State
}

func NewThingHandler[T Device[T]](t thing.Thing, callback thing.Callback, bridge BridgeAccess[T], deviceID string, update func(device T)) *ThingHandler[T] {
	return &ThingHandler[T]{
		thing:     t,
		callback:  callback,
		bridge:    bridge,
		deviceID:  NormalizeID(deviceID),
		update:    update,
		published: make(map[string]thing.State),
	}
}

func (h *ThingHandler[T]) Thing() thing.Thing {
	return h.thing
}

func (h *ThingHandler[T]) DeviceID() string {
	return h.deviceID
}

// Initialize picks up the bridge's current status.
func (h *ThingHandler[T]) Initialize() {
	h.mu.Lock()
	h.disposed = false
	h.mu.Unlock()
	if h.deviceID == "" {
		h.UpdateStatus(thing.Offline(thing.DetailConfigurationError, "Device id is not configured"))
		return
	}
	if h.bridge == nil {
		h.UpdateStatus(thing.Offline(thing.DetailBridgeUninitialized, "No bridge configured"))
		return
	}
	h.BridgeStatusChanged(h.bridge.Status())
}

func (h *ThingHandler[T]) BridgeStatusChanged(info thing.StatusInfo) {
	h.mu.Lock()
	disposed := h.disposed
	h.mu.Unlock()
	if disposed || h.deviceID == "" {
		return
	}
	switch info.Status {
	case thing.StatusOnline:
		registry := h.bridge.Registry()
		if registry == nil {
			h.UpdateStatus(thing.Offline(thing.DetailBridgeUninitialized, "Bridge has no session"))
			return
		}
		h.UpdateStatus(thing.Online())
		h.forget()
		if device, ok := registry.Get(h.deviceID); ok {
			h.update(device)
		}
		h.mu.Lock()
		if h.registered != nil && h.registered != registry {
			h.registered.UnregisterListener(h)
		}
		h.registered = registry
		h.mu.Unlock()
		registry.RegisterListener(h)
	case thing.StatusUnknown, thing.StatusUninitialized, thing.StatusInitializing:
		h.UpdateStatus(thing.Unknown())
	default:
		h.UpdateStatus(thing.Offline(thing.DetailBridgeOffline, ""))
	}
}

// Refresh pushes the last known snapshot again, republishing every channel.
func (h *ThingHandler[T]) Refresh() {
	h.forget()
	if device, ok := h.Device(); ok {
		h.update(device)
	}
}

// Device is the last snapshot held by the bridge for this thing.
func (h *ThingHandler[T]) Device() (T, bool) {
	var zero T
	if h.bridge == nil {
		return zero, false
	}
	registry := h.bridge.Registry()
	if registry == nil {
		return zero, false
	}
	return registry.Get(h.deviceID)
}

func (h *ThingHandler[T]) ScheduleImmediateRefresh() {
	if h.bridge != nil {
		h.bridge.ScheduleImmediateRefresh(DefaultImmediateRefreshDelay)
	}
}

func (h *ThingHandler[T]) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed = true
	if h.registered != nil {
		h.registered.UnregisterListener(h)
		h.registered = nil
	}
}

func (h *ThingHandler[T]) OnDeviceStateChanged(device T) {
	if NormalizeID(device.DeviceID()) != h.deviceID {
		return
	}
	h.update(device)
}

func (h *ThingHandler[T]) OnDeviceAdded(device T) {
	if NormalizeID(device.DeviceID()) != h.deviceID {
		return
	}
	log.Debug().Str("thing", string(h.thing.UID)).Msg("Device reported by bridge")
	if h.bridge != nil && h.bridge.Status().Status == thing.StatusOnline {
		h.UpdateStatus(thing.Online())
	}
}

func (h *ThingHandler[T]) OnDeviceRemoved(device T) {
	if NormalizeID(device.DeviceID()) != h.deviceID {
		return
	}
	h.UpdateStatus(thing.Offline(thing.DetailCommunicationError, "Device is no longer reported by the bridge"))
}

func (h *ThingHandler[T]) UpdateStatus(info thing.StatusInfo) {
	h.callback.StatusUpdated(h.thing.UID, info)
}

// UpdateState publishes a channel state when the channel is linked and the
// state differs from the last one published.
func (h *ThingHandler[T]) UpdateState(channelID string, state thing.State) {
	channel := h.thing.Channel(channelID)
	if !h.callback.IsLinked(channel) {
		return
	}
	h.mu.Lock()
	if previous, ok := h.published[channelID]; ok && previous == state {
		h.mu.Unlock()
		return
	}
	h.published[channelID] = state
	h.mu.Unlock()
	h.callback.StateUpdated(channel, state)
}

func (h *ThingHandler[T]) forget() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = make(map[string]thing.State)
}
