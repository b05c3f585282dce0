package binding

import (
	"sync"
	"unicode"

	"github.com/guregu/null"
)

// NormalizeID strips every non-alphanumeric rune so that vendor formatting
// differences ("00:11:22", "001122", "Front-Door") map to one identity.
func NormalizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return string(out)
}

// Device is a per-poll snapshot of one vendor device.
type Device[T any] interface {
	DeviceID() string
	Equal(other T) bool
}

// Listener receives device events from a Registry.
type Listener[T any] interface {
	OnDeviceStateChanged(device T)
	OnDeviceAdded(device T)
	OnDeviceRemoved(device T)
}

// Registry holds the last snapshot per device and the listeners to notify
// when it changes.
type Registry[T Device[T]] struct {
	mu        sync.Mutex
	devices   map[string]T
	listeners []Listener[T]
}

func NewRegistry[T Device[T]]() *Registry[T] {
	return &Registry[T]{
		devices: make(map[string]T),
	}
}

type event[T any] struct {
	device  T
	added   bool
	removed bool
}

// Put stores a snapshot. Listeners are notified only when it differs from
// the one already held for the same device.
func (r *Registry[T]) Put(device T) {
	r.mu.Lock()
	e, changed := r.put(device)
	listeners := r.snapshotListeners()
	r.mu.Unlock()
	if changed {
		dispatch(listeners, []event[T]{e})
	}
}

// Sync replaces the full device set: every snapshot is put, and devices
// missing from the set are removed.
func (r *Registry[T]) Sync(devices []T) {
	r.mu.Lock()
	seen := make(map[string]bool, len(devices))
	events := make([]event[T], 0)
	for _, device := range devices {
		seen[NormalizeID(device.DeviceID())] = true
		if e, changed := r.put(device); changed {
			events = append(events, e)
		}
	}
	for id, device := range r.devices {
		if !seen[id] {
			delete(r.devices, id)
			events = append(events, event[T]{device: device, removed: true})
		}
	}
	listeners := r.snapshotListeners()
	r.mu.Unlock()
	dispatch(listeners, events)
}

func (r *Registry[T]) put(device T) (event[T], bool) {
	id := NormalizeID(device.DeviceID())
	previous, ok := r.devices[id]
	if ok && previous.Equal(device) {
		return event[T]{}, false
	}
	r.devices[id] = device
	return event[T]{device: device, added: !ok}, true
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[NormalizeID(id)]
	return device, ok
}

func (r *Registry[T]) All() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	devices := make([]T, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}
	return devices
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Clear drops all snapshots without notifying anyone.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]T)
}

func (r *Registry[T]) RegisterListener(listener Listener[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listeners {
		if l == listener {
			return false
		}
	}
	r.listeners = append(r.listeners, listener)
	return true
}

func (r *Registry[T]) UnregisterListener(listener Listener[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.listeners {
		if l == listener {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry[T]) snapshotListeners() []Listener[T] {
	listeners := make([]Listener[T], len(r.listeners))
	copy(listeners, r.listeners)
	return listeners
}

func dispatch[T any](listeners []Listener[T], events []event[T]) {
	for _, e := range events {
		for _, l := range listeners {
			switch {
			case e.removed:
				l.OnDeviceRemoved(e.device)
			case e.added:
				l.OnDeviceAdded(e.device)
				l.OnDeviceStateChanged(e.device)
			default:
				l.OnDeviceStateChanged(e.device)
			}
		}
	}
}

// FloatEqual compares two nullable decimals by value. Two missing values are
// equal; a missing value never equals a present one.
func FloatEqual(a, b null.Float) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Float64 == b.Float64
}
