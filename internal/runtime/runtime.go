// Package runtime hosts the thing handlers: it creates them from the
// configured things, implements the callback they publish through and fans
// their states out to the sinks.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jgulick48/cloud-bindings/internal/metrics"
	"github.com/jgulick48/cloud-bindings/internal/scheduler"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

// Sink receives every status and state change published by a handler.
type Sink interface {
	StatusUpdated(uid thing.UID, info thing.StatusInfo)
	StateUpdated(channel thing.ChannelUID, state thing.State)
}

// Linker decides whether a channel has a consumer. A channel is linked when
// every linker accepts it.
type Linker interface {
	IsLinked(channel thing.ChannelUID) bool
}

// StatusSource remembers the last status published for each thing.
type StatusSource interface {
	LastStatus(uid thing.UID) (thing.StatusInfo, bool, error)
}

type Runtime struct {
	scheduler scheduler.Scheduler
	factories []thing.Factory

	mu       sync.RWMutex
	sinks    []Sink
	linkers  []Linker
	things   []thing.Thing
	handlers map[thing.UID]thing.Handler
	children map[thing.UID][]thing.UID
	statuses map[thing.UID]thing.StatusInfo
	states   map[thing.ChannelUID]thing.State
}

func New(sched scheduler.Scheduler, factories ...thing.Factory) *Runtime {
	return &Runtime{
		scheduler: sched,
		factories: factories,
		handlers:  make(map[thing.UID]thing.Handler),
		children:  make(map[thing.UID][]thing.UID),
		statuses:  make(map[thing.UID]thing.StatusInfo),
		states:    make(map[thing.ChannelUID]thing.State),
	}
}

func (r *Runtime) AddSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

func (r *Runtime) AddLinker(linker Linker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linkers = append(r.linkers, linker)
}

func (r *Runtime) factory(thingType thing.TypeUID) thing.Factory {
	for _, f := range r.factories {
		if f.Supports(thingType) {
			return f
		}
	}
	return nil
}

// Load creates a handler for every thing. Things without a bridge are
// created first so that children get their bridge handler injected.
func (r *Runtime) Load(things []thing.Thing) error {
	ordered := make([]thing.Thing, 0, len(things))
	for _, t := range things {
		if !t.IsBridged() {
			ordered = append(ordered, t)
		}
	}
	for _, t := range things {
		if t.IsBridged() {
			ordered = append(ordered, t)
		}
	}

	for _, t := range ordered {
		r.mu.RLock()
		_, exists := r.handlers[t.UID]
		bridge := r.handlers[t.Bridge]
		r.mu.RUnlock()
		if exists {
			return fmt.Errorf("thing %s is configured twice", t.UID)
		}
		f := r.factory(t.Type)
		if f == nil {
			log.Error().Str("thing", string(t.UID)).Str("type", string(t.Type)).Msg("No binding supports thing type")
			r.StatusUpdated(t.UID, thing.Offline(thing.DetailHandlerMissing, "Unsupported thing type"))
			continue
		}
		if t.IsBridged() && bridge == nil {
			log.Warn().Str("thing", string(t.UID)).Str("bridge", string(t.Bridge)).Msg("Bridge is not configured")
		}
		handler, err := f.Create(t, bridge, r)
		if err != nil {
			return fmt.Errorf("unable to create handler for %s: %w", t.UID, err)
		}
		r.mu.Lock()
		r.things = append(r.things, t)
		r.handlers[t.UID] = handler
		if t.IsBridged() {
			r.children[t.Bridge] = append(r.children[t.Bridge], t.UID)
		}
		r.mu.Unlock()
	}
	return nil
}

// Restore seeds the loaded things with the statuses saved before the last
// shutdown. Statuses already published are kept and the sinks are not called.
func (r *Runtime) Restore(source StatusSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.things {
		if _, seen := r.statuses[t.UID]; seen {
			continue
		}
		info, ok, err := source.LastStatus(t.UID)
		if err != nil {
			log.Warn().Err(err).Str("thing", string(t.UID)).Msg("Unable to restore thing status")
			continue
		}
		if !ok {
			continue
		}
		r.statuses[t.UID] = info
		metrics.ReportThingStatus(string(t.UID), string(info.Detail), info.Status.Numeric())
		log.Debug().Str("thing", string(t.UID)).Str("status", string(info.Status)).Msg("Restored thing status")
	}
}

// Start initializes bridges before their children.
func (r *Runtime) Start() {
	for _, h := range r.ordered() {
		log.Debug().Str("thing", string(h.Thing().UID)).Msg("Initializing thing")
		h.Initialize()
	}
}

func (r *Runtime) ordered() []thing.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := make([]thing.Handler, 0, len(r.things))
	for _, t := range r.things {
		handlers = append(handlers, r.handlers[t.UID])
	}
	return handlers
}

// Stop disposes every bridge together with its children, children first.
// Bridges are stopped concurrently.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.RLock()
	groups := make([][]thing.Handler, 0)
	for _, t := range r.things {
		if t.IsBridged() && r.handlers[t.Bridge] != nil {
			continue
		}
		group := make([]thing.Handler, 0, len(r.children[t.UID])+1)
		for _, child := range r.children[t.UID] {
			group = append(group, r.handlers[child])
		}
		groups = append(groups, append(group, r.handlers[t.UID]))
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, h := range group {
				h.Dispose()
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) Handler(uid thing.UID) (thing.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[uid]
	return h, ok
}

func (r *Runtime) Things() []thing.Thing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]thing.Thing(nil), r.things...)
}

// HandleCommand hands a command to the owning handler on the scheduler, so
// callers never wait on a vendor.
func (r *Runtime) HandleCommand(channel thing.ChannelUID, command thing.Command) error {
	handler, ok := r.Handler(channel.Thing)
	if !ok {
		return fmt.Errorf("no thing %s", channel.Thing)
	}
	log.Info().Str("channel", channel.String()).Str("command", command.String()).Msg("Dispatching command")
	metrics.ReportCommand(string(channel.Thing), channel.ID)
	r.scheduler.Schedule(func() {
		handler.HandleCommand(channel, command)
	}, 0)
	return nil
}

func (r *Runtime) Status(uid thing.UID) (thing.StatusInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.statuses[uid]
	return info, ok
}

func (r *Runtime) State(channel thing.ChannelUID) (thing.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[channel]
	return state, ok
}

func (r *Runtime) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	r.mu.Lock()
	r.statuses[uid] = info
	sinks := append([]Sink(nil), r.sinks...)
	listeners := make([]thing.BridgeListener, 0, len(r.children[uid]))
	for _, child := range r.children[uid] {
		if l, ok := r.handlers[child].(thing.BridgeListener); ok {
			listeners = append(listeners, l)
		}
	}
	r.mu.Unlock()

	log.Info().
		Str("thing", string(uid)).
		Str("status", string(info.Status)).
		Str("detail", string(info.Detail)).
		Str("description", info.Description).
		Msg("Thing status changed")
	metrics.ReportThingStatus(string(uid), string(info.Detail), info.Status.Numeric())
	for _, s := range sinks {
		s.StatusUpdated(uid, info)
	}
	for _, l := range listeners {
		l.BridgeStatusChanged(info)
	}
}

func (r *Runtime) StateUpdated(channel thing.ChannelUID, state thing.State) {
	r.mu.Lock()
	r.states[channel] = state
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.Unlock()

	log.Debug().Str("channel", channel.String()).Str("state", state.String()).Msg("Channel state updated")
	if value, ok := thing.Numeric(state); ok {
		metrics.ReportChannelState(string(channel.Thing), channel.ID, value)
	}
	for _, s := range sinks {
		s.StateUpdated(channel, state)
	}
}

func (r *Runtime) IsLinked(channel thing.ChannelUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.linkers {
		if !l.IsLinked(channel) {
			return false
		}
	}
	return true
}
