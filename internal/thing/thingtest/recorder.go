// Package thingtest provides a recording thing.Callback for handler tests.
package thingtest

import (
	"sync"

	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type StateUpdate struct {
	Channel thing.ChannelUID
	State   thing.State
}

type StatusUpdate struct {
	Thing thing.UID
	Info  thing.StatusInfo
}

// Recorder remembers every status and state it is handed. All channels are
// linked unless Unlinked says otherwise.
type Recorder struct {
	mu       sync.Mutex
	States   []StateUpdate
	Statuses []StatusUpdate
	Unlinked map[string]bool
}

func NewRecorder() *Recorder {
	return &Recorder{Unlinked: map[string]bool{}}
}

func (r *Recorder) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Statuses = append(r.Statuses, StatusUpdate{Thing: uid, Info: info})
}

func (r *Recorder) StateUpdated(channel thing.ChannelUID, state thing.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, StateUpdate{Channel: channel, State: state})
}

func (r *Recorder) IsLinked(channel thing.ChannelUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.Unlinked[channel.ID]
}

// LastStatus is the most recent status recorded for uid.
func (r *Recorder) LastStatus(uid thing.UID) (thing.StatusInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Statuses) - 1; i >= 0; i-- {
		if r.Statuses[i].Thing == uid {
			return r.Statuses[i].Info, true
		}
	}
	return thing.StatusInfo{}, false
}

// State is the most recent state recorded for a channel id of uid.
func (r *Recorder) State(uid thing.UID, channelID string) (thing.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.States) - 1; i >= 0; i-- {
		if r.States[i].Channel.Thing == uid && r.States[i].Channel.ID == channelID {
			return r.States[i].State, true
		}
	}
	return nil, false
}

// ChannelsUpdated lists the channel ids updated since mark, in order.
func (r *Recorder) ChannelsUpdated(mark int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []string{}
	for _, update := range r.States[mark:] {
		ids = append(ids, update.Channel.ID)
	}
	return ids
}

// Mark is the current position in the state log.
func (r *Recorder) Mark() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.States)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = nil
	r.Statuses = nil
}
