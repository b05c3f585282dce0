package thing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UID identifies a thing: binding:type[:bridge]:id.
type UID string

// TypeUID identifies a thing type: binding:type.
type TypeUID string

func (u UID) Segments() []string {
	return strings.Split(string(u), ":")
}

// ID is the last segment of the UID.
func (u UID) ID() string {
	segments := u.Segments()
	return segments[len(segments)-1]
}

type ChannelUID struct {
	Thing UID
	ID    string
}

func NewChannelUID(thing UID, id string) ChannelUID {
	return ChannelUID{Thing: thing, ID: id}
}

func (c ChannelUID) String() string {
	return fmt.Sprintf("%s:%s", c.Thing, c.ID)
}

// ItemName is the openHAB item name a channel is linked to by convention.
func (c ChannelUID) ItemName() string {
	uid := strings.Replace(c.String(), ":", "_", -1)
	uid = strings.Replace(uid, "-", "_", -1)
	return uid
}

// ParseChannelUID splits a full channel UID on its last separator.
func ParseChannelUID(value string) (ChannelUID, error) {
	idx := strings.LastIndex(value, ":")
	if idx <= 0 || idx == len(value)-1 {
		return ChannelUID{}, fmt.Errorf("invalid channel uid %q", value)
	}
	return ChannelUID{Thing: UID(value[:idx]), ID: value[idx+1:]}, nil
}

type Configuration map[string]interface{}

// As decodes the configuration into a plain config struct using its json tags.
func (c Configuration) As(target interface{}) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("unable to encode configuration: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unable to decode configuration: %w", err)
	}
	return nil
}

type Thing struct {
	UID           UID           `json:"UID"`
	Type          TypeUID       `json:"thingTypeUID"`
	Bridge        UID           `json:"bridgeUID,omitempty"`
	Label         string        `json:"label"`
	Configuration Configuration `json:"configuration"`
}

func (t Thing) Channel(id string) ChannelUID {
	return NewChannelUID(t.UID, id)
}

func (t Thing) IsBridged() bool {
	return t.Bridge != ""
}

// Callback is implemented by the host runtime and handed to every handler.
type Callback interface {
	StatusUpdated(uid UID, info StatusInfo)
	StateUpdated(channel ChannelUID, state State)
	IsLinked(channel ChannelUID) bool
}

// Handler is the lifecycle contract every thing and bridge handler fulfils.
// Initialize and Dispose must return quickly; vendor calls run on the
// scheduler.
type Handler interface {
	Thing() Thing
	Initialize()
	Dispose()
	HandleCommand(channel ChannelUID, command Command)
}

// BridgeListener is implemented by handlers that live under a bridge.
type BridgeListener interface {
	BridgeStatusChanged(info StatusInfo)
}

// Factory creates handlers for the thing types of one binding. The bridge
// handler is nil for bridges and for things without a bridge.
type Factory interface {
	Supports(thingType TypeUID) bool
	Create(t Thing, bridge Handler, callback Callback) (Handler, error)
}
