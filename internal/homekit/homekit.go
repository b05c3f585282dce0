// Package homekit exposes selected channels as accessories of a HomeKit
// bridge.
package homekit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jgulick48/hc"
	"github.com/jgulick48/hc/accessory"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/models"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

const bridgeID = 1

// CommandHandler receives the commands sent from the Home app.
type CommandHandler func(channel thing.ChannelUID, command thing.Command) error

// Store hands out accessory ids that survive restarts and remembers the last
// state published on each channel.
type Store interface {
	AccessoryID(key string) (uint64, error)
	LastState(channel thing.ChannelUID) (string, time.Time, bool, error)
}

type Bridge struct {
	bridge    *accessory.Bridge
	onCommand CommandHandler

	mu          sync.Mutex
	accessories []*accessory.Accessory
	switches    map[thing.ChannelUID]*accessory.Switch
	humidity    map[thing.ChannelUID]*accessory.HumiditySensor
}

func NewBridge(name string, config models.HomeKitConfiguration, store Store, onCommand CommandHandler) (*Bridge, error) {
	b := &Bridge{
		bridge: accessory.NewBridge(accessory.Info{
			Name: name,
			ID:   bridgeID,
		}),
		onCommand: onCommand,
		switches:  make(map[thing.ChannelUID]*accessory.Switch),
		humidity:  make(map[thing.ChannelUID]*accessory.HumiditySensor),
	}
	for _, sw := range config.Switches {
		channel, id, err := resolve(sw, store)
		if err != nil {
			return nil, err
		}
		b.registerSwitch(id, channel, sw.Name)
	}
	for _, sensor := range config.HumiditySensors {
		channel, id, err := resolve(sensor, store)
		if err != nil {
			return nil, err
		}
		b.registerHumiditySensor(id, channel, sensor.Name)
	}
	b.restore(store)
	log.Info().Int("accessories", len(b.accessories)).Msg("HomeKit accessories registered")
	return b, nil
}

// restore shows the states saved before the last shutdown until the bindings
// publish fresh ones.
func (b *Bridge) restore(store Store) {
	for channel, sw := range b.switches {
		text, ok := lastState(store, channel)
		if !ok {
			continue
		}
		switch text {
		case thing.On.String():
			sw.Switch.On.SetValue(true)
		case thing.Off.String():
			sw.Switch.On.SetValue(false)
		}
	}
	for channel, sensor := range b.humidity {
		text, ok := lastState(store, channel)
		if !ok {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if level, err := strconv.ParseFloat(fields[0], 64); err == nil {
			sensor.HumiditySensor.CurrentRelativeHumidity.SetValue(level)
		}
	}
}

func lastState(store Store, channel thing.ChannelUID) (string, bool) {
	text, updated, ok, err := store.LastState(channel)
	if err != nil {
		log.Warn().Err(err).Str("channel", channel.String()).Msg("Unable to restore HomeKit state")
		return "", false
	}
	if ok {
		log.Debug().Str("channel", channel.String()).Str("state", text).Time("updated", updated).Msg("Restoring HomeKit state")
	}
	return text, ok
}

func resolve(config models.HomeKitAccessory, ids Store) (thing.ChannelUID, uint64, error) {
	channel, err := thing.ParseChannelUID(config.Channel)
	if err != nil {
		return thing.ChannelUID{}, 0, fmt.Errorf("invalid HomeKit channel %q: %w", config.Channel, err)
	}
	id, err := ids.AccessoryID(channel.String())
	if err != nil {
		return thing.ChannelUID{}, 0, err
	}
	return channel, id, nil
}

func (b *Bridge) registerSwitch(id uint64, channel thing.ChannelUID, name string) {
	ac := accessory.NewSwitch(accessory.Info{
		Name: name,
		ID:   id,
	})
	ac.Switch.On.OnValueRemoteUpdate(func(on bool) {
		b.remoteSwitch(channel, on)
	})
	b.switches[channel] = ac
	b.accessories = append(b.accessories, ac.Accessory)
}

func (b *Bridge) registerHumiditySensor(id uint64, channel thing.ChannelUID, name string) {
	ac := accessory.NewHumiditySensor(accessory.Info{
		Name: name,
		ID:   id,
	})
	ac.HumiditySensor.CurrentRelativeHumidity.SetMinValue(0)
	ac.HumiditySensor.CurrentRelativeHumidity.SetMaxValue(100)
	b.humidity[channel] = ac
	b.accessories = append(b.accessories, ac.Accessory)
}

func (b *Bridge) remoteSwitch(channel thing.ChannelUID, on bool) {
	log.Info().Str("channel", channel.String()).Bool("on", on).Msg("HomeKit switch changed")
	if err := b.onCommand(channel, thing.OnOff(on)); err != nil {
		log.Error().Err(err).Str("channel", channel.String()).Msg("Failed to forward HomeKit command")
	}
}

// StateUpdated mirrors channel states onto the matching accessories.
func (b *Bridge) StateUpdated(channel thing.ChannelUID, state thing.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sw, ok := b.switches[channel]; ok {
		if on, ok := state.(thing.OnOff); ok {
			sw.Switch.On.SetValue(bool(on))
		}
		return
	}
	if sensor, ok := b.humidity[channel]; ok {
		if level, ok := thing.Numeric(state); ok {
			sensor.HumiditySensor.CurrentRelativeHumidity.SetValue(level)
		}
	}
}

func (b *Bridge) StatusUpdated(thing.UID, thing.StatusInfo) {}

// Transport builds the IP transport serving the bridge and its accessories.
func (b *Bridge) Transport(pin, port, storagePath string) (hc.Transport, error) {
	hcConfig := hc.Config{
		Pin:         pin,
		Port:        port,
		StoragePath: storagePath,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := hc.NewIPTransport(hcConfig, b.bridge.Accessory, b.accessories...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HomeKit transport: %w", err)
	}
	return t, nil
}
