package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/models"
	"github.com/jgulick48/cloud-bindings/internal/thing"
)

const (
	defaultPrefix          = "cloud-bindings"
	defaultDiscoveryPrefix = "homeassistant"
	publishTimeout         = 5 * time.Second
)

// CommandHandler receives commands published on <prefix>/<item>/command.
type CommandHandler func(channel thing.ChannelUID, command thing.Command) error

type Client interface {
	Connect() error
	Close()
	IsEnabled() bool
	StateUpdated(channel thing.ChannelUID, state thing.State)
	StatusUpdated(uid thing.UID, info thing.StatusInfo)
}

func NewClient(config models.MQTTConfiguration, onCommand CommandHandler) Client {
	if config.TopicPrefix == "" {
		config.TopicPrefix = defaultPrefix
	}
	if config.DiscoveryPrefix == "" {
		config.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if config.ClientID == "" {
		config.ClientID = "cloud_bindings"
	}
	return &client{
		config:     config,
		onCommand:  onCommand,
		channels:   make(map[string]thing.ChannelUID),
		discovered: make(map[string]bool),
	}
}

type client struct {
	config     models.MQTTConfiguration
	onCommand  CommandHandler
	mqttClient mqtt.Client

	mu         sync.Mutex
	channels   map[string]thing.ChannelUID
	discovered map[string]bool
}

func (c *client) IsEnabled() bool {
	return c.config.Host != ""
}

func (c *client) Connect() error {
	if !c.IsEnabled() {
		return nil
	}
	broker := fmt.Sprintf("tcp://%s:%d", c.config.Host, c.config.Port)
	log.Info().Str("broker", broker).Msg("Connecting to MQTT broker")
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetAutoReconnect(true)
	if c.config.Username != "" && c.config.Password != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.OnConnect = c.connectHandler
	opts.OnConnectionLost = connectLostHandler
	c.mqttClient = mqtt.NewClient(opts)
	if token := c.mqttClient.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("error connecting to mqtt broker: %w", token.Error())
	}
	return nil
}

func (c *client) Close() {
	if c.mqttClient != nil {
		c.mqttClient.Disconnect(250)
	}
}

// connectHandler subscribes again after every reconnect.
func (c *client) connectHandler(client mqtt.Client) {
	topic := fmt.Sprintf("%s/+/command", c.config.TopicPrefix)
	token := client.Subscribe(topic, 1, c.messageHandler)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe")
		return
	}
	log.Info().Str("topic", topic).Msg("Subscribed to command topic")
}

func connectLostHandler(client mqtt.Client, err error) {
	log.Warn().Err(err).Msg("MQTT connection lost")
}

func (c *client) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	if err := c.ProcessCommand(msg.Topic(), msg.Payload()); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Ignoring MQTT command")
	}
}

// ProcessCommand resolves the item in the topic to a channel seen earlier
// and forwards the parsed payload.
func (c *client) ProcessCommand(topic string, payload []byte) error {
	segments := strings.Split(strings.TrimPrefix(topic, c.config.TopicPrefix+"/"), "/")
	if len(segments) != 2 || segments[1] != "command" {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	c.mu.Lock()
	channel, ok := c.channels[segments[0]]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown item %s", segments[0])
	}
	if c.onCommand == nil {
		return nil
	}
	return c.onCommand(channel, thing.ParseCommand(string(payload)))
}

func (c *client) StateUpdated(channel thing.ChannelUID, state thing.State) {
	if c.mqttClient == nil {
		return
	}
	item := channel.ItemName()
	c.mu.Lock()
	c.channels[item] = channel
	discover := c.config.Discovery && !c.discovered[item]
	if discover {
		c.discovered[item] = true
	}
	c.mu.Unlock()
	if discover {
		c.publishDiscovery(channel, state)
	}
	c.publish(fmt.Sprintf("%s/%s/state", c.config.TopicPrefix, item), state.String())
}

func (c *client) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	if c.mqttClient == nil {
		return
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return
	}
	c.publish(c.statusTopic(uid), string(payload))
}

func (c *client) statusTopic(uid thing.UID) string {
	return fmt.Sprintf("%s/%s/status", c.config.TopicPrefix, strings.ReplaceAll(string(uid), ":", "_"))
}

// publishDiscovery announces numeric channels as Home Assistant sensors.
func (c *client) publishDiscovery(channel thing.ChannelUID, state thing.State) {
	unit := ""
	switch s := state.(type) {
	case thing.Quantity:
		unit = s.Unit
	case thing.Decimal:
	default:
		return
	}
	item := channel.ItemName()
	sensor := SensorJSON{
		UniqueId:             item,
		Name:                 fmt.Sprintf("%s %s", channel.Thing.ID(), channel.ID),
		StateTopic:           fmt.Sprintf("%s/%s/state", c.config.TopicPrefix, item),
		StateClass:           "measurement",
		ValueTemplate:        "{{ value.split(' ')[0] }}",
		UnitOfMeasurement:    unit,
		DeviceClass:          deviceClasses[unit],
		AvailabilityTopic:    c.statusTopic(channel.Thing),
		AvailabilityTemplate: availabilityTemplate,
		Device: SensorDevice{
			Manufacturer: strings.Split(string(channel.Thing), ":")[0],
			Name:         string(channel.Thing),
			Identifiers:  []string{strings.ReplaceAll(string(channel.Thing), ":", "_")},
		},
	}
	payload, err := json.Marshal(sensor)
	if err != nil {
		return
	}
	c.publish(fmt.Sprintf("%s/sensor/%s/config", c.config.DiscoveryPrefix, item), string(payload))
}

func (c *client) publish(topic string, payload string) {
	token := c.mqttClient.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("Timed out publishing to MQTT")
		return
	}
	if token.Error() != nil {
		log.Warn().Err(token.Error()).Str("topic", topic).Msg("Failed to publish to MQTT")
	}
}
