package models

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jgulick48/cloud-bindings/internal/thing"
)

type Config struct {
	BridgeName      string               `json:"bridgeName"`
	OpenHabServer   string               `json:"openHabServer"`
	PIN             string               `json:"pin"`
	Port            string               `json:"port"`
	StatsServer     string               `json:"statsServer"`
	MetricsPort     string               `json:"metricsPort"`
	LogLevel        string               `json:"logLevel"`
	LogFile         string               `json:"logFile"`
	Database        string               `json:"database"`
	ShutdownTimeout Duration             `json:"shutdownTimeout"`
	MQTT            MQTTConfiguration    `json:"mqtt"`
	HomeKit         HomeKitConfiguration `json:"homekit"`
	Things          []thing.Thing        `json:"things"`
}

// LoadConfig reads the JSON configuration, defaulting to ./config.json.
func LoadConfig(filename string) (Config, error) {
	if filename == "" {
		filename = "./config.json"
	}
	var config Config
	configFile, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(configFile, &config); err != nil {
		return config, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	if config.ShutdownTimeout.Duration == 0 {
		config.ShutdownTimeout.Duration = 30 * time.Second
	}
	return config, nil
}

type MQTTConfiguration struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ClientID        string `json:"clientId"`
	TopicPrefix     string `json:"topicPrefix"`
	Discovery       bool   `json:"discovery"`
	DiscoveryPrefix string `json:"discoveryPrefix"`
}

// HomeKitConfiguration lists the channels exposed as HomeKit accessories.
// Switches follow OnOff channels, humidity sensors follow percentages such
// as a fuel or battery level.
type HomeKitConfiguration struct {
	StoragePath     string             `json:"storagePath"`
	Switches        []HomeKitAccessory `json:"switches"`
	HumiditySensors []HomeKitAccessory `json:"humiditySensors"`
}

type HomeKitAccessory struct {
	Channel string `json:"channel"`
	Name    string `json:"name"`
}

// Duration accepts both Go duration strings ("5m") and seconds as numbers.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}
