package mqtt

// SensorJSON is a Home Assistant MQTT discovery payload for one channel.
type SensorJSON struct {
	UniqueId             string       `json:"unique_id"`
	Name                 string       `json:"name"`
	StateTopic           string       `json:"state_topic"`
	StateClass           string       `json:"state_class"`
	DeviceClass          string       `json:"device_class,omitempty"`
	ValueTemplate        string       `json:"value_template"`
	UnitOfMeasurement    string       `json:"unit_of_measurement,omitempty"`
	AvailabilityTopic    string       `json:"availability_topic"`
	AvailabilityTemplate string       `json:"availability_template"`
	Device               SensorDevice `json:"device"`
}

type SensorDevice struct {
	Manufacturer string   `json:"manufacturer"`
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
}

const availabilityTemplate = "{{ 'online' if value_json.status == 'ONLINE' else 'offline' }}"

// deviceClasses maps channel units onto Home Assistant device classes.
var deviceClasses = map[string]string{
	"°C": "temperature",
	"km": "distance",
	"%":  "battery",
	"s":  "duration",
	"d":  "duration",
}
