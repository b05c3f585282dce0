package verisure

import (
	"slices"

	"github.com/guregu/null"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

// Kind names a device type the way the thing type does, after "verisure:".
type Kind string

const (
	KindAlarm         Kind = "alarm"
	KindSmartLock     Kind = "smartLock"
	KindSmartPlug     Kind = "smartPlug"
	KindClimateSensor Kind = "climateSensor"
	KindDoorWindow    Kind = "doorWindow"
	KindUserPresence  Kind = "userPresence"
)

// Device is one of Alarm, SmartLock, SmartPlug, ClimateSensor, DoorWindow
// or UserPresence.
type Device interface {
	DeviceID() string
	Kind() Kind
	Equal(other Device) bool
	isDevice()
}

// Alarm is the arm state of the installation.
type Alarm struct {
	ID        string
	Status    string
	Label     string
	Date      string
	ChangedBy string
	Location  string
}

func (a Alarm) DeviceID() string { return a.ID }
func (a Alarm) Kind() Kind       { return KindAlarm }
func (Alarm) isDevice()          {}

func (a Alarm) Equal(other Device) bool {
	o, ok := other.(Alarm)
	return ok && a == o
}

// NumericStatus maps the arm state to 0 (disarmed), 1 (armed home) or 2 (armed away).
func (a Alarm) NumericStatus() (int, bool) {
	switch a.Status {
	case "unarmed":
		return 0, true
	case "armedhome":
		return 1, true
	case "armed":
		return 2, true
	}
	return 0, false
}

type SmartLock struct {
	ID                 string
	Status             string
	Label              string
	Date               string
	ChangedBy          string
	Location           string
	AutoRelock         bool
	Volume             string
	VoiceLevel         string
	VolumeSettings     []string
	VoiceLevelSettings []string
}

func (l SmartLock) DeviceID() string { return l.ID }
func (l SmartLock) Kind() Kind       { return KindSmartLock }
func (SmartLock) isDevice()          {}

func (l SmartLock) Equal(other Device) bool {
	o, ok := other.(SmartLock)
	if !ok {
		return false
	}
	return l.ID == o.ID &&
		l.Status == o.Status &&
		l.Label == o.Label &&
		l.Date == o.Date &&
		l.ChangedBy == o.ChangedBy &&
		l.Location == o.Location &&
		l.AutoRelock == o.AutoRelock &&
		l.Volume == o.Volume &&
		l.VoiceLevel == o.VoiceLevel &&
		slices.Equal(l.VolumeSettings, o.VolumeSettings) &&
		slices.Equal(l.VoiceLevelSettings, o.VoiceLevelSettings)
}

// Locked reports the lock state; known is false for any other status.
func (l SmartLock) Locked() (locked, known bool) {
	switch l.Status {
	case "locked":
		return true, true
	case "unlocked":
		return false, true
	}
	return false, false
}

type SmartPlug struct {
	ID       string
	Location string
	Status   string
}

func (p SmartPlug) DeviceID() string { return p.ID }
func (p SmartPlug) Kind() Kind       { return KindSmartPlug }
func (SmartPlug) isDevice()          {}

func (p SmartPlug) Equal(other Device) bool {
	o, ok := other.(SmartPlug)
	return ok && p == o
}

func (p SmartPlug) On() (on, known bool) {
	switch p.Status {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}

// ClimateSensor readings compare by value; a missing reading is not valid.
type ClimateSensor struct {
	ID          string
	Location    string
	Temperature null.Float
	Humidity    null.Float
	Timestamp   string
}

func (c ClimateSensor) DeviceID() string { return c.ID }
func (c ClimateSensor) Kind() Kind       { return KindClimateSensor }
func (ClimateSensor) isDevice()          {}

func (c ClimateSensor) Equal(other Device) bool {
	o, ok := other.(ClimateSensor)
	if !ok {
		return false
	}
	return c.ID == o.ID &&
		c.Location == o.Location &&
		c.Timestamp == o.Timestamp &&
		binding.FloatEqual(c.Temperature, o.Temperature) &&
		binding.FloatEqual(c.Humidity, o.Humidity)
}

type DoorWindow struct {
	ID       string
	Location string
	State    string
}

func (d DoorWindow) DeviceID() string { return d.ID }
func (d DoorWindow) Kind() Kind       { return KindDoorWindow }
func (DoorWindow) isDevice()          {}

func (d DoorWindow) Equal(other Device) bool {
	o, ok := other.(DoorWindow)
	return ok && d == o
}

func (d DoorWindow) Open() (open, known bool) {
	switch d.State {
	case "OPEN":
		return true, true
	case "CLOSE", "CLOSED":
		return false, true
	}
	return false, false
}

type UserPresence struct {
	ID       string
	Name     string
	Status   string
	Location string
}

func (u UserPresence) DeviceID() string { return u.ID }
func (u UserPresence) Kind() Kind       { return KindUserPresence }
func (UserPresence) isDevice()          {}

func (u UserPresence) Equal(other Device) bool {
	o, ok := other.(UserPresence)
	return ok && u == o
}

// Wire shapes of the polled pages.

type remoteControlJSON struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Label    string `json:"label"`
	Date     string `json:"date"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type smartLockSettingsJSON struct {
	DeviceLabel        string   `json:"deviceLabel"`
	AutoRelockEnabled  bool     `json:"autoRelockEnabled"`
	Volume             string   `json:"volume"`
	VoiceLevel         string   `json:"voiceLevel"`
	VolumeSettings     []string `json:"volumeSettings"`
	VoiceLevelSettings []string `json:"voiceLevelSettings"`
}

type smartPlugJSON struct {
	DeviceLabel string `json:"deviceLabel"`
	Location    string `json:"location"`
	Status      string `json:"status"`
}

type climateJSON struct {
	DeviceLabel string     `json:"deviceLabel"`
	Location    string     `json:"location"`
	Temperature null.Float `json:"temperature"`
	Humidity    null.Float `json:"humidity"`
	Timestamp   string     `json:"timestamp"`
}

type doorWindowJSON struct {
	DeviceLabel string `json:"deviceLabel"`
	Area        string `json:"area"`
	State       string `json:"state"`
}

type userPresenceJSON struct {
	WebAccount          string `json:"webAccount"`
	Name                string `json:"name"`
	UserLocationStatus  string `json:"userLocationStatus"`
	CurrentLocationName string `json:"currentLocationName"`
}
