package thing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is a channel value. The set of implementations is closed and every
// implementation is a comparable value type.
type State interface {
	fmt.Stringer
	state()
}

type OnOff bool

const (
	On  OnOff = true
	Off OnOff = false
)

func (o OnOff) String() string {
	if o {
		return "ON"
	}
	return "OFF"
}

func (OnOff) state()   {}
func (OnOff) command() {}

type OpenClosed bool

const (
	Open   OpenClosed = true
	Closed OpenClosed = false
)

func (o OpenClosed) String() string {
	if o {
		return "OPEN"
	}
	return "CLOSED"
}

func (OpenClosed) state() {}

type Decimal float64

func (d Decimal) String() string {
	return strconv.FormatFloat(float64(d), 'f', -1, 64)
}

func (Decimal) state()   {}
func (Decimal) command() {}

type Quantity struct {
	Value float64
	Unit  string
}

func (q Quantity) String() string {
	return fmt.Sprintf("%s %s", strconv.FormatFloat(q.Value, 'f', -1, 64), q.Unit)
}

func (Quantity) state() {}

type String string

func (s String) String() string {
	return string(s)
}

func (String) state()   {}
func (String) command() {}

type DateTime struct {
	Time time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

func (d DateTime) String() string {
	return d.Time.Format("2006-01-02T15:04:05.000-0700")
}

func (DateTime) state() {}

type Point struct {
	Latitude  float64
	Longitude float64
}

func (p Point) String() string {
	return fmt.Sprintf("%s,%s", strconv.FormatFloat(p.Latitude, 'f', -1, 64), strconv.FormatFloat(p.Longitude, 'f', -1, 64))
}

func (Point) state() {}

type UnDef string

const (
	Undef UnDef = "UNDEF"
	Null  UnDef = "NULL"
)

func (u UnDef) String() string {
	return string(u)
}

func (UnDef) state() {}

// Numeric returns the float value of a numeric state.
func Numeric(s State) (float64, bool) {
	switch v := s.(type) {
	case Decimal:
		return float64(v), true
	case Quantity:
		return v.Value, true
	case OnOff:
		if v {
			return 1, true
		}
		return 0, true
	case OpenClosed:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Command is what a handler receives for a channel.
type Command interface {
	fmt.Stringer
	command()
}

type RefreshType struct{}

var Refresh = RefreshType{}

func (RefreshType) String() string {
	return "REFRESH"
}

func (RefreshType) command() {}

// ParseCommand converts a textual command (as received over MQTT or from a
// HomeKit characteristic) into a Command.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	switch strings.ToUpper(trimmed) {
	case "REFRESH":
		return Refresh
	case "ON":
		return On
	case "OFF":
		return Off
	}
	if value, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Decimal(value)
	}
	return String(trimmed)
}
