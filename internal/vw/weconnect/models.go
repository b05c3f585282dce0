package weconnect

import (
	"strconv"

	"github.com/guregu/null"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

// Openings hold one reading per door or window; a field the car did not
// report is not valid.
type Openings struct {
	FrontLeft  null.Bool
	FrontRight null.Bool
	RearLeft   null.Bool
	RearRight  null.Bool
}

// Readings are the nullable values of the stored vehicle data.
type Readings struct {
	Mileage           null.Float
	FuelLevel         null.Float
	BatteryLevel      null.Float
	FuelRange         null.Float
	BatteryRange      null.Float
	TotalRange        null.Float
	ServiceInspection null.Float
	OilInspection     null.Float
	Latitude          null.Float
	Longitude         null.Float
}

func (r Readings) equal(o Readings) bool {
	return binding.FloatEqual(r.Mileage, o.Mileage) &&
		binding.FloatEqual(r.FuelLevel, o.FuelLevel) &&
		binding.FloatEqual(r.BatteryLevel, o.BatteryLevel) &&
		binding.FloatEqual(r.FuelRange, o.FuelRange) &&
		binding.FloatEqual(r.BatteryRange, o.BatteryRange) &&
		binding.FloatEqual(r.TotalRange, o.TotalRange) &&
		binding.FloatEqual(r.ServiceInspection, o.ServiceInspection) &&
		binding.FloatEqual(r.OilInspection, o.OilInspection) &&
		binding.FloatEqual(r.Latitude, o.Latitude) &&
		binding.FloatEqual(r.Longitude, o.Longitude)
}

type Vehicle struct {
	VIN         string
	DoorsOpen   Openings
	DoorsLocked Openings
	WindowsOpen Openings
	TrunkOpen   null.Bool
	TrunkLocked null.Bool
	HoodOpen    null.Bool
	Readings    Readings
	// Climatisation is off, heating or ventilation.
	Climatisation string
}

func (v Vehicle) DeviceID() string {
	return v.VIN
}

func (v Vehicle) Equal(o Vehicle) bool {
	a, b := v, o
	a.Readings, b.Readings = Readings{}, Readings{}
	return a == b && v.Readings.equal(o.Readings)
}

// Locked is valid only when every door and the trunk reported a lock state.
func (v Vehicle) Locked() null.Bool {
	l := v.DoorsLocked
	locked := true
	for _, b := range []null.Bool{l.FrontLeft, l.FrontRight, l.RearLeft, l.RearRight, v.TrunkLocked} {
		if !b.Valid {
			return null.Bool{}
		}
		locked = locked && b.Bool
	}
	return null.BoolFrom(locked)
}

// Stored vehicle data field ids.
const (
	fieldMileage           = "0x0101010002"
	fieldOilInspection     = "0x0203010002"
	fieldServiceInspection = "0x0203010004"
	fieldBatteryLevel      = "0x0301030002"
	fieldTotalRange        = "0x0301030005"
	fieldFuelRange         = "0x0301030006"
	fieldBatteryRange      = "0x0301030008"
	fieldFuelLevel         = "0x030103000A"
	fieldLockFrontLeft     = "0x0301040001"
	fieldOpenFrontLeft     = "0x0301040002"
	fieldLockRearLeft      = "0x0301040004"
	fieldOpenRearLeft      = "0x0301040005"
	fieldLockFrontRight    = "0x0301040007"
	fieldOpenFrontRight    = "0x0301040008"
	fieldLockRearRight     = "0x030104000A"
	fieldOpenRearRight     = "0x030104000B"
	fieldLockTrunk         = "0x030104000D"
	fieldOpenTrunk         = "0x030104000E"
	fieldOpenHood          = "0x0301040011"
	fieldWindowFrontLeft   = "0x0301050001"
	fieldWindowRearLeft    = "0x0301050003"
	fieldWindowFrontRight  = "0x0301050005"
	fieldWindowRearRight   = "0x0301050007"

	stateClosed = "3"
	stateLocked = "2"
)

type field struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

type statusJSON struct {
	StoredVehicleDataResponse struct {
		VehicleData struct {
			Data []struct {
				ID    string  `json:"id"`
				Field []field `json:"field"`
			} `json:"data"`
		} `json:"vehicleData"`
	} `json:"StoredVehicleDataResponse"`
}

func number(value string) null.Float {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

func openState(value string) null.Bool {
	if value == "" {
		return null.Bool{}
	}
	return null.BoolFrom(value != stateClosed)
}

func lockState(value string) null.Bool {
	if value == "" {
		return null.Bool{}
	}
	return null.BoolFrom(value == stateLocked)
}

// fieldSetters maps a stored data field onto the vehicle.
var fieldSetters = map[string]func(v *Vehicle, value string){
	fieldMileage:           func(v *Vehicle, value string) { v.Readings.Mileage = number(value) },
	fieldOilInspection:     func(v *Vehicle, value string) { v.Readings.OilInspection = number(value) },
	fieldServiceInspection: func(v *Vehicle, value string) { v.Readings.ServiceInspection = number(value) },
	fieldBatteryLevel:      func(v *Vehicle, value string) { v.Readings.BatteryLevel = number(value) },
	fieldTotalRange:        func(v *Vehicle, value string) { v.Readings.TotalRange = number(value) },
	fieldFuelRange:         func(v *Vehicle, value string) { v.Readings.FuelRange = number(value) },
	fieldBatteryRange:      func(v *Vehicle, value string) { v.Readings.BatteryRange = number(value) },
	fieldFuelLevel:         func(v *Vehicle, value string) { v.Readings.FuelLevel = number(value) },
	fieldLockFrontLeft:     func(v *Vehicle, value string) { v.DoorsLocked.FrontLeft = lockState(value) },
	fieldOpenFrontLeft:     func(v *Vehicle, value string) { v.DoorsOpen.FrontLeft = openState(value) },
	fieldLockRearLeft:      func(v *Vehicle, value string) { v.DoorsLocked.RearLeft = lockState(value) },
	fieldOpenRearLeft:      func(v *Vehicle, value string) { v.DoorsOpen.RearLeft = openState(value) },
	fieldLockFrontRight:    func(v *Vehicle, value string) { v.DoorsLocked.FrontRight = lockState(value) },
	fieldOpenFrontRight:    func(v *Vehicle, value string) { v.DoorsOpen.FrontRight = openState(value) },
	fieldLockRearRight:     func(v *Vehicle, value string) { v.DoorsLocked.RearRight = lockState(value) },
	fieldOpenRearRight:     func(v *Vehicle, value string) { v.DoorsOpen.RearRight = openState(value) },
	fieldLockTrunk:         func(v *Vehicle, value string) { v.TrunkLocked = lockState(value) },
	fieldOpenTrunk:         func(v *Vehicle, value string) { v.TrunkOpen = openState(value) },
	fieldOpenHood:          func(v *Vehicle, value string) { v.HoodOpen = openState(value) },
	fieldWindowFrontLeft:   func(v *Vehicle, value string) { v.WindowsOpen.FrontLeft = openState(value) },
	fieldWindowRearLeft:    func(v *Vehicle, value string) { v.WindowsOpen.RearLeft = openState(value) },
	fieldWindowFrontRight:  func(v *Vehicle, value string) { v.WindowsOpen.FrontRight = openState(value) },
	fieldWindowRearRight:   func(v *Vehicle, value string) { v.WindowsOpen.RearRight = openState(value) },
}

type tokenJSON struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type vehiclesJSON struct {
	UserVehicles struct {
		Vehicle []string `json:"vehicle"`
	} `json:"userVehicles"`
}

type positionJSON struct {
	FindCarResponse struct {
		Position struct {
			CarCoordinate struct {
				Latitude  int64 `json:"latitude"`
				Longitude int64 `json:"longitude"`
			} `json:"carCoordinate"`
		} `json:"Position"`
	} `json:"findCarResponse"`
}

type climaterJSON struct {
	StatusResponse struct {
		ClimatisationStateReport struct {
			ClimatisationState string `json:"climatisationState"`
		} `json:"climatisationStateReport"`
	} `json:"statusResponse"`
}

type securityChallengeJSON struct {
	SecurityPinAuthInfo struct {
		SecurityToken           string `json:"securityToken"`
		SecurityPinTransmission struct {
			Challenge string `json:"challenge"`
		} `json:"securityPinTransmission"`
	} `json:"securityPinAuthInfo"`
}
