package carnet

import (
	"github.com/guregu/null"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

// Openings holds one reading per door or window. A reading the status
// report did not carry stays invalid.
type Openings struct {
	FrontLeft  null.Bool
	FrontRight null.Bool
	RearLeft   null.Bool
	RearRight  null.Bool
}

// opening is true for anything but a closed reading.
func opening(state null.Int) null.Bool {
	if !state.Valid {
		return null.Bool{}
	}
	return null.BoolFrom(state.Int64 != doorClosed)
}

func openingsFrom(o openingsJSON) Openings {
	return Openings{
		FrontLeft:  opening(o.LeftFront),
		FrontRight: opening(o.RightFront),
		RearLeft:   opening(o.LeftBack),
		RearRight:  opening(o.RightBack),
	}
}

// lockedFrom is known only when every lock reported.
func lockedFrom(o openingsJSON) null.Bool {
	locks := []null.Int{o.LeftFront, o.RightFront, o.LeftBack, o.RightBack, o.Trunk}
	locked := true
	for _, l := range locks {
		if !l.Valid {
			return null.Bool{}
		}
		locked = locked && l.Int64 == lockLocked
	}
	return null.BoolFrom(locked)
}

// Levels are the nullable readings of a vehicle, compared by value.
type Levels struct {
	FuelLevel    null.Float
	BatteryLevel null.Float
	FuelRange    null.Float
	BatteryRange null.Float
	TotalRange   null.Float
	Mileage      null.Float
	Latitude     null.Float
	Longitude    null.Float
}

func (l Levels) equal(o Levels) bool {
	return binding.FloatEqual(l.FuelLevel, o.FuelLevel) &&
		binding.FloatEqual(l.BatteryLevel, o.BatteryLevel) &&
		binding.FloatEqual(l.FuelRange, o.FuelRange) &&
		binding.FloatEqual(l.BatteryRange, o.BatteryRange) &&
		binding.FloatEqual(l.TotalRange, o.TotalRange) &&
		binding.FloatEqual(l.Mileage, o.Mileage) &&
		binding.FloatEqual(l.Latitude, o.Latitude) &&
		binding.FloatEqual(l.Longitude, o.Longitude)
}

// Vehicle is one poll of a car on the account.
type Vehicle struct {
	VIN               string
	Name              string
	DoorsOpen         Openings
	WindowsOpen       Openings
	TrunkOpen         null.Bool
	HoodOpen          null.Bool
	Locked            null.Bool
	Levels            Levels
	ServiceInspection string
	OilInspection     string
	HeaterActive      bool
	ClimateActive     bool
	WindowHeatActive  bool
	Charging          bool
	LastConnection    string
}

func (v Vehicle) DeviceID() string {
	return v.VIN
}

func (v Vehicle) Equal(o Vehicle) bool {
	a, b := v, o
	a.Levels, b.Levels = Levels{}, Levels{}
	return a == b && v.Levels.equal(o.Levels)
}

type fullyLoadedCarsJSON struct {
	FullyLoadedVehiclesResponse struct {
		CompleteVehicles []struct {
			VIN  string `json:"vin"`
			Name string `json:"name"`
		} `json:"completeVehicles"`
	} `json:"fullyLoadedVehiclesResponse"`
}

type openingsJSON struct {
	LeftFront  null.Int `json:"left_front"`
	RightFront null.Int `json:"right_front"`
	LeftBack   null.Int `json:"left_back"`
	RightBack  null.Int `json:"right_back"`
	Trunk      null.Int `json:"trunk"`
	Hood       null.Int `json:"hood"`
}

type vsrJSON struct {
	VehicleStatusData struct {
		RequestStatus string `json:"requestStatus"`
		CarRenderData struct {
			Doors   openingsJSON `json:"doors"`
			Windows openingsJSON `json:"windows"`
		} `json:"carRenderData"`
		LockData     openingsJSON `json:"lockData"`
		FuelLevel    null.Float   `json:"fuelLevel"`
		BatteryLevel null.Float   `json:"batteryLevel"`
		FuelRange    null.Float   `json:"fuelRange"`
		BatteryRange null.Float   `json:"batteryRange"`
		TotalRange   null.Float   `json:"totalRange"`
	} `json:"vehicleStatusData"`
}

type detailsJSON struct {
	VehicleDetails struct {
		LastConnectionTimeStamp []string   `json:"lastConnectionTimeStamp"`
		DistanceCovered         null.Float `json:"distanceCovered"`
		ServiceInspectionData   string     `json:"serviceInspectionData"`
		OilInspectionData       string     `json:"oilInspectionData"`
	} `json:"vehicleDetails"`
}

type locationJSON struct {
	Position struct {
		Lat null.Float `json:"lat"`
		Lng null.Float `json:"lng"`
	} `json:"position"`
}

type emanagerJSON struct {
	EManager struct {
		RPC struct {
			Status struct {
				ClimatisationState      string `json:"climatisationState"`
				WindowHeatingStateFront string `json:"windowHeatingStateFront"`
				WindowHeatingStateRear  string `json:"windowHeatingStateRear"`
			} `json:"status"`
		} `json:"rpc"`
		RBC struct {
			Status struct {
				ChargingState string `json:"chargingState"`
			} `json:"status"`
		} `json:"rbc"`
	} `json:"EManager"`
}

type heaterJSON struct {
	RemoteAuxiliaryHeating struct {
		Status struct {
			Active bool `json:"active"`
		} `json:"status"`
	} `json:"remoteAuxiliaryHeating"`
}
