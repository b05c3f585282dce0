package thing

type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusInitializing  Status = "INITIALIZING"
	StatusUnknown       Status = "UNKNOWN"
	StatusOnline        Status = "ONLINE"
	StatusOffline       Status = "OFFLINE"
	StatusRemoving      Status = "REMOVING"
	StatusRemoved       Status = "REMOVED"
)

type StatusDetail string

const (
	DetailNone                 StatusDetail = "NONE"
	DetailHandlerMissing       StatusDetail = "HANDLER_MISSING_ERROR"
	DetailHandlerInitializing  StatusDetail = "HANDLER_INITIALIZING_ERROR"
	DetailConfigurationPending StatusDetail = "CONFIGURATION_PENDING"
	DetailCommunicationError   StatusDetail = "COMMUNICATION_ERROR"
	DetailConfigurationError   StatusDetail = "CONFIGURATION_ERROR"
	DetailBridgeOffline        StatusDetail = "BRIDGE_OFFLINE"
	DetailBridgeUninitialized  StatusDetail = "BRIDGE_UNINITIALIZED"
)

type StatusInfo struct {
	Status      Status       `json:"status"`
	Detail      StatusDetail `json:"statusDetail"`
	Description string       `json:"description,omitempty"`
}

func Online() StatusInfo {
	return StatusInfo{Status: StatusOnline, Detail: DetailNone}
}

func Unknown() StatusInfo {
	return StatusInfo{Status: StatusUnknown, Detail: DetailNone}
}

func Offline(detail StatusDetail, description string) StatusInfo {
	return StatusInfo{Status: StatusOffline, Detail: detail, Description: description}
}

// Numeric is the gauge value reported for a status.
func (s Status) Numeric() float64 {
	switch s {
	case StatusOnline:
		return 1
	case StatusUnknown, StatusInitializing:
		return 0.5
	default:
		return 0
	}
}
