// Package availability holds the wire shapes of the availability manager
// service: message codes, IPC framing and the host data payload. The
// service itself lives elsewhere.
package availability

// ServiceName is the IPC service name of the availability manager.
const ServiceName = "availability"

// Code identifies an availability IPC message.
type Code uint32

const (
	CodeRequest             Code = 1
	CodeActiveHeartbeat     Code = 2
	CodeActiveDisabledHosts Code = 3
	CodeActiveHostData      Code = 4
	CodeActiveStatus        Code = 5
)

// HostDataResponse is the response code to a CodeActiveHostData request.
const HostDataResponse Code = 1

// HostDataFrequency is how often, in seconds, host data is exchanged.
const HostDataFrequency = 5

func (c Code) String() string {
	switch c {
	case CodeRequest:
		return "request"
	case CodeActiveHeartbeat:
		return "active_heartbeat"
	case CodeActiveDisabledHosts:
		return "active_disabled_hosts"
	case CodeActiveHostData:
		return "active_hostdata"
	case CodeActiveStatus:
		return "active_status"
	default:
		return "unknown"
	}
}

// Active agent availability of a host.
const (
	StatusUnknown     = 0
	StatusAvailable   = 1
	StatusUnavailable = 2
)

// HostData is the active agent availability of one host.
type HostData struct {
	HostID uint64 `json:"hostid"`
	Status int    `json:"active_status"`
}
