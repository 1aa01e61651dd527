package n2nmaid

import "fmt"

// Status is the externally visible connection state of the edge process.
type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for c := StatusDisconnected; c <= StatusError; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Reason codes are stable identifiers surfaced with StatusError. The
// presentation layer localizes them, so they must never carry free text.
const (
	ReasonTapBusy            = "error_tap_busy"
	ReasonTapCreateDenied    = "error_tap_create_denied"
	ReasonAddressInUse       = "error_mac_or_ip_in_use"
	ReasonPermissionDenied   = "error_permission_denied"
	ReasonSupernodeUnreached = "error_supernode_unreachable"
	ReasonAuthFailed         = "error_auth_failed"
	ReasonEdgeExited         = "error_edge_exited"
	ReasonSpawnFailed        = "error_spawn_failed"
	ReasonCapsMissing        = "error_capabilities_missing"
)

// NetworkInfo describes the virtual interface created by the edge.
type NetworkInfo struct {
	Interface string `json:"interface,omitempty"`
	IP        string `json:"ip"`
	Mask      string `json:"mask"`
	MAC       string `json:"mac"`
}

// Complete reports whether every address field is populated.
func (n NetworkInfo) Complete() bool {
	return n.IP != "" && n.Mask != "" && n.MAC != ""
}

// Heartbeat mirrors the edge's management "timestamps" row (Unix seconds).
type Heartbeat struct {
	StartTime uint64 `json:"startTime"`
	LastSuper uint64 `json:"lastSuper"`
	LastP2P   uint64 `json:"lastP2p"`
}

// StatusReport is the snapshot returned to status pollers.
type StatusReport struct {
	Status      Status       `json:"status"`
	Reason      string       `json:"error,omitempty"`
	NetworkInfo *NetworkInfo `json:"networkInfo,omitempty"`
	// Notice is the last edge line that looked like a failure but matched
	// no known marker. Debug aid only; never localized.
	Notice    string     `json:"notice,omitempty"`
	Heartbeat *Heartbeat `json:"heartbeat,omitempty"`
	Session   uint64     `json:"session"`
}
