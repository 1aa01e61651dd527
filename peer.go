package n2nmaid

// PeerInfo is one remote edge as reported by the management API.
type PeerInfo struct {
	Name       string `json:"name,omitempty"`
	VPNAddr    string `json:"vpnAddr,omitempty"` // with CIDR, e.g. 10.0.0.2/24
	VPNIP      string `json:"vpnIp,omitempty"`
	Mode       string `json:"mode,omitempty"` // p2p, pSp, ...
	PublicAddr string `json:"publicAddr,omitempty"`
	// LatencyMs is nil until a ping to VPNIP succeeded.
	LatencyMs *float64 `json:"latencyMs,omitempty"`
	LastSeen  uint64   `json:"lastSeen,omitempty"`
	LastPing  uint64   `json:"lastPing,omitempty"`
}
