package models

// BridgeInfo describes the host bridge containers attach to.
type BridgeInfo struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Subnet  string `json:"subnet,omitempty"`
}

// HostInfo is a read-only snapshot of the host the daemon runs on. Sizes are
// bytes; the human-readable fields are derived from them for display.
type HostInfo struct {
	Arch            string     `json:"arch"`
	CPUCount        int        `json:"cpu_count"`
	MemoryTotal     uint64     `json:"memory_total"`
	MemoryAvailable uint64     `json:"memory_available"`
	MemoryHuman     string     `json:"memory_human"`
	DiskTotal       uint64     `json:"disk_total"`
	DiskAvailable   uint64     `json:"disk_available"`
	DiskHuman       string     `json:"disk_human"`
	Bridge          BridgeInfo `json:"bridge"`
	UptimeSeconds   uint64     `json:"uptime_seconds"`
	Uptime          string     `json:"uptime"`
}
