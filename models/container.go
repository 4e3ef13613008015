package models

import "time"

// ContainerStatus is the machine state as reported by the machine manager.
type ContainerStatus string

const (
	StatusRunning ContainerStatus = "running"
	StatusStopped ContainerStatus = "stopped"
	StatusFailed  ContainerStatus = "failed"
	StatusUnknown ContainerStatus = "unknown"
)

// ContainerRecord combines the authored part of a container (the spec it was
// created from, persisted at creation time) with the observed part (status,
// addresses, uptime) which is re-queried from the machine manager on every
// read and never persisted.
type ContainerRecord struct {
	Name            string    `json:"name" gorm:"primaryKey"`
	Distro          string    `json:"distro"`
	CPUQuotaPercent int       `json:"cpu_quota_percent"`
	MemoryMB        int       `json:"memory_mb"`
	DiskGB          int       `json:"disk_gb"`
	EnableSSH       bool      `json:"enable_ssh"`
	IPv6            IPv6Mode  `json:"ipv6"`
	CreatedAt       time.Time `json:"created_at"`

	Status    ContainerStatus `json:"status" gorm:"-"`
	Addresses []string        `json:"addresses,omitempty" gorm:"-"`
	Uptime    string          `json:"uptime,omitempty" gorm:"-"`
}

// TableName keeps the sqlite table name stable across gorm versions.
func (ContainerRecord) TableName() string {
	return "containers"
}

// RecordFromSpec builds the authored part of a record from a submitted spec.
func RecordFromSpec(spec *ContainerSpec) *ContainerRecord {
	return &ContainerRecord{
		Name:            spec.Name,
		Distro:          spec.Distro,
		CPUQuotaPercent: spec.CPUQuotaPercent,
		MemoryMB:        spec.MemoryMB,
		DiskGB:          spec.DiskGB,
		EnableSSH:       spec.EnableSSH,
		IPv6:            spec.IPv6,
		CreatedAt:       time.Now().UTC(),
		Status:          StatusUnknown,
	}
}
