package models

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IPv6Mode selects how a container gets IPv6 connectivity.
type IPv6Mode string

const (
	// IPv6Disabled turns IPv6 off inside the container.
	IPv6Disabled IPv6Mode = "disabled"

	// IPv6Native accepts router advertisements on the bridge.
	IPv6Native IPv6Mode = "native"

	// IPv6SixInFour tunnels IPv6 over an existing 6in4 endpoint on the host.
	IPv6SixInFour IPv6Mode = "sixin4"

	// IPv6WireGuard runs a WireGuard tunnel inside the guest.
	IPv6WireGuard IPv6Mode = "wireguard"
)

// ContainerSpec is the immutable input to container provisioning.
// Validation happens once at submission; after that the spec is only read.
type ContainerSpec struct {
	// Name is the container identifier, also used as the machine name
	// and the rootfs directory name.
	Name string `json:"name" validate:"required,container_name"`

	// Distro selects the distribution and release, e.g. "debian:bookworm"
	// or "ubuntu:22.04".
	Distro string `json:"distro" validate:"required"`

	// RootPassword is written to the guest shadow file exactly once and
	// never stored or logged.
	RootPassword string `json:"root_password" validate:"required,min=8"`

	// CPUQuotaPercent caps CPU time, 100 meaning one full core.
	CPUQuotaPercent int `json:"cpu_quota_percent" validate:"required,min=25,max=400"`

	// MemoryMB caps container memory in megabytes.
	MemoryMB int `json:"memory_mb" validate:"required,min=256,max=8192"`

	// DiskGB caps rootfs size in gigabytes. Enforcement depends on the
	// filesystem backing the machines directory.
	DiskGB int `json:"disk_gb" validate:"required,min=5,max=100"`

	// EnableSSH installs and enables an SSH server inside the guest.
	EnableSSH bool `json:"enable_ssh"`

	// IPv6 selects the connectivity mode.
	IPv6 IPv6Mode `json:"ipv6" validate:"required,oneof=disabled native sixin4 wireguard"`

	// WireguardConfig is the full wg0.conf content. Required when
	// IPv6 is "wireguard".
	WireguardConfig string `json:"wireguard_config,omitempty"`
}

var containerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// ValidName reports whether name is an acceptable container name: lowercase
// letters, digits and dashes, starting with a letter, at most 63 characters.
func ValidName(name string) bool {
	return containerNamePattern.MatchString(name)
}

var specValidator = newSpecValidator()

func newSpecValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("container_name", func(fl validator.FieldLevel) bool {
		return containerNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks the spec against all submission constraints.
func (s *ContainerSpec) Validate() error {
	if err := specValidator.Struct(s); err != nil {
		return err
	}
	if s.IPv6 == IPv6WireGuard && strings.TrimSpace(s.WireguardConfig) == "" {
		return &WireguardConfigError{}
	}
	return nil
}

// WireguardConfigError reports a wireguard spec without a usable config blob.
type WireguardConfigError struct{}

func (e *WireguardConfigError) Error() string {
	return "wireguard_config is required when ipv6 is wireguard"
}
