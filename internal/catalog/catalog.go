// Package catalog maps (distro, release, arch) triples to the bootstrap
// tool, mirror URL, and suite name used by provisioning.
package catalog

import (
	"strings"

	"evalgo.org/nspawnium/internal/errdefs"
)

// Source is a resolved bootstrap origin for one container.
type Source struct {
	Distro string
	Suite  string
	Arch   string
	Mirror string
	Tool   string
}

const debootstrap = "debootstrap"

// ubuntuSuites maps Ubuntu version numbers to release codenames. Codenames
// given directly pass through unchanged.
var ubuntuSuites = map[string]string{
	"24.04": "noble",
	"22.04": "jammy",
	"20.04": "focal",
}

// NormalizeArch folds the kernel and Debian spellings of an architecture
// into the Debian form. Unknown values pass through as-is.
func NormalizeArch(arch string) string {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "x86_64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	default:
		return strings.TrimSpace(arch)
	}
}

// Resolve parses a "distro:release" selector and the host architecture into
// a bootstrap source. Distros outside the Debian family are rejected here so
// provisioning fails before any directory is created.
func Resolve(selector, hostArch string) (*Source, error) {
	distro, release, ok := strings.Cut(strings.ToLower(strings.TrimSpace(selector)), ":")
	if !ok || release == "" {
		return nil, errdefs.Newf(errdefs.KindUnsupported, "malformed distro selector %q", selector)
	}

	arch := NormalizeArch(hostArch)

	switch distro {
	case "debian":
		return &Source{
			Distro: distro,
			Suite:  release,
			Arch:   arch,
			Mirror: "http://deb.debian.org/debian",
			Tool:   debootstrap,
		}, nil
	case "ubuntu":
		suite := release
		if mapped, ok := ubuntuSuites[release]; ok {
			suite = mapped
		}
		mirror := "http://archive.ubuntu.com/ubuntu"
		if arch == "arm64" {
			mirror = "http://ports.ubuntu.com/ubuntu-ports"
		}
		return &Source{
			Distro: distro,
			Suite:  suite,
			Arch:   arch,
			Mirror: mirror,
			Tool:   debootstrap,
		}, nil
	default:
		return nil, errdefs.Newf(errdefs.KindUnsupported, "unsupported distribution %q", distro)
	}
}
