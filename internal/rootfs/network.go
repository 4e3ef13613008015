package rootfs

import (
	"os"
	"path/filepath"

	"evalgo.org/nspawnium/models"
)

// networkUnitPath is where the guest networkd unit lives inside the rootfs.
const networkUnitPath = "etc/systemd/network/80-container-host0.network"

// ConfigureNetwork writes the guest-side network unit attaching host0 via
// DHCP and enables systemd-networkd so the unit is honored on first boot.
func (m *Mutator) ConfigureNetwork(root string, ipv6 models.IPv6Mode) error {
	accept := "yes"
	if ipv6 == models.IPv6Disabled {
		accept = "no"
	}
	unit := "[Match]\nName=host0\n\n[Network]\nDHCP=yes\nIPv6AcceptRA=" + accept + "\n"
	if err := writeFile(filepath.Join(root, networkUnitPath), []byte(unit), 0o644); err != nil {
		return err
	}
	return m.enableNetworkd(root)
}

// enableNetworkd creates the multi-user.target.wants symlink the guest init
// would create on "systemctl enable systemd-networkd".
func (m *Mutator) enableNetworkd(root string) error {
	wants := filepath.Join(root, "etc", "systemd", "system", "multi-user.target.wants")
	if err := os.MkdirAll(wants, 0o755); err != nil {
		return err
	}
	link := filepath.Join(wants, "systemd-networkd.service")
	err := os.Symlink("/lib/systemd/system/systemd-networkd.service", link)
	if err != nil && os.IsExist(err) {
		return nil
	}
	return err
}
