package rootfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"evalgo.org/nspawnium/models"
)

// UnitPath returns the host-side config file path for a container.
func UnitPath(unitsDir, name string) string {
	return filepath.Join(unitsDir, name+".nspawn")
}

// WriteHostUnit writes the per-container host unit file declaring bridge
// attachment, the minimal capability set, and resource caps. The disk quota
// directive is best effort and only enforced on filesystems that support it.
func (m *Mutator) WriteHostUnit(unitsDir, name, bridge string, spec *models.ContainerSpec) error {
	var b strings.Builder
	b.WriteString("[Exec]\n")
	b.WriteString("Boot=yes\n")
	b.WriteString("PrivateUsers=yes\n")
	b.WriteString("Capability=CAP_NET_ADMIN\n")
	fmt.Fprintf(&b, "CPUQuota=%d%%\n", spec.CPUQuotaPercent)
	fmt.Fprintf(&b, "MemoryMax=%dM\n", spec.MemoryMB)
	if spec.DiskGB > 0 {
		fmt.Fprintf(&b, "DiskQuota=%dG\n", spec.DiskGB)
	}
	b.WriteString("\n[Network]\n")
	b.WriteString("VirtualEthernet=yes\n")
	fmt.Fprintf(&b, "Bridge=%s\n", bridge)
	b.WriteString("\n[Files]\n")
	b.WriteString("Bind=/dev/net/tun\n")

	return writeFile(UnitPath(unitsDir, name), []byte(b.String()), 0o644)
}

// RemoveHostUnit deletes the unit file if present.
func (m *Mutator) RemoveHostUnit(unitsDir, name string) error {
	err := os.Remove(UnitPath(unitsDir, name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
