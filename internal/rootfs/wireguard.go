package rootfs

import (
	"context"
	"path/filepath"
)

const installWireGuardScript = `#!/bin/sh
set -e
export DEBIAN_FRONTEND=noninteractive
apt-get update -qq
apt-get install -y -qq wireguard-tools
systemctl enable wg-quick@wg0
`

// ConfigureWireGuard writes the tunnel config into the guest and installs
// the WireGuard tooling. The config may contain a private key, so the file
// is written mode 0600 and the content never passes through the invoker.
func (m *Mutator) ConfigureWireGuard(ctx context.Context, stage, root, config string) error {
	path := filepath.Join(root, "etc", "wireguard", "wg0.conf")
	if err := writeFile(path, []byte(config), 0o600); err != nil {
		return err
	}
	return m.runGuestScript(ctx, stage, root, "install_wireguard.sh", installWireGuardScript)
}
