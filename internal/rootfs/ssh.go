package rootfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"evalgo.org/nspawnium/internal/invoker"
)

const installSSHScript = `#!/bin/sh
set -e
export DEBIAN_FRONTEND=noninteractive
apt-get update -qq
apt-get install -y -qq openssh-server
systemctl enable ssh
if ! grep -q '^PermitRootLogin yes' /etc/ssh/sshd_config; then
    echo 'PermitRootLogin yes' >> /etc/ssh/sshd_config
fi
if ! grep -q '^PasswordAuthentication yes' /etc/ssh/sshd_config; then
    echo 'PasswordAuthentication yes' >> /etc/ssh/sshd_config
fi
`

// InstallSSH installs and enables the guest SSH server. The installer script
// is staged under the rootfs tmp directory and executed through the
// namespace container tool without registering a machine, with the host
// resolv.conf bind-mounted so package downloads resolve.
func (m *Mutator) InstallSSH(ctx context.Context, stage, root string) error {
	return m.runGuestScript(ctx, stage, root, "install_ssh.sh", installSSHScript)
}

func (m *Mutator) runGuestScript(ctx context.Context, stage, root, name, script string) error {
	hostPath := filepath.Join(root, "tmp", name)
	if err := writeFile(hostPath, []byte(script), 0o755); err != nil {
		return err
	}
	defer os.Remove(hostPath)

	res, err := m.inv.Run(ctx, invoker.Request{
		Stage: stage,
		Argv: []string{
			"systemd-nspawn",
			"--quiet",
			"--register=no",
			"-D", root,
			"--bind-ro=/etc/resolv.conf:/etc/resolv.conf",
			"/tmp/" + name,
		},
		Timeout: invoker.TimeoutPackageInstall,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", name, res.ExitCode, tail(res.Stderr, 400))
	}
	return nil
}

// tail returns the last n bytes of s, for compact error messages.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
