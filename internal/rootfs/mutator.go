// Package rootfs mutates a freshly bootstrapped container root filesystem
// from the host side. Nothing here boots or enters the guest; files are
// written directly under the rootfs directory, and guest package
// installation runs through the namespace container tool in unregistered
// mode.
package rootfs

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/invoker"
)

// Mutator performs all in-rootfs changes during provisioning.
type Mutator struct {
	inv invoker.Invoker
	log *logrus.Entry
}

func NewMutator(inv invoker.Invoker, log *logrus.Logger) *Mutator {
	return &Mutator{
		inv: inv,
		log: log.WithField("component", "rootfs"),
	}
}

// ConfigureDNS replaces etc/resolv.conf inside the rootfs with two public
// nameservers. A stub symlink left by the bootstrap is removed first.
func (m *Mutator) ConfigureDNS(root string) error {
	path := filepath.Join(root, "etc", "resolv.conf")
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return writeFile(path, []byte("nameserver 8.8.8.8\nnameserver 1.1.1.1\n"), 0o644)
}

// writeFile writes data creating parent directories as needed.
func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	// WriteFile does not change the mode of a pre-existing file.
	return os.Chmod(path, perm)
}
