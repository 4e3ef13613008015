package rootfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestConfigureDNSWritesResolvers(t *testing.T) {
	root := t.TempDir()
	m := testMutator()

	require.NoError(t, m.ConfigureDNS(root))

	data, err := os.ReadFile(filepath.Join(root, "etc", "resolv.conf"))
	require.NoError(t, err)
	assert.Equal(t, "nameserver 8.8.8.8\nnameserver 1.1.1.1\n", string(data))
}

func TestConfigureDNSReplacesSymlink(t *testing.T) {
	root := t.TempDir()
	etc := filepath.Join(root, "etc")
	require.NoError(t, os.MkdirAll(etc, 0o755))
	require.NoError(t, os.Symlink("../run/systemd/resolve/stub-resolv.conf", filepath.Join(etc, "resolv.conf")))

	m := testMutator()
	require.NoError(t, m.ConfigureDNS(root))

	fi, err := os.Lstat(filepath.Join(etc, "resolv.conf"))
	require.NoError(t, err)
	assert.True(t, fi.Mode().IsRegular(), "resolv.conf should be a regular file after configure")
}

func TestConfigureNetworkUnit(t *testing.T) {
	tests := []struct {
		name       string
		ipv6       models.IPv6Mode
		wantAccept string
	}{
		{"native accepts RA", models.IPv6Native, "IPv6AcceptRA=yes"},
		{"wireguard accepts RA", models.IPv6WireGuard, "IPv6AcceptRA=yes"},
		{"disabled rejects RA", models.IPv6Disabled, "IPv6AcceptRA=no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			m := testMutator()

			require.NoError(t, m.ConfigureNetwork(root, tt.ipv6))

			data, err := os.ReadFile(filepath.Join(root, networkUnitPath))
			require.NoError(t, err)
			assert.Contains(t, string(data), "Name=host0")
			assert.Contains(t, string(data), "DHCP=yes")
			assert.Contains(t, string(data), tt.wantAccept)

			link := filepath.Join(root, "etc", "systemd", "system", "multi-user.target.wants", "systemd-networkd.service")
			target, err := os.Readlink(link)
			require.NoError(t, err)
			assert.Equal(t, "/lib/systemd/system/systemd-networkd.service", target)
		})
	}
}

func TestWriteHostUnit(t *testing.T) {
	unitsDir := t.TempDir()
	m := testMutator()

	spec := &models.ContainerSpec{
		Name:            "web1",
		CPUQuotaPercent: 200,
		MemoryMB:        1024,
		DiskGB:          20,
	}
	require.NoError(t, m.WriteHostUnit(unitsDir, "web1", "br0", spec))

	data, err := os.ReadFile(UnitPath(unitsDir, "web1"))
	require.NoError(t, err)
	unit := string(data)
	assert.Contains(t, unit, "Boot=yes")
	assert.Contains(t, unit, "PrivateUsers=yes")
	assert.Contains(t, unit, "Capability=CAP_NET_ADMIN")
	assert.Contains(t, unit, "CPUQuota=200%")
	assert.Contains(t, unit, "MemoryMax=1024M")
	assert.Contains(t, unit, "DiskQuota=20G")
	assert.Contains(t, unit, "VirtualEthernet=yes")
	assert.Contains(t, unit, "Bridge=br0")
	assert.Contains(t, unit, "Bind=/dev/net/tun")
}

func TestRemoveHostUnitMissingIsFine(t *testing.T) {
	m := testMutator()
	assert.NoError(t, m.RemoveHostUnit(t.TempDir(), "ghost"))
}

func TestInstallSSHRunsGuestScript(t *testing.T) {
	root := t.TempDir()
	fake := invoker.NewFake()
	m := NewMutator(fake, testLogger())

	require.NoError(t, m.InstallSSH(context.Background(), "install_ssh", root))

	calls := fake.CallsMatching("systemd-nspawn")
	require.Len(t, calls, 1)
	argv := calls[0].Argv
	assert.Contains(t, argv, "--register=no")
	assert.Contains(t, argv, "-D")
	assert.Contains(t, argv, root)
	assert.Contains(t, argv, "/tmp/install_ssh.sh")
	assert.Equal(t, invoker.TimeoutPackageInstall, calls[0].Timeout)

	// The staged script is removed afterwards.
	_, err := os.Stat(filepath.Join(root, "tmp", "install_ssh.sh"))
	assert.True(t, os.IsNotExist(err))
}

func TestInstallSSHPropagatesScriptFailure(t *testing.T) {
	root := t.TempDir()
	fake := invoker.NewFake().FailCommand("systemd-nspawn", 100, "apt-get update failed")
	m := NewMutator(fake, testLogger())

	err := m.InstallSSH(context.Background(), "install_ssh", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 100")
}

func TestConfigureWireGuardWritesProtectedConfig(t *testing.T) {
	root := t.TempDir()
	fake := invoker.NewFake()
	m := NewMutator(fake, testLogger())

	config := "[Interface]\nPrivateKey = abc123abc123\nAddress = fd00::2/64\n"
	require.NoError(t, m.ConfigureWireGuard(context.Background(), "configure_wireguard", root, config))

	path := filepath.Join(root, "etc", "wireguard", "wg0.conf")
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config, string(data))

	require.Len(t, fake.CallsMatching("systemd-nspawn"), 1)
}
