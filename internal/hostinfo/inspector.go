// Package hostinfo answers read-only questions about the host the daemon
// runs on: architecture, CPU and memory, disk headroom for the machines
// directory, bridge state, and uptime.
package hostinfo

import (
	"context"
	"time"

	units "github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/catalog"
	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/models"
)

// Inspector collects host facts. It holds no state besides its targets and
// is safe for concurrent use.
type Inspector struct {
	machinesDir string
	bridge      string
	log         *logrus.Entry
}

func New(machinesDir, bridge string, log *logrus.Logger) *Inspector {
	return &Inspector{
		machinesDir: machinesDir,
		bridge:      bridge,
		log:         log.WithField("component", "hostinfo"),
	}
}

// Arch returns the normalized host architecture.
func (i *Inspector) Arch() (string, error) {
	info, err := host.Info()
	if err != nil {
		return "", errdefs.Wrap(errdefs.KindHostError, "", err, "query host info")
	}
	return catalog.NormalizeArch(info.KernelArch), nil
}

// Bridge reports presence and the first subnet of the configured bridge.
func (i *Inspector) Bridge(ctx context.Context) models.BridgeInfo {
	info := models.BridgeInfo{Name: i.bridge}
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		i.log.WithError(err).Warn("cannot list interfaces")
		return info
	}
	for _, iface := range ifaces {
		if iface.Name != i.bridge {
			continue
		}
		info.Present = true
		if len(iface.Addrs) > 0 {
			info.Subnet = iface.Addrs[0].Addr
		}
		break
	}
	return info
}

// Report assembles the full host snapshot.
func (i *Inspector) Report(ctx context.Context) (*models.HostInfo, error) {
	arch, err := i.Arch()
	if err != nil {
		return nil, err
	}
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindHostError, "", err, "query cpu count")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindHostError, "", err, "query memory")
	}
	du, err := disk.UsageWithContext(ctx, i.machinesDir)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindHostError, "", err, "query disk usage")
	}
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindHostError, "", err, "query uptime")
	}

	return &models.HostInfo{
		Arch:            arch,
		CPUCount:        counts,
		MemoryTotal:     vm.Total,
		MemoryAvailable: vm.Available,
		MemoryHuman:     units.BytesSize(float64(vm.Total)),
		DiskTotal:       du.Total,
		DiskAvailable:   du.Free,
		DiskHuman:       units.BytesSize(float64(du.Total)),
		Bridge:          i.Bridge(ctx),
		UptimeSeconds:   uptime,
		Uptime:          units.HumanDuration(time.Duration(uptime) * time.Second),
	}, nil
}
