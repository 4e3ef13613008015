// Package lifecycle drives every post-creation container operation through
// the host machine manager. Operations on the same container serialize
// under a per-name lock; different containers proceed independently.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/internal/rootfs"
	"evalgo.org/nspawnium/models"
)

// Stop timeouts. Graceful poweroff gets the longer budget; terminate is the
// signal-based fallback.
const (
	StopTimeout      = 30 * time.Second
	ForceStopTimeout = 10 * time.Second
)

// RecordStore persists the authored part of container records. The observed
// part is never stored; it is re-queried from the machine manager.
type RecordStore interface {
	Save(record *models.ContainerRecord) error
	Get(name string) (*models.ContainerRecord, error)
	List() ([]*models.ContainerRecord, error)
	Delete(name string) error
}

// Controller wraps the machine manager for start, stop, restart, delete,
// list, and inspect.
type Controller struct {
	inv         invoker.Invoker
	records     RecordStore
	machinesDir string
	unitsDir    string
	log         *logrus.Entry

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewController(inv invoker.Invoker, records RecordStore, machinesDir, unitsDir string, log *logrus.Logger) *Controller {
	return &Controller{
		inv:         inv,
		records:     records,
		machinesDir: machinesDir,
		unitsDir:    unitsDir,
		log:         log.WithField("component", "lifecycle"),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (c *Controller) nameLock(name string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[name]
	if !ok {
		l = &sync.Mutex{}
		c.locks[name] = l
	}
	return l
}

// RootfsDir returns the rootfs directory of a container.
func (c *Controller) RootfsDir(name string) string {
	return filepath.Join(c.machinesDir, name)
}

// Start boots the machine. Starting an already running machine succeeds.
func (c *Controller) Start(ctx context.Context, name string) error {
	l := c.nameLock(name)
	l.Lock()
	defer l.Unlock()
	return c.start(ctx, name)
}

func (c *Controller) start(ctx context.Context, name string) error {
	if c.isRunning(ctx, name) {
		return nil
	}
	res, err := c.machinectl(ctx, "start", name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errdefs.Newf(errdefs.KindStartFailed, "start %s: %s", name, stderrTail(res))
	}
	if !c.isRunning(ctx, name) {
		return errdefs.Newf(errdefs.KindStartFailed, "start %s: machine did not reach running state", name)
	}
	c.log.WithField("container", name).Info("container started")
	return nil
}

// Stop powers the machine off gracefully. Stopping a stopped machine
// succeeds.
func (c *Controller) Stop(ctx context.Context, name string) error {
	l := c.nameLock(name)
	l.Lock()
	defer l.Unlock()
	return c.stop(ctx, name)
}

func (c *Controller) stop(ctx context.Context, name string) error {
	if !c.isRunning(ctx, name) {
		return nil
	}
	res, err := c.inv.Run(ctx, invoker.Request{
		Stage:   "lifecycle",
		Argv:    []string{"machinectl", "poweroff", name},
		Timeout: StopTimeout,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errdefs.Newf(errdefs.KindStopFailed, "stop %s: %s", name, stderrTail(res))
	}
	c.log.WithField("container", name).Info("container stopped")
	return nil
}

// ForceStop kills the machine without waiting for a clean shutdown.
func (c *Controller) ForceStop(ctx context.Context, name string) error {
	l := c.nameLock(name)
	l.Lock()
	defer l.Unlock()
	res, err := c.inv.Run(ctx, invoker.Request{
		Stage:   "lifecycle",
		Argv:    []string{"machinectl", "terminate", name},
		Timeout: ForceStopTimeout,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errdefs.Newf(errdefs.KindStopFailed, "terminate %s: %s", name, stderrTail(res))
	}
	return nil
}

// Restart stops then starts the machine.
func (c *Controller) Restart(ctx context.Context, name string) error {
	l := c.nameLock(name)
	l.Lock()
	defer l.Unlock()
	if err := c.stop(ctx, name); err != nil {
		return err
	}
	return c.start(ctx, name)
}

// Delete stops the machine if needed, removes the host unit file and the
// rootfs directory, and drops the stored record. It fails with NotFound
// when the rootfs directory does not exist; otherwise it fails only when the
// rootfs directory cannot be removed.
func (c *Controller) Delete(ctx context.Context, name string) error {
	l := c.nameLock(name)
	l.Lock()
	defer l.Unlock()

	dir := c.RootfsDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errdefs.Newf(errdefs.KindNotFound, "container %q not found", name)
	}

	if err := c.stop(ctx, name); err != nil {
		c.log.WithField("container", name).WithError(err).Warn("stop before delete failed, continuing")
	}
	if err := os.Remove(rootfs.UnitPath(c.unitsDir, name)); err != nil && !os.IsNotExist(err) {
		c.log.WithField("container", name).WithError(err).Warn("cannot remove unit file")
	}

	res, err := c.inv.Run(ctx, invoker.Request{
		Stage:   "lifecycle",
		Argv:    []string{"rm", "-rf", dir},
		Timeout: invoker.TimeoutMachine,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errdefs.Newf(errdefs.KindDeleteFailed, "delete %s: %s", name, stderrTail(res))
	}
	if err := c.records.Delete(name); err != nil {
		c.log.WithField("container", name).WithError(err).Warn("cannot drop container record")
	}
	c.log.WithField("container", name).Info("container deleted")
	return nil
}

// List reconciles the on-disk machines directory, the stored records, and
// the machine manager's live list into full container records.
func (c *Controller) List(ctx context.Context) ([]*models.ContainerRecord, error) {
	entries, err := os.ReadDir(c.machinesDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, errdefs.Wrap(errdefs.KindHostError, "", err, "read machines directory")
	}
	live := c.liveMachines(ctx)

	var out []*models.ContainerRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		record, err := c.records.Get(name)
		if err != nil || record == nil {
			record = &models.ContainerRecord{Name: name}
		}
		c.fillObserved(ctx, record, live)
		out = append(out, record)
	}
	return out, nil
}

// Inspect returns one container record with fresh observed state.
func (c *Controller) Inspect(ctx context.Context, name string) (*models.ContainerRecord, error) {
	if _, err := os.Stat(c.RootfsDir(name)); os.IsNotExist(err) {
		return nil, errdefs.Newf(errdefs.KindNotFound, "container %q not found", name)
	}
	record, err := c.records.Get(name)
	if err != nil || record == nil {
		record = &models.ContainerRecord{Name: name}
	}
	c.fillObserved(ctx, record, c.liveMachines(ctx))
	return record, nil
}

// PrimaryAddress returns the first IPv4 address of a running container.
func (c *Controller) PrimaryAddress(ctx context.Context, name string) (string, error) {
	live := c.liveMachines(ctx)
	addrs, ok := live[name]
	if !ok {
		return "", errdefs.Newf(errdefs.KindNotFound, "container %q is not running", name)
	}
	for _, addr := range addrs {
		if !strings.Contains(addr, ":") {
			return addr, nil
		}
	}
	return "", errdefs.Newf(errdefs.KindNotFound, "container %q has no IPv4 address yet", name)
}

// liveMachines parses "machinectl list" into name to addresses. Only
// running machines appear there.
func (c *Controller) liveMachines(ctx context.Context) map[string][]string {
	res, err := c.machinectl(ctx, "list", "--no-legend", "--no-pager", "--max-addresses=3")
	if err != nil || res.ExitCode != 0 {
		return nil
	}
	live := make(map[string][]string)
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		var addrs []string
		if len(fields) >= 6 {
			for _, a := range strings.Split(fields[5], ",") {
				if a != "" && a != "-" {
					addrs = append(addrs, a)
				}
			}
		}
		live[name] = addrs
	}
	return live
}

func (c *Controller) fillObserved(ctx context.Context, record *models.ContainerRecord, live map[string][]string) {
	if addrs, ok := live[record.Name]; ok {
		record.Status = models.StatusRunning
		record.Addresses = addrs
		record.Uptime = c.uptime(ctx, record.Name)
	} else {
		record.Status = models.StatusStopped
	}
}

// uptime derives a human duration from the machine's start timestamp.
func (c *Controller) uptime(ctx context.Context, name string) string {
	res, err := c.machinectl(ctx, "show", name, "--property=Timestamp")
	if err != nil || res.ExitCode != 0 {
		return ""
	}
	value := strings.TrimPrefix(strings.TrimSpace(res.Stdout), "Timestamp=")
	started, err := time.Parse("Mon 2006-01-02 15:04:05 MST", value)
	if err != nil {
		return ""
	}
	return units.HumanDuration(time.Since(started))
}

func (c *Controller) isRunning(ctx context.Context, name string) bool {
	_, ok := c.liveMachines(ctx)[name]
	return ok
}

func (c *Controller) machinectl(ctx context.Context, args ...string) (*invoker.Result, error) {
	return c.inv.Run(ctx, invoker.Request{
		Stage:   "lifecycle",
		Argv:    append([]string{"machinectl"}, args...),
		Timeout: invoker.TimeoutMachine,
	})
}

func stderrTail(res *invoker.Result) string {
	s := strings.TrimSpace(res.Stderr)
	if s == "" {
		s = fmt.Sprintf("exit code %d", res.ExitCode)
	}
	if len(s) > 400 {
		s = "..." + s[len(s)-400:]
	}
	return s
}
