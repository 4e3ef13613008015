package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/internal/jobs"
	"evalgo.org/nspawnium/internal/rootfs"
	"evalgo.org/nspawnium/models"
)

type fakeArch struct{ arch string }

func (f *fakeArch) Arch() (string, error) { return f.arch, nil }

type fakeStarter struct {
	started []string
	err     error
}

func (f *fakeStarter) Start(_ context.Context, name string) error {
	f.started = append(f.started, name)
	return f.err
}

type fakeRecords struct{ saved []*models.ContainerRecord }

func (f *fakeRecords) Save(r *models.ContainerRecord) error {
	f.saved = append(f.saved, r)
	return nil
}

type fakeSecrets struct{ values []string }

func (f *fakeSecrets) AddSecret(v string) { f.values = append(f.values, v) }

type harness struct {
	pipeline    *Pipeline
	fake        *invoker.Fake
	registry    *jobs.Registry
	starter     *fakeStarter
	records     *fakeRecords
	secrets     *fakeSecrets
	machinesDir string
	unitsDir    string
}

func newHarness(t *testing.T, arch string) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	h := &harness{
		fake:        invoker.NewFake(),
		registry:    jobs.NewRegistry(log),
		starter:     &fakeStarter{},
		records:     &fakeRecords{},
		secrets:     &fakeSecrets{},
		machinesDir: t.TempDir(),
		unitsDir:    t.TempDir(),
	}
	h.pipeline = New(Options{
		Invoker:     h.fake,
		Mutator:     rootfs.NewMutator(h.fake, log),
		Registry:    h.registry,
		Inspector:   &fakeArch{arch: arch},
		Starter:     h.starter,
		Records:     h.records,
		Secrets:     h.secrets,
		MachinesDir: h.machinesDir,
		UnitsDir:    h.unitsDir,
		Logger:      log,
	})
	return h
}

// scriptBootstrap makes the scripted bootstrap call materialize the minimal
// guest files the later stages edit.
func (h *harness) scriptBootstrap() {
	h.fake.On(invoker.Outcome{
		Match: invoker.MatchArgv("debootstrap"),
		Do: func(req invoker.Request) {
			dir := req.Argv[3]
			etc := filepath.Join(dir, "etc")
			_ = os.MkdirAll(etc, 0o755)
			_ = os.WriteFile(filepath.Join(etc, "passwd"), []byte("root:x:0:0:root:/root:/bin/bash\n"), 0o644)
			_ = os.WriteFile(filepath.Join(etc, "shadow"), []byte("root:*:19000:0:99999:7:::\n"), 0o640)
		},
	})
}

// scriptCleanupRemoval mirrors what rm -rf does on the real host.
func (h *harness) scriptCleanupRemoval() {
	h.fake.On(invoker.Outcome{
		Match: invoker.MatchArgv("rm -rf"),
		Do: func(req invoker.Request) {
			_ = os.RemoveAll(req.Argv[2])
		},
	})
}

func (h *harness) runSync(t *testing.T, spec *models.ContainerSpec) models.CreationJob {
	t.Helper()
	ctx, err := h.registry.Register(context.Background(), spec.Name)
	require.NoError(t, err)
	h.pipeline.Run(ctx, spec)
	job, err := h.registry.Get(spec.Name)
	require.NoError(t, err)
	return job
}

func baseSpec(name string) *models.ContainerSpec {
	return &models.ContainerSpec{
		Name:            name,
		Distro:          "debian:bookworm",
		RootPassword:    "a-long-root-password",
		CPUQuotaPercent: 100,
		MemoryMB:        1024,
		DiskGB:          10,
		IPv6:            models.IPv6Disabled,
	}
}

func TestRunHappyPathDebianAmd64(t *testing.T) {
	h := newHarness(t, "x86_64")
	h.scriptBootstrap()

	spec := baseSpec("web1")
	job := h.runSync(t, spec)

	assert.Equal(t, models.TerminalCompleted, job.TerminalStatus)
	assert.Equal(t, 100, job.Percent)
	assert.Empty(t, job.Error)

	boots := h.fake.CallsMatching("debootstrap")
	require.Len(t, boots, 1)
	dir := filepath.Join(h.machinesDir, "web1")
	assert.Equal(t, []string{"debootstrap", "--arch=amd64", "bookworm", dir, "http://deb.debian.org/debian"}, boots[0].Argv)
	assert.Equal(t, invoker.TimeoutBootstrap, boots[0].Timeout)

	// Rootfs contents written by the host-side stages.
	assert.FileExists(t, filepath.Join(dir, "etc", "resolv.conf"))
	assert.FileExists(t, filepath.Join(dir, "etc", "systemd", "network", "80-container-host0.network"))
	assert.FileExists(t, rootfs.UnitPath(h.unitsDir, "web1"))

	// No SSH or WireGuard work for this spec.
	assert.Empty(t, h.fake.CallsMatching("systemd-nspawn"))

	assert.Equal(t, []string{"web1"}, h.starter.started)
	require.Len(t, h.records.saved, 1)
	assert.Equal(t, "web1", h.records.saved[0].Name)
	assert.Contains(t, h.secrets.values, "a-long-root-password")
}

func TestRunUbuntuArm64WithSSH(t *testing.T) {
	h := newHarness(t, "aarch64")
	h.scriptBootstrap()

	spec := baseSpec("db1")
	spec.Distro = "ubuntu:22.04"
	spec.EnableSSH = true
	job := h.runSync(t, spec)

	assert.Equal(t, models.TerminalCompleted, job.TerminalStatus)

	boots := h.fake.CallsMatching("debootstrap")
	require.Len(t, boots, 1)
	assert.Equal(t, "--arch=arm64", boots[0].Argv[1])
	assert.Equal(t, "jammy", boots[0].Argv[2])
	assert.Equal(t, "http://ports.ubuntu.com/ubuntu-ports", boots[0].Argv[4])

	installs := h.fake.CallsMatching("install_ssh.sh")
	require.Len(t, installs, 1)
	assert.Equal(t, string(models.StageInstallSSH), installs[0].Stage)
}

func TestRunWireGuard(t *testing.T) {
	h := newHarness(t, "x86_64")
	h.scriptBootstrap()

	spec := baseSpec("vpn1")
	spec.IPv6 = models.IPv6WireGuard
	spec.WireguardConfig = "[Interface]\nPrivateKey = wg-private-key-material\nAddress = fd00::2/64\n"
	job := h.runSync(t, spec)

	assert.Equal(t, models.TerminalCompleted, job.TerminalStatus)

	path := filepath.Join(h.machinesDir, "vpn1", "etc", "wireguard", "wg0.conf")
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.Len(t, h.fake.CallsMatching("install_wireguard.sh"), 1)

	// Both the whole blob and the private key are registered for scrubbing.
	assert.Contains(t, h.secrets.values, spec.WireguardConfig)
	assert.Contains(t, h.secrets.values, "wg-private-key-material")
}

func TestRunNameConflictKeepsExistingDirectory(t *testing.T) {
	h := newHarness(t, "x86_64")

	dir := filepath.Join(h.machinesDir, "taken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	marker := filepath.Join(dir, "keep-me")
	require.NoError(t, os.WriteFile(marker, []byte("data"), 0o644))

	job := h.runSync(t, baseSpec("taken"))

	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Equal(t, models.StagePrepareDir, job.Stage)
	assert.Contains(t, job.Error, "prepare_dir")

	// Cleanup must not touch a directory this run did not create.
	assert.FileExists(t, marker)
	assert.Empty(t, h.starter.started)
	assert.Empty(t, h.records.saved)
}

func TestRunBootstrapFailureCleansUp(t *testing.T) {
	h := newHarness(t, "x86_64")
	h.fake.FailCommand("debootstrap", 1, "E: Failed getting release file")
	h.scriptCleanupRemoval()

	job := h.runSync(t, baseSpec("broken"))

	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Contains(t, job.Error, "bootstrap_rootfs")
	assert.Contains(t, job.Error, "Failed getting release file")

	assert.NoDirExists(t, filepath.Join(h.machinesDir, "broken"))
	assert.NoFileExists(t, rootfs.UnitPath(h.unitsDir, "broken"))
	assert.Empty(t, h.records.saved)
}

func TestRunUnsupportedDistroFailsFast(t *testing.T) {
	h := newHarness(t, "x86_64")

	spec := baseSpec("fed1")
	spec.Distro = "fedora:40"
	job := h.runSync(t, spec)

	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Equal(t, models.StageDetectArch, job.Stage)

	// Nothing was created before the fail-fast.
	assert.NoDirExists(t, filepath.Join(h.machinesDir, "fed1"))
	assert.Empty(t, h.fake.CallsMatching("debootstrap"))
}

func TestRunCancelledBeforeWork(t *testing.T) {
	h := newHarness(t, "x86_64")

	spec := baseSpec("web1")
	ctx, err := h.registry.Register(context.Background(), spec.Name)
	require.NoError(t, err)
	require.NoError(t, h.registry.Cancel(spec.Name))

	h.pipeline.Run(ctx, spec)

	job, err := h.registry.Get(spec.Name)
	require.NoError(t, err)
	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Equal(t, "cancelled", job.Error)
	assert.Empty(t, h.fake.Calls())
}

func TestRunStartFailureRemovesUnit(t *testing.T) {
	h := newHarness(t, "x86_64")
	h.scriptBootstrap()
	h.scriptCleanupRemoval()
	h.starter.err = errors.New("machinectl start failed")

	job := h.runSync(t, baseSpec("web1"))

	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Contains(t, job.Error, "start")
	assert.NoFileExists(t, rootfs.UnitPath(h.unitsDir, "web1"))
	assert.NoDirExists(t, filepath.Join(h.machinesDir, "web1"))
}

func TestRunTimeoutKeepsTimeoutKind(t *testing.T) {
	h := newHarness(t, "x86_64")
	h.fake.On(invoker.Outcome{
		Match: invoker.MatchArgv("debootstrap"),
		Err:   errdefs.Wrap(errdefs.KindTimeout, "bootstrap_rootfs", nil, "debootstrap timed out after 30m0s"),
	})
	h.scriptCleanupRemoval()

	spec := baseSpec("slow1")
	ctx, err := h.registry.Register(context.Background(), spec.Name)
	require.NoError(t, err)
	h.pipeline.Run(ctx, spec)

	job, err := h.registry.Get(spec.Name)
	require.NoError(t, err)
	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Contains(t, job.Error, "timed out")

	// The job only stores error text; the kind lives on the stage error.
	stageErr := stageError(models.StageBootstrapRootfs, errdefs.KindBootstrapFailed,
		errdefs.Wrap(errdefs.KindTimeout, "bootstrap_rootfs", nil, "debootstrap timed out after 30m0s"))
	assert.Equal(t, errdefs.KindTimeout, errdefs.KindOf(stageErr))
}

func TestLaunchRejectsInvalidSpec(t *testing.T) {
	h := newHarness(t, "x86_64")

	spec := baseSpec("bad")
	spec.RootPassword = "short"
	err := h.pipeline.Launch(context.Background(), spec)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindValidation, errdefs.KindOf(err))

	_, err = h.registry.Get("bad")
	assert.Error(t, err, "no job should be registered for a rejected spec")
}

func TestLaunchConflictsWithRunningJob(t *testing.T) {
	h := newHarness(t, "x86_64")

	_, err := h.registry.Register(context.Background(), "web1")
	require.NoError(t, err)

	err = h.pipeline.Launch(context.Background(), baseSpec("web1"))
	require.Error(t, err)
	assert.Equal(t, errdefs.KindNameConflict, errdefs.KindOf(err))
}

func TestLaunchRunsInBackground(t *testing.T) {
	h := newHarness(t, "x86_64")
	h.scriptBootstrap()

	require.NoError(t, h.pipeline.Launch(context.Background(), baseSpec("bg1")))

	require.Eventually(t, func() bool {
		job, err := h.registry.Get("bg1")
		return err == nil && job.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	job, err := h.registry.Get("bg1")
	require.NoError(t, err)
	assert.Equal(t, models.TerminalCompleted, job.TerminalStatus)
}
