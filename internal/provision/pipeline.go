// Package provision implements the multi-stage container creation run. A
// pipeline worker owns exactly one creation job from registration to its
// terminal state; stages execute strictly in order and the first failure
// short-circuits the rest, triggers cleanup, and fails the job.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/catalog"
	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/internal/invoker"
	"evalgo.org/nspawnium/internal/jobs"
	"evalgo.org/nspawnium/internal/rootfs"
	"evalgo.org/nspawnium/models"
)

// ErrCancelled is the job error of a cooperatively cancelled run.
var ErrCancelled = errors.New("cancelled")

// ArchSource reports the normalized host architecture.
type ArchSource interface {
	Arch() (string, error)
}

// Starter boots a finished container.
type Starter interface {
	Start(ctx context.Context, name string) error
}

// RecordSaver persists the authored part of a container record once
// provisioning succeeds.
type RecordSaver interface {
	Save(record *models.ContainerRecord) error
}

// SecretSink registers values that must never appear in logs or errors.
type SecretSink interface {
	AddSecret(value string)
}

// Pipeline provisions containers. One Pipeline serves all jobs; per-job
// state lives on the worker stack.
type Pipeline struct {
	inv       invoker.Invoker
	mutator   *rootfs.Mutator
	registry  *jobs.Registry
	inspector ArchSource
	starter   Starter
	records   RecordSaver
	secrets   SecretSink

	machinesDir string
	unitsDir    string
	bridge      string
	log         *logrus.Entry
}

// Options carries the collaborators and host paths of a pipeline.
type Options struct {
	Invoker     invoker.Invoker
	Mutator     *rootfs.Mutator
	Registry    *jobs.Registry
	Inspector   ArchSource
	Starter     Starter
	Records     RecordSaver
	Secrets     SecretSink
	MachinesDir string
	UnitsDir    string
	Bridge      string
	Logger      *logrus.Logger
}

func New(opts Options) *Pipeline {
	return &Pipeline{
		inv:         opts.Invoker,
		mutator:     opts.Mutator,
		registry:    opts.Registry,
		inspector:   opts.Inspector,
		starter:     opts.Starter,
		records:     opts.Records,
		secrets:     opts.Secrets,
		machinesDir: opts.MachinesDir,
		unitsDir:    opts.UnitsDir,
		bridge:      opts.Bridge,
		log:         opts.Logger.WithField("component", "provision"),
	}
}

// Launch validates the spec, registers a creation job, and starts the
// background worker. It returns as soon as the job exists; progress is
// observable through the registry.
func (p *Pipeline) Launch(parent context.Context, spec *models.ContainerSpec) error {
	if err := spec.Validate(); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "", err, "invalid container spec")
	}
	ctx, err := p.registry.Register(parent, spec.Name)
	if err != nil {
		return err
	}
	go p.Run(ctx, spec)
	return nil
}

// runState records which cleanup actions a failed run owes.
type runState struct {
	source      *catalog.Source
	dirCreated  bool
	unitWritten bool
}

// Run executes all stages for one registered job. It never returns an
// error; the outcome lands in the registry. The terminal update happens in
// a deferred finalizer so a panicking worker still fails its job.
func (p *Pipeline) Run(ctx context.Context, spec *models.ContainerSpec) {
	name := spec.Name
	dir := filepath.Join(p.machinesDir, name)
	log := p.log.WithField("container", name)
	state := &runState{}

	if p.secrets != nil {
		p.secrets.AddSecret(spec.RootPassword)
		registerWireguardSecrets(p.secrets, spec.WireguardConfig)
	}

	var failure error
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("worker panic: %v", r)
		}
		if failure != nil {
			p.cleanup(name, dir, state)
			p.registry.Finish(name, failure)
			log.WithError(failure).Error("provisioning failed")
			return
		}
		p.registry.Finish(name, nil)
		log.Info("provisioning completed")
	}()

	run := func(stage models.Stage, kind errdefs.Kind, fn func() error) {
		if failure != nil {
			return
		}
		if ctx.Err() != nil {
			failure = ErrCancelled
			return
		}
		p.registry.SetStage(name, stage)
		log.WithField("stage", stage).Debug("stage entered")
		if err := fn(); err != nil {
			failure = stageError(stage, kind, err)
		}
	}

	run(models.StageDetectArch, errdefs.KindUnsupported, func() error {
		arch, err := p.inspector.Arch()
		if err != nil {
			return err
		}
		state.source, err = catalog.Resolve(spec.Distro, arch)
		return err
	})

	run(models.StagePrepareDir, errdefs.KindNameConflict, func() error {
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("machine directory %s already exists", dir)
		}
		if err := os.MkdirAll(p.machinesDir, 0o755); err != nil {
			return err
		}
		if err := os.Mkdir(dir, 0o755); err != nil {
			return err
		}
		state.dirCreated = true
		return nil
	})

	run(models.StageBootstrapRootfs, errdefs.KindBootstrapFailed, func() error {
		src := state.source
		res, err := p.inv.Run(ctx, invoker.Request{
			Stage:   string(models.StageBootstrapRootfs),
			Argv:    []string{src.Tool, "--arch=" + src.Arch, src.Suite, dir, src.Mirror},
			Timeout: invoker.TimeoutBootstrap,
		})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("%s exited %d: %s", src.Tool, res.ExitCode, tail(res.Stderr))
		}
		return nil
	})

	run(models.StageSetRootPassword, errdefs.KindPasswordFailed, func() error {
		return p.mutator.SetRootPassword(dir, spec.RootPassword)
	})

	run(models.StageConfigureNetwork, errdefs.KindNetworkFailed, func() error {
		if err := p.mutator.ConfigureDNS(dir); err != nil {
			return err
		}
		return p.mutator.ConfigureNetwork(dir, spec.IPv6)
	})

	if spec.EnableSSH {
		run(models.StageInstallSSH, errdefs.KindSSHFailed, func() error {
			return p.mutator.InstallSSH(ctx, string(models.StageInstallSSH), dir)
		})
	}

	if spec.IPv6 == models.IPv6WireGuard {
		run(models.StageConfigureWireguard, errdefs.KindWireGuardFailed, func() error {
			return p.mutator.ConfigureWireGuard(ctx, string(models.StageConfigureWireguard), dir, spec.WireguardConfig)
		})
	}

	run(models.StageWriteHostUnit, errdefs.KindUnitFailed, func() error {
		if err := p.mutator.WriteHostUnit(p.unitsDir, name, p.bridge, spec); err != nil {
			return err
		}
		state.unitWritten = true
		return nil
	})

	run(models.StageStart, errdefs.KindStartFailed, func() error {
		return p.starter.Start(ctx, name)
	})

	if failure == nil && p.records != nil {
		if err := p.records.Save(models.RecordFromSpec(spec)); err != nil {
			log.WithError(err).Warn("cannot persist container record")
		}
	}
}

// cleanup undoes the filesystem effects of a failed run. It runs under a
// fresh context because the job context may already be cancelled.
func (p *Pipeline) cleanup(name, dir string, state *runState) {
	ctx, cancel := context.WithTimeout(context.Background(), invoker.TimeoutMachine)
	defer cancel()

	if state.unitWritten {
		if err := p.mutator.RemoveHostUnit(p.unitsDir, name); err != nil {
			p.log.WithField("container", name).WithError(err).Warn("cleanup: cannot remove unit file")
		}
	}
	if state.dirCreated {
		res, err := p.inv.Run(ctx, invoker.Request{
			Stage:   "cleanup",
			Argv:    []string{"rm", "-rf", dir},
			Timeout: invoker.TimeoutMachine,
		})
		if err != nil || res.ExitCode != 0 {
			// Fall back to in-process removal so a failed run never
			// leaves an orphaned machine directory behind.
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				p.log.WithField("container", name).WithError(rmErr).Error("cleanup: cannot remove rootfs directory")
			}
		}
	}
}

// stageError tags a stage failure with its kind. Timeouts keep their own
// kind so callers can distinguish a deadline from a tool failure.
func stageError(stage models.Stage, kind errdefs.Kind, err error) error {
	if errdefs.KindOf(err) == errdefs.KindTimeout {
		kind = errdefs.KindTimeout
	}
	return &errdefs.Error{Kind: kind, Stage: string(stage), Msg: "stage failed", Cause: err}
}

func registerWireguardSecrets(sink SecretSink, config string) {
	if config == "" {
		return
	}
	sink.AddSecret(config)
	for _, line := range strings.Split(config, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) == "PrivateKey" {
			sink.AddSecret(strings.TrimSpace(value))
		}
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 400 {
		return "..." + s[len(s)-400:]
	}
	return s
}
