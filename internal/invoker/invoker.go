// Package invoker is the single choke point for external privileged
// commands. Every shell-out in the daemon (bootstrap tool, machinectl,
// iptables, file operations) goes through an Invoker so callers get uniform
// timeouts, captured output, and secret scrubbing, and so tests can swap in
// a scripted fake.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/errdefs"
)

// Default timeouts per command class.
const (
	TimeoutBootstrap      = 30 * time.Minute
	TimeoutPackageInstall = 5 * time.Minute
	TimeoutMachine        = 60 * time.Second
	TimeoutFirewall       = 10 * time.Second
	TimeoutFileOp         = 5 * time.Second
)

// Request describes one external command run. Stage attributes the call to
// a pipeline stage or subsystem for logging.
type Request struct {
	Stage   string
	Argv    []string
	Stdin   string
	Timeout time.Duration
	Env     []string
}

// Result is the full outcome of a finished command. A non-zero exit code is
// not an error at this layer; callers decide what it means.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Invoker runs external commands. Implementations must be safe for
// concurrent use and must not hold locks across a child process wait.
type Invoker interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Host executes commands on the local machine.
type Host struct {
	log   *logrus.Entry
	scrub *Scrubber
}

// NewHost returns a host invoker logging through the given logger.
func NewHost(log *logrus.Logger) *Host {
	return &Host{
		log:   log.WithField("component", "invoker"),
		scrub: NewScrubber(),
	}
}

// AddSecret registers a value to be redacted from all captured output,
// log lines, and error messages produced by this invoker.
func (h *Host) AddSecret(value string) {
	h.scrub.Add(value)
}

// Run executes the command and waits for it to finish or time out. On
// timeout the child is killed and the call fails with a Timeout kind.
// A missing binary or other launch failure is a HostError.
func (h *Host) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Argv) == 0 {
		return nil, errdefs.New(errdefs.KindHostError, "empty command")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = TimeoutFileOp
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		ExitCode: 0,
		Stdout:   h.scrub.Redact(stdout.String()),
		Stderr:   h.scrub.Redact(stderr.String()),
		Duration: time.Since(start),
	}

	fields := logrus.Fields{
		"stage":    req.Stage,
		"command":  req.Argv[0],
		"duration": res.Duration.Round(time.Millisecond).String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		h.log.WithFields(fields).Warn("command timed out")
		return nil, errdefs.Wrap(errdefs.KindTimeout, req.Stage, nil,
			req.Argv[0]+" timed out after "+timeout.String())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			h.log.WithFields(fields).WithError(err).Error("command failed to launch")
			return nil, errdefs.Wrap(errdefs.KindHostError, req.Stage, err,
				"cannot run "+req.Argv[0])
		}
	}

	fields["exit_code"] = res.ExitCode
	h.log.WithFields(fields).Debug("command finished")
	return res, nil
}
