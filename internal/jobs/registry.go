// Package jobs tracks in-flight container creations. The registry is the
// only state shared between API handlers and provisioning workers; it is
// ephemeral on purpose, because an interrupted bootstrap does not survive a
// daemon restart either.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/models"
)

type entry struct {
	job    models.CreationJob
	cancel context.CancelFunc
}

// Registry is a process-wide keyed store from container name to its
// creation job. All mutations serialize under one mutex; job churn is low
// and the lock is never held across an external call.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	log  *logrus.Entry
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		jobs: make(map[string]*entry),
		log:  log.WithField("component", "jobs"),
	}
}

// Register allocates a job for name and returns the context its worker must
// run under. Registration fails with a conflict while a non-terminal job for
// the same name exists; a finished job is replaced.
func (r *Registry) Register(parent context.Context, name string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[name]; ok && !e.job.Terminal() {
		return nil, errdefs.Newf(errdefs.KindNameConflict, "creation already in progress for %q", name)
	}
	ctx, cancel := context.WithCancel(parent)
	r.jobs[name] = &entry{
		job: models.CreationJob{
			ContainerID:    name,
			Stage:          models.StagePending,
			TerminalStatus: models.TerminalNone,
			StartedAt:      time.Now().UTC(),
		},
		cancel: cancel,
	}
	return ctx, nil
}

// SetStage publishes a stage transition. Percent never moves backwards.
func (r *Registry) SetStage(name string, stage models.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[name]
	if !ok || e.job.Terminal() {
		return
	}
	e.job.Stage = stage
	if p := stage.Percent(); p > e.job.Percent {
		e.job.Percent = p
	}
}

// Finish moves the job to its terminal state. A nil err completes the job
// at 100 percent; otherwise the job fails with the error text.
func (r *Registry) Finish(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[name]
	if !ok || e.job.Terminal() {
		return
	}
	now := time.Now().UTC()
	e.job.FinishedAt = &now
	if err == nil {
		e.job.Stage = models.StageCompleted
		e.job.Percent = models.StageCompleted.Percent()
		e.job.TerminalStatus = models.TerminalCompleted
	} else {
		e.job.TerminalStatus = models.TerminalFailed
		e.job.Error = err.Error()
	}
	e.cancel()
}

// Get returns a snapshot of the job for name.
func (r *Registry) Get(name string) (models.CreationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[name]
	if !ok {
		return models.CreationJob{}, errdefs.Newf(errdefs.KindNotFound, "no creation job for %q", name)
	}
	return e.job, nil
}

// List returns snapshots of all jobs.
func (r *Registry) List() []models.CreationJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CreationJob, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job)
	}
	return out
}

// Cancel requests cooperative cancellation of a non-terminal job. The
// worker observes it at the next stage boundary.
func (r *Registry) Cancel(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[name]
	if !ok {
		return errdefs.Newf(errdefs.KindNotFound, "no creation job for %q", name)
	}
	if e.job.Terminal() {
		return errdefs.Newf(errdefs.KindNameConflict, "job for %q already finished", name)
	}
	e.cancel()
	return nil
}

// Ack removes a terminal job immediately. Non-terminal jobs stay.
func (r *Registry) Ack(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[name]
	if !ok {
		return errdefs.Newf(errdefs.KindNotFound, "no creation job for %q", name)
	}
	if !e.job.Terminal() {
		return errdefs.Newf(errdefs.KindNameConflict, "job for %q still running", name)
	}
	delete(r.jobs, name)
	return nil
}

// Sweep drops terminal jobs finished longer than ttl ago. The server runs
// this on a ticker so finished jobs stay observable for a bounded time.
func (r *Registry) Sweep(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-ttl)
	removed := 0
	for name, e := range r.jobs {
		if e.job.Terminal() && e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			delete(r.jobs, name)
			removed++
		}
	}
	if removed > 0 {
		r.log.WithField("expired", removed).Debug("swept finished creation jobs")
	}
	return removed
}
