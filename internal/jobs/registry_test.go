package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/nspawnium/internal/errdefs"
	"evalgo.org/nspawnium/models"
)

func testRegistry() *Registry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewRegistry(log)
}

func TestRegisterAndGet(t *testing.T) {
	r := testRegistry()

	_, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)

	job, err := r.Get("web1")
	require.NoError(t, err)
	assert.Equal(t, "web1", job.ContainerID)
	assert.Equal(t, models.StagePending, job.Stage)
	assert.Equal(t, 0, job.Percent)
	assert.False(t, job.Terminal())
}

func TestRegisterConflictsWhileRunning(t *testing.T) {
	r := testRegistry()

	_, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)

	_, err = r.Register(context.Background(), "web1")
	require.Error(t, err)
	assert.Equal(t, errdefs.KindNameConflict, errdefs.KindOf(err))
}

func TestRegisterReplacesFinishedJob(t *testing.T) {
	r := testRegistry()

	_, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)
	r.Finish("web1", errors.New("bootstrap_rootfs: mirror unreachable"))

	_, err = r.Register(context.Background(), "web1")
	require.NoError(t, err)

	job, err := r.Get("web1")
	require.NoError(t, err)
	assert.False(t, job.Terminal())
	assert.Empty(t, job.Error)
}

func TestSetStagePercentIsMonotone(t *testing.T) {
	r := testRegistry()
	_, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)

	r.SetStage("web1", models.StageBootstrapRootfs)
	job, _ := r.Get("web1")
	assert.Equal(t, 30, job.Percent)

	// A stage with a lower percent must not move progress backwards.
	r.SetStage("web1", models.StageDetectArch)
	job, _ = r.Get("web1")
	assert.Equal(t, models.StageDetectArch, job.Stage)
	assert.Equal(t, 30, job.Percent)
}

func TestFinishSuccess(t *testing.T) {
	r := testRegistry()
	ctx, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)

	r.Finish("web1", nil)

	job, err := r.Get("web1")
	require.NoError(t, err)
	assert.Equal(t, models.TerminalCompleted, job.TerminalStatus)
	assert.Equal(t, models.StageCompleted, job.Stage)
	assert.Equal(t, 100, job.Percent)
	require.NotNil(t, job.FinishedAt)

	select {
	case <-ctx.Done():
	default:
		t.Error("worker context should be cancelled after Finish")
	}
}

func TestFinishFailureKeepsStage(t *testing.T) {
	r := testRegistry()
	_, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)
	r.SetStage("web1", models.StageBootstrapRootfs)

	r.Finish("web1", errors.New("bootstrap_rootfs: debootstrap exited 1"))

	job, _ := r.Get("web1")
	assert.Equal(t, models.TerminalFailed, job.TerminalStatus)
	assert.Equal(t, models.StageBootstrapRootfs, job.Stage)
	assert.Equal(t, "bootstrap_rootfs: debootstrap exited 1", job.Error)
}

func TestCancel(t *testing.T) {
	r := testRegistry()
	ctx, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)

	require.NoError(t, r.Cancel("web1"))
	select {
	case <-ctx.Done():
	default:
		t.Error("worker context should be cancelled after Cancel")
	}

	// Cancelling an unknown or finished job fails.
	err = r.Cancel("ghost")
	assert.Equal(t, errdefs.KindNotFound, errdefs.KindOf(err))

	r.Finish("web1", errors.New("cancelled"))
	err = r.Cancel("web1")
	assert.Equal(t, errdefs.KindNameConflict, errdefs.KindOf(err))
}

func TestAck(t *testing.T) {
	r := testRegistry()
	_, err := r.Register(context.Background(), "web1")
	require.NoError(t, err)

	err = r.Ack("web1")
	assert.Equal(t, errdefs.KindNameConflict, errdefs.KindOf(err), "running job must not be acked")

	r.Finish("web1", nil)
	require.NoError(t, r.Ack("web1"))

	_, err = r.Get("web1")
	assert.Equal(t, errdefs.KindNotFound, errdefs.KindOf(err))
}

func TestSweepDropsOnlyExpiredTerminalJobs(t *testing.T) {
	r := testRegistry()

	_, err := r.Register(context.Background(), "old")
	require.NoError(t, err)
	r.Finish("old", nil)

	_, err = r.Register(context.Background(), "running")
	require.NoError(t, err)

	// Backdate the finished job past the TTL.
	r.mu.Lock()
	past := time.Now().UTC().Add(-2 * time.Hour)
	r.jobs["old"].job.FinishedAt = &past
	r.mu.Unlock()

	removed := r.Sweep(time.Hour)
	assert.Equal(t, 1, removed)

	_, err = r.Get("old")
	assert.Error(t, err)
	_, err = r.Get("running")
	assert.NoError(t, err)
}
