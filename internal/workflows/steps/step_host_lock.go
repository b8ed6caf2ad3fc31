// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
	"github.com/gofrs/flock"
	"github.com/joomcode/errorx"

	"github.com/hashgraph/solo-stager/internal/core"
)

// LockHolder keeps the host lock alive across the steps between acquire and
// release.
type LockHolder struct {
	lock *flock.Flock
}

// AcquireHostLock serializes stager runs on the same host. Two agent
// processes on one machine must not race each other into the same quorum
// round.
func AcquireHostLock(h *LockHolder, lockPath string, timeout time.Duration) automa.Builder {
	return automa.NewStepBuilder().WithId("acquire-host-lock").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := os.MkdirAll(filepath.Dir(lockPath), core.DefaultFilePerm); err != nil {
				return automa.FailureReport(stp,
					automa.WithError(errorx.IllegalState.Wrap(err, "failed to create lock directory")))
			}

			fileLock := flock.New(lockPath)
			lockCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			locked, err := fileLock.TryLockContext(lockCtx, time.Second)
			if err != nil {
				return automa.FailureReport(stp,
					automa.WithError(errorx.IllegalState.Wrap(err, "failed to acquire host lock %q", lockPath)))
			}
			if !locked {
				return automa.FailureReport(stp,
					automa.WithError(errorx.IllegalState.New(
						"timed out acquiring host lock %q, another stager run is in progress", lockPath)))
			}

			h.lock = fileLock
			logx.As().Debug().Str("lockPath", lockPath).Msg("Acquired host lock")
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			// A later step failed; hand the lock back.
			h.Release()
			return automa.SuccessReport(stp)
		})
}

// ReleaseHostLock releases the lock taken by AcquireHostLock.
func ReleaseHostLock(h *LockHolder) automa.Builder {
	return automa.NewStepBuilder().WithId("release-host-lock").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if h.lock == nil {
				return automa.SuccessReport(stp)
			}
			if err := h.lock.Unlock(); err != nil {
				logx.As().Warn().Err(err).Msg("Failed to release host lock")
			}
			h.lock = nil
			return automa.SuccessReport(stp)
		})
}

// Release unlocks outside the workflow, for cleanup after a failed run.
func (h *LockHolder) Release() {
	if h.lock == nil {
		return
	}
	if err := h.lock.Unlock(); err != nil {
		logx.As().Warn().Err(err).Msg("Failed to release host lock")
	}
	h.lock = nil
}
