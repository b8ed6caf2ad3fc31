// SPDX-License-Identifier: Apache-2.0

// Package workflows assembles the stager pipelines from individual automa
// steps.
package workflows

import (
	"time"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"

	"github.com/hashgraph/solo-stager/internal/config"
	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/hashgraph/solo-stager/internal/plan"
	"github.com/hashgraph/solo-stager/internal/quorum"
	"github.com/hashgraph/solo-stager/internal/state"
	"github.com/hashgraph/solo-stager/internal/workflows/steps"
)

// MigrateOptions are the per-run parameters of the migrate pipeline, as
// opposed to the durable configuration.
type MigrateOptions struct {
	// PlanPath is the plan manifest exported by the migration executor.
	PlanPath string

	// Phase selects the pre-deploy subset or the full remainder.
	Phase plan.Phase

	// Backward runs every migration in the plan in reverse direction.
	Backward bool

	// Target is the quorum size N.
	Target int

	// LockPath serializes runs on this host. Defaults to the stager lock
	// file.
	LockPath string

	// LockTimeout bounds the wait for the host lock.
	LockTimeout time.Duration
}

// NewMigrateWorkflow builds the staged rollout pipeline: load the plan,
// resolve stages, partition for the phase, take the host lock, rendezvous on
// the quorum barrier (applying if claimant) and record the round.
func NewMigrateWorkflow(
	cfg config.Config,
	opts MigrateOptions,
	backend quorum.Backend,
	executor plan.Executor,
	history *state.Manager,
) *automa.WorkflowBuilder {
	if opts.LockPath == "" {
		opts.LockPath = core.LockFile
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}

	resolverOpts := append(cfg.Stages.ResolverOptions(), plan.WithLogger(logx.As()))
	resolver := plan.NewResolver(resolverOpts...)

	barrierOpts := append(cfg.Quorum.BarrierOptions(), quorum.WithBarrierLogger(logx.As()))
	barrier := quorum.NewBarrier(backend, barrierOpts...)

	st := &steps.PlanState{Phase: opts.Phase}
	holder := &steps.LockHolder{}

	return automa.NewWorkflowBuilder().WithId("migrate-workflow").Steps(
		steps.LoadPlan(st, opts.PlanPath, opts.Backward),
		steps.ResolveStages(st, resolver),
		steps.PartitionPlan(st),
		steps.AcquireHostLock(holder, opts.LockPath, opts.LockTimeout),
		steps.QuorumApply(st, barrier, opts.Target, executor, history),
		steps.ReleaseHostLock(holder),
		steps.RecordRound(st, history, opts.Target),
	)
}

// NewCheckWorkflow builds the static pipeline used by `stager check`: load
// the plan, resolve stages and partition both phases without touching the
// barrier or the executor.
func NewCheckWorkflow(cfg config.Config, planPath string) (*automa.WorkflowBuilder, *steps.PlanState) {
	resolverOpts := append(cfg.Stages.ResolverOptions(), plan.WithLogger(logx.As()))
	resolver := plan.NewResolver(resolverOpts...)

	st := &steps.PlanState{Phase: plan.PhasePreDeploy}

	wb := automa.NewWorkflowBuilder().WithId("check-workflow").Steps(
		steps.LoadPlan(st, planPath, false),
		steps.ResolveStages(st, resolver),
		steps.PartitionPlan(st),
	)
	return wb, st
}
