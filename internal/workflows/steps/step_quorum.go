// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"

	"github.com/hashgraph/solo-stager/internal/plan"
	"github.com/hashgraph/solo-stager/internal/quorum"
	"github.com/hashgraph/solo-stager/internal/state"
)

// QuorumApply joins the quorum round for the partitioned plan and, if this
// caller ends up the claimant, applies the plan through the executor.
//
// An empty selection skips the round entirely: agents with nothing to apply
// must not hold back agents carrying a different plan.
func QuorumApply(st *PlanState, barrier *quorum.Barrier, target int, executor plan.Executor, history *state.Manager) automa.Builder {
	return automa.NewStepBuilder().WithId("quorum-apply").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if len(st.Nodes) == 0 {
				logx.As().Info().Str("phase", string(st.Phase)).Msg("No migrations selected, skipping quorum round")
				return automa.SuccessReport(stp)
			}

			if prev, ok, err := history.Latest(st.Fingerprint); err == nil && ok && prev.Outcome == state.OutcomeReleased {
				logx.As().Warn().
					Str("fingerprint", st.Fingerprint).
					Time("recordedAt", prev.RecordedAt).
					Msg("A round with this fingerprint already released on this host")
			}

			err := barrier.Arrive(ctx, st.Fingerprint, target, func(ctx context.Context) error {
				return executor.Apply(ctx, st.Nodes)
			})
			if err != nil {
				return automa.FailureReport(stp, automa.WithError(err))
			}

			meta := map[string]string{
				"fingerprint": st.Fingerprint,
			}
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			logx.As().Error().Err(rpt.Error).
				Str("fingerprint", st.Fingerprint).
				Msg("Quorum round failed")
		})
}

// RecordRound appends the finished round to the local history.
func RecordRound(st *PlanState, history *state.Manager, target int) automa.Builder {
	return automa.NewStepBuilder().WithId("record-round").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if len(st.Nodes) == 0 {
				return automa.SuccessReport(stp)
			}

			migrations := make([]string, 0, len(st.Nodes))
			for _, node := range st.Nodes {
				migrations = append(migrations, string(node.ID()))
			}
			err := history.Record(state.RoundRecord{
				Fingerprint: st.Fingerprint,
				Phase:       string(st.Phase),
				Target:      target,
				Migrations:  migrations,
				Outcome:     state.OutcomeReleased,
			})
			if err != nil {
				// History is diagnostic; a write failure must not fail a
				// round that already released.
				logx.As().Warn().Err(err).Msg("Failed to record round history")
			}
			return automa.SuccessReport(stp)
		})
}
