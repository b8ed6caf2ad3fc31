// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"

	"github.com/hashgraph/solo-stager/internal/plan"
)

// PlanState carries the plan through the migrate pipeline. Each step reads
// what the previous one produced.
type PlanState struct {
	Plan        *plan.Plan
	Nodes       []plan.Node
	Phase       plan.Phase
	Fingerprint string
}

// LoadPlan reads the plan manifest exported by the migration executor. With
// backward set, every migration in the plan is run in reverse direction
// regardless of what the manifest says per entry.
func LoadPlan(st *PlanState, path string, backward bool) automa.Builder {
	return automa.NewStepBuilder().WithId("load-plan").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			p, err := plan.LoadManifest(path)
			if err != nil {
				return automa.FailureReport(stp, automa.WithError(err))
			}
			if backward {
				for i := range p.Nodes {
					p.Nodes[i].Direction = plan.DirectionBackward
				}
			}
			st.Plan = p

			logx.As().Info().
				Str("path", path).
				Int("migrations", len(p.Nodes)).
				Msg("Loaded migration plan")
			return automa.SuccessReport(stp)
		})
}

// ResolveStages assigns a deployment stage to every migration in the plan.
func ResolveStages(st *PlanState, resolver *plan.Resolver) automa.Builder {
	return automa.NewStepBuilder().WithId("resolve-stages").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := resolver.ResolvePlan(st.Plan); err != nil {
				return automa.FailureReport(stp, automa.WithError(err))
			}
			return automa.SuccessReport(stp)
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			logx.As().Error().Err(rpt.Error).Msg("Failed to resolve migration stages")
		})
}

// PartitionPlan filters the resolved plan down to the requested phase and
// fingerprints the selection for quorum correlation.
func PartitionPlan(st *PlanState) automa.Builder {
	return automa.NewStepBuilder().WithId("partition-plan").
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			nodes, err := st.Plan.Partition(st.Phase)
			if err != nil {
				return automa.FailureReport(stp, automa.WithError(err))
			}
			st.Nodes = nodes
			st.Fingerprint = plan.Fingerprint(nodes, st.Phase)

			meta := map[string]string{
				"phase":       string(st.Phase),
				"fingerprint": st.Fingerprint,
			}
			logx.As().Info().
				Str("phase", string(st.Phase)).
				Str("fingerprint", st.Fingerprint).
				Int("selected", len(nodes)).
				Msg("Partitioned migration plan")
			return automa.StepSuccessReport(stp.Id(), automa.WithMetadata(meta))
		})
}
