// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"time"

	"github.com/automa-saga/logx"
	"github.com/spf13/cobra"

	"github.com/hashgraph/solo-stager/cmd/stager/commands/common"
	"github.com/hashgraph/solo-stager/internal/config"
	"github.com/hashgraph/solo-stager/internal/plan"
	"github.com/hashgraph/solo-stager/internal/quorum"
	"github.com/hashgraph/solo-stager/internal/state"
	"github.com/hashgraph/solo-stager/internal/workflows"
)

var (
	flagPlan          string
	flagPreDeploy     bool
	flagBackward      bool
	flagQuorum        int
	flagQuorumTimeout time.Duration

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply a migration plan phase behind the quorum barrier",
		Long: "Resolve stages for the given plan, select the requested phase and rendezvous " +
			"with the other deployment agents; exactly one agent applies the selection once " +
			"the quorum is reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if flagQuorumTimeout > 0 {
				cfg.Quorum.Timeout = flagQuorumTimeout
				if cfg.Quorum.TTL < cfg.Quorum.Timeout {
					cfg.Quorum.TTL = cfg.Quorum.Timeout
				}
			}

			phase := plan.PhasePostDeploy
			if flagPreDeploy {
				phase = plan.PhasePreDeploy
			}

			backend, err := buildQuorumBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			opts := workflows.MigrateOptions{
				PlanPath: flagPlan,
				Phase:    phase,
				Backward: flagBackward,
				Target:   flagQuorum,
			}
			executor := plan.NewLogExecutor(logx.As())
			history := state.NewManager()

			logx.As().Info().
				Str("plan", flagPlan).
				Str("phase", string(phase)).
				Int("quorum", flagQuorum).
				Msg("Starting migrate workflow")

			wf := workflows.NewMigrateWorkflow(cfg, opts, backend, executor, history)
			common.RunWorkflow(cmd.Context(), wf)

			logx.As().Info().Str("phase", string(phase)).Msg("Migration phase completed")
			return nil
		},
	}
)

func buildQuorumBackend(ctx context.Context, cfg config.Config) (quorum.Backend, error) {
	switch cfg.Quorum.Backend {
	case config.QuorumBackendRedis:
		return quorum.ConnectRedis(ctx, cfg.Quorum.Redis.Addr, cfg.Quorum.Redis.Password, cfg.Quorum.Redis.DB)
	default:
		return quorum.NewMemoryBackend(), nil
	}
}

func init() {
	migrateCmd.Flags().StringVarP(&flagPlan, "plan", "p", "", "path to the plan manifest exported by the migration executor")
	migrateCmd.Flags().BoolVar(&flagPreDeploy, "pre-deploy", false, "apply only the pre-deploy subset of the plan")
	migrateCmd.Flags().BoolVar(&flagBackward, "backward", false, "run every migration in the plan in reverse direction")
	migrateCmd.Flags().IntVarP(&flagQuorum, "quorum", "q", 1, "number of agents that must arrive before the plan is applied")
	migrateCmd.Flags().DurationVar(&flagQuorumTimeout, "quorum-timeout", 0, "override the configured quorum timeout")
	_ = migrateCmd.MarkFlagRequired("plan")
}
