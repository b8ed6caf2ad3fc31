// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/spf13/cobra"

	"github.com/hashgraph/solo-stager/cmd/stager/commands/common"
	"github.com/hashgraph/solo-stager/internal/config"
	"github.com/hashgraph/solo-stager/internal/workflows"
)

var (
	flagCheckPlan string

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Statically verify a migration plan can be staged",
		Long: "Resolve a stage for every migration in the plan and verify the pre-deploy " +
			"subset honors all dependencies, without touching the quorum backend or the " +
			"database. Intended for CI, fails with a remediation hint on any ambiguity",
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, st := workflows.NewCheckWorkflow(config.Get(), flagCheckPlan)
			common.RunWorkflow(cmd.Context(), wb)

			cmd.Printf("Plan is stageable: %d pre-deploy migration(s), fingerprint %s\n",
				len(st.Nodes), st.Fingerprint)
			return nil
		},
	}
)

func init() {
	checkCmd.Flags().StringVarP(&flagCheckPlan, "plan", "p", "", "path to the plan manifest exported by the migration executor")
	_ = checkCmd.MarkFlagRequired("plan")
}
