// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joomcode/errorx"

	"github.com/hashgraph/solo-stager/internal/state"
)

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Show the quorum rounds this agent took part in",
	RunE: func(cmd *cobra.Command, args []string) error {
		rounds, err := state.NewManager().List()
		if err != nil {
			return err
		}
		if len(rounds) == 0 {
			cmd.Println("No rounds recorded on this host")
			return nil
		}

		var out []byte
		switch flagOutputFormat {
		case "json":
			out, err = json.MarshalIndent(rounds, "", "  ")
		case "yaml":
			out, err = yaml.Marshal(rounds)
		default:
			return errorx.IllegalFormat.New("unsupported format: %s", flagOutputFormat)
		}
		if err != nil {
			return errorx.InternalError.Wrap(err, "failed to render round history")
		}

		cmd.Println(string(out))
		return nil
	},
}
