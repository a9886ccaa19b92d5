package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"z-song-ai-api/internal/domain/entity"
	wfnode "z-song-ai-api/internal/workflow/node"
)

type repairOutput struct {
	Stage    wfnode.RepairStage   `json:"stage"`
	Fields   int                  `json:"fields"`
	Artifact *entity.SongArtifact `json:"artifact"`
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair [model-output.txt|-]",
		Short: "Recover a song brief from truncated or malformed model output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return fmt.Errorf("read model output: %w", err)
			}
			fields, stage := wfnode.RepairJSONWithStage(string(raw))
			n := wfnode.CountArtifactFields(fields)
			if n == 0 {
				return fmt.Errorf("no artifact field could be recovered (stage %s)", stage)
			}
			return writeJSON(cmd.OutOrStdout(), repairOutput{
				Stage:    stage,
				Fields:   n,
				Artifact: wfnode.CoerceArtifact(fields),
			})
		},
	}
}
