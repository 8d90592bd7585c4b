package main

import (
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var deleteNodeCmd = &cobra.Command{
	Use:   "delete-node NAME...",
	Short: "Delete nodes and release their resources",
	Args:  cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.nodes.DeleteNodes(cmd.Context(), args, lo.Must(cmd.Flags().GetBool("force")))
		a.flush(cmd.Context())
		if err != nil {
			return err
		}

		for _, name := range deleted {
			cmd.PrintErrln(color.HiGreenString("Deleted node '%s'", name))
		}
		return nil
	},
}

func init() {
	deleteNodeCmd.Flags().Bool("force", false, "delete nodes of soft-locked profiles or below the minimum node count")
}
