package main

import (
	"fmt"
	"os"

	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/UnivaCorporation/tortuga-sub001/internal/topology"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var loadTopologyCmd = &cobra.Command{
	Use:   "load-topology -f FILE",
	Short: "Load networks, software profiles and hardware profiles from a YAML file",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(lo.Must(cmd.Flags().GetString("file")))
		if err != nil {
			return fmt.Errorf("failed to open topology: %w", err)
		}
		defer f.Close()

		topo, err := topology.Load(f)
		if err != nil {
			return err
		}

		ds, err := cfg.InitializeDatabase(logger)
		if err != nil {
			return err
		}
		defer ds.Close()

		loader := topology.NewLoader(
			repository.NewNetworkRepository(ds.DB),
			repository.NewSoftwareProfileRepository(ds.DB),
			repository.NewHardwareProfileRepository(ds),
			logger,
		)
		summary, err := loader.Apply(cmd.Context(), topo)
		if err != nil {
			return err
		}

		cmd.PrintErrln(color.HiGreenString("Loaded %d network(s), %d software profile(s), %d hardware profile(s)",
			summary.Networks, summary.SoftwareProfiles, summary.HardwareProfiles))
		return nil
	},
}

func init() {
	loadTopologyCmd.Flags().StringP("file", "f", "", "topology YAML file")
	lo.Must0(loadTopologyCmd.MarkFlagRequired("file"))
}
