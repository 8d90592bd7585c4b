package main

import (
	"errors"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var getNodeRequestsCmd = &cobra.Command{
	Use:   "get-node-requests -r SESSION",
	Short: "Show the progress of an add-nodes request",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		session := lo.Must(cmd.Flags().GetString("request"))
		start := lo.Must(cmd.Flags().GetInt("start"))
		includeNodes := lo.Must(cmd.Flags().GetBool("nodes"))

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		request, err := a.requests.FindBySession(cmd.Context(), session)
		switch {
		case err == nil:
			cmd.Printf("Request %d: %s\n", request.ID, stateColor(request.State))
			if request.Message != "" {
				cmd.Printf("  %s\n", request.Message)
			}
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		status, err := a.sessions.GetStatus(cmd.Context(), session, start, includeNodes)
		if errors.Is(err, addhost.ErrNotFound) && request.ID != 0 {
			// Session status lives in the object store, which may not be shared
			// with the process that ran the request
			return nil
		}
		if err != nil {
			return err
		}

		cmd.Printf("Session %s running=%t\n", session, status.Running)
		for _, msg := range status.Messages {
			cmd.Printf("  %s\n", msg)
		}
		for _, n := range status.NodeDetails {
			ip := ""
			if nic := n.ProvisioningNic(); nic != nil {
				ip = nic.IP
			}
			cmd.Printf("%s  %s\n", color.HiCyanString(n.Name), ip)
		}
		return nil
	},
}

func stateColor(state string) string {
	switch state {
	case domain.NodeRequestDone:
		return color.HiGreenString(state)
	case domain.NodeRequestError:
		return color.HiRedString(state)
	default:
		return color.HiYellowString(state)
	}
}

func init() {
	getNodeRequestsCmd.Flags().StringP("request", "r", "", "add-host session id")
	getNodeRequestsCmd.Flags().Int("start", 0, "index of the first status message to show")
	getNodeRequestsCmd.Flags().Bool("nodes", false, "list the nodes added by the session")
	lo.Must0(getNodeRequestsCmd.MarkFlagRequired("request"))
}
