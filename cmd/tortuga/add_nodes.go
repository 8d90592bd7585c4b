package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var addNodesCmd = &cobra.Command{
	Use:   "add-nodes",
	Short: "Add nodes to a hardware profile",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildAddNodesRequest(cmd.Flags())
		if err != nil {
			return err
		}

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		nodes, err := a.addHosts.AddHosts(cmd.Context(), &req)
		a.flush(cmd.Context())
		if err != nil {
			return fmt.Errorf("add-host session %s: %w", req.AddHostSession, err)
		}

		cmd.PrintErrln(color.HiGreenString("Add-host session %s added %d node(s)", req.AddHostSession, len(nodes)))
		for _, n := range nodes {
			ip := ""
			if nic := n.ProvisioningNic(); nic != nil {
				ip = nic.IP
			}
			cmd.Printf("%s  %s\n", color.HiCyanString(n.Name), ip)
		}
		return nil
	},
}

func init() {
	registerAddNodesFlags(addNodesCmd.Flags())
}

func registerAddNodesFlags(flags *flag.FlagSet) {
	flags.StringP("file", "f", "", "YAML add-nodes request; flags override its values")
	flags.String("hardware-profile", "", "hardware profile of the new nodes")
	flags.String("software-profile", "", "software profile of the new nodes (defaults to the idle profile)")
	flags.Int("count", 0, "number of nodes to discover")
	flags.Int("rack", 0, "rack number substituted into #R name format specifiers")
	flags.StringArray("tag", nil, "tag applied to every new node, as key=value")
	flags.StringArray("extra-arg", nil, "resource adapter argument, as key=value")
	flags.String("resource-adapter-configuration", "", "resource adapter configuration profile")
	flags.String("name", "", "host name of a single predefined node")
	flags.StringArray("mac", nil, "MAC address of a predefined node NIC, repeat for each NIC")
	flags.StringArray("ip", nil, "IP address paired with the --mac at the same position")
}

// buildAddNodesRequest reads the optional request file and applies the flags
// that were set on top of it
func buildAddNodesRequest(flags *flag.FlagSet) (domain.AddNodesRequest, error) {
	var req domain.AddNodesRequest

	if file := lo.Must(flags.GetString("file")); file != "" {
		content, err := os.ReadFile(file)
		if err != nil {
			return req, fmt.Errorf("failed to read request file: %w", err)
		}
		if err := yaml.Unmarshal(content, &req); err != nil {
			return req, fmt.Errorf("failed to decode request file: %w", err)
		}
	}

	if flags.Changed("hardware-profile") {
		req.HardwareProfile = lo.Must(flags.GetString("hardware-profile"))
	}
	if flags.Changed("software-profile") {
		req.SoftwareProfile = lo.Must(flags.GetString("software-profile"))
	}
	if flags.Changed("count") {
		req.Count = lo.Must(flags.GetInt("count"))
	}
	if flags.Changed("rack") {
		rack := lo.Must(flags.GetInt("rack"))
		req.Rack = &rack
	}
	if flags.Changed("resource-adapter-configuration") {
		req.ResourceAdapterConfiguration = lo.Must(flags.GetString("resource-adapter-configuration"))
	}

	tags, err := parseKeyValues(lo.Must(flags.GetStringArray("tag")))
	if err != nil {
		return req, fmt.Errorf("invalid --tag: %w", err)
	}
	req.Tags = lo.Assign(req.Tags, tags)

	extraArgs, err := parseKeyValues(lo.Must(flags.GetStringArray("extra-arg")))
	if err != nil {
		return req, fmt.Errorf("invalid --extra-arg: %w", err)
	}
	req.ExtraArgs = lo.Assign(req.ExtraArgs, extraArgs)

	name := lo.Must(flags.GetString("name"))
	macs := lo.Must(flags.GetStringArray("mac"))
	ips := lo.Must(flags.GetStringArray("ip"))
	if len(ips) > len(macs) {
		return req, fmt.Errorf("every --ip needs a matching --mac")
	}
	if name != "" || len(macs) > 0 {
		detail := domain.NodeDetail{Name: name}
		for i, mac := range macs {
			nic := domain.NicSpec{MAC: mac}
			if i < len(ips) {
				nic.IP = ips[i]
			}
			detail.Nics = append(detail.Nics, nic)
		}
		req.NodeDetails = append(req.NodeDetails, detail)
	}

	if req.HardwareProfile == "" {
		return req, fmt.Errorf("a hardware profile is required")
	}
	if len(req.Tags) == 0 {
		req.Tags = nil
	}
	if len(req.ExtraArgs) == 0 {
		req.ExtraArgs = nil
	}
	return req, nil
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key = strings.TrimSpace(key); key == "" {
			return nil, fmt.Errorf("missing key in %q", pair)
		}
		result[key] = value
	}
	return result, nil
}
