package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNodesFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	flags := flag.NewFlagSet(t.Name(), flag.ContinueOnError)
	registerAddNodesFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestBuildAddNodesRequest_Flags(t *testing.T) {
	flags := addNodesFlags(t,
		"--hardware-profile", "compute",
		"--software-profile", "centos",
		"--rack", "3",
		"--tag", "role=worker",
		"--tag", "owner=hpc",
		"--extra-arg", "image=base",
		"--name", "compute-03-001",
		"--mac", "00:11:22:33:44:55",
		"--mac", "00:11:22:33:44:66",
		"--ip", "10.0.0.7",
	)

	req, err := buildAddNodesRequest(flags)
	require.NoError(t, err)

	assert.Equal(t, "compute", req.HardwareProfile)
	assert.Equal(t, "centos", req.SoftwareProfile)
	require.NotNil(t, req.Rack)
	assert.Equal(t, 3, *req.Rack)
	assert.Equal(t, map[string]string{"role": "worker", "owner": "hpc"}, req.Tags)
	assert.Equal(t, map[string]string{"image": "base"}, req.ExtraArgs)
	assert.Equal(t, []domain.NodeDetail{{
		Name: "compute-03-001",
		Nics: []domain.NicSpec{{MAC: "00:11:22:33:44:55", IP: "10.0.0.7"}, {MAC: "00:11:22:33:44:66"}},
	}}, req.NodeDetails)
}

func TestBuildAddNodesRequest_FileWithOverrides(t *testing.T) {
	file := filepath.Join(t.TempDir(), "request.yaml")
	content := `hardwareProfile: compute
softwareProfile: centos
count: 4
tags:
  role: worker
nodeDetails:
  - name: gpu-01
    nics:
      - mac: "00:11:22:33:44:55"
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	req, err := buildAddNodesRequest(addNodesFlags(t, "-f", file, "--count", "2", "--tag", "role=gpu"))
	require.NoError(t, err)

	assert.Equal(t, "compute", req.HardwareProfile)
	assert.Equal(t, 2, req.Count)
	assert.Nil(t, req.Rack)
	assert.Equal(t, map[string]string{"role": "gpu"}, req.Tags)
	assert.Nil(t, req.ExtraArgs)
	require.Len(t, req.NodeDetails, 1)
	assert.Equal(t, "gpu-01", req.NodeDetails[0].Name)
}

func TestBuildAddNodesRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no hardware profile", []string{"--count", "1"}, "a hardware profile is required"},
		{"bad tag", []string{"--hardware-profile", "compute", "--tag", "=x"}, "invalid --tag"},
		{"ip without mac", []string{"--hardware-profile", "compute", "--ip", "10.0.0.1"}, "every --ip needs a matching --mac"},
		{"missing file", []string{"-f", "/nonexistent/request.yaml"}, "failed to read request file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildAddNodesRequest(addNodesFlags(t, tt.args...))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseKeyValues(t *testing.T) {
	kv, err := parseKeyValues([]string{"a=1", "b=", "c", "d=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "", "c": "", "d": "x=y"}, kv)

	_, err = parseKeyValues([]string{" =1"})
	assert.Error(t, err)
}
