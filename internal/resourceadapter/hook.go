package resourceadapter

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its combined output
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// HookScript invokes an administrator supplied script for hook actions as
// "<script> <action> [args...] <node1,node2,...>"
type HookScript struct {
	path   string
	run    CommandRunner
	logger *slog.Logger
}

// NewHookScript creates a hook runner for the script at path. An empty path
// disables hooks.
func NewHookScript(path string, run CommandRunner, logger *slog.Logger) *HookScript {
	if run == nil {
		run = ExecRunner
	}
	return &HookScript{path: path, run: run, logger: logger}
}

// Run executes the hook script for action
func (h *HookScript) Run(ctx context.Context, action string, nodeNames []string, args ...string) error {
	if h == nil || h.path == "" || len(nodeNames) == 0 {
		return nil
	}

	cmdArgs := append([]string{action}, args...)
	cmdArgs = append(cmdArgs, strings.Join(nodeNames, ","))

	h.logger.Debug("Running hook script", "script", h.path, "action", action, "nodes", len(nodeNames))

	output, err := h.run(ctx, h.path, cmdArgs...)
	if err != nil {
		return fmt.Errorf("hook script %s %s failed: %w: %s", h.path, action, err, strings.TrimSpace(string(output)))
	}
	return nil
}
