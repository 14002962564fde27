package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"threadpilot/internal/llm"
)

// ExecCommandTool runs a shell command in the configured working directory.
// It is the canonical side-effecting tool: invocations go through the
// approval gate unless an allow rule covers them.
type ExecCommandTool struct {
	Workdir string
}

type execCommandArgs struct {
	Command        string `json:"command"`
	Dir            string `json:"dir"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxOutputBytes int    `json:"max_output_bytes"`
}

func (t *ExecCommandTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "exec_command",
		Description: "Execute a shell command and return its exit code and captured output.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":          map[string]any{"type": "string", "description": "Shell command (sh -c / cmd /C)"},
				"dir":              map[string]any{"type": "string", "description": "Working directory (default: session workdir)"},
				"timeout_seconds":  map[string]any{"type": "integer"},
				"max_output_bytes": map[string]any{"type": "integer", "description": "Max bytes captured per stream (default 65536)"},
			},
			"required": []string{"command"},
		},
	}
}

func (t *ExecCommandTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in execCommandArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("exec_command: invalid JSON arguments: %w", err)
	}
	command := strings.TrimSpace(in.Command)
	if command == "" {
		return "", errors.New("command is required")
	}

	timeout := time.Duration(in.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxBytes := in.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = 65536
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	stdoutCapture := &limitedBuffer{buf: &stdout, max: maxBytes}
	stderrCapture := &limitedBuffer{buf: &stderr, max: maxBytes}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, "sh", "-c", command)
	}
	if dir := strings.TrimSpace(in.Dir); dir != "" {
		cmd.Dir = dir
	} else if t.Workdir != "" {
		cmd.Dir = t.Workdir
	}
	cmd.Stdout = stdoutCapture
	cmd.Stderr = stderrCapture
	// Bound how long Wait can hang if orphaned subprocesses keep the
	// stdout/stderr pipes open after cancellation.
	cmd.WaitDelay = 500 * time.Millisecond

	start := time.Now()
	err := cmd.Run()

	timedOut := errors.Is(cmdCtx.Err(), context.DeadlineExceeded)
	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	errorMessage := "-"
	if err != nil {
		errorMessage = strings.TrimSpace(err.Error())
	}

	out := fmt.Sprintf(
		"exit_code: %d\n"+
			"duration_ms: %d\n"+
			"timed_out: %t\n"+
			"error: %s\n"+
			"stdout:\n%s\n"+
			"stderr:\n%s",
		exitCode,
		time.Since(start).Milliseconds(),
		timedOut,
		errorMessage,
		strings.TrimRight(stdout.String(), "\n"),
		strings.TrimRight(stderr.String(), "\n"),
	)
	return out, nil
}

type limitedBuffer struct {
	buf       *bytes.Buffer
	max       int
	truncated int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.max <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.max - l.buf.Len()
	if remaining <= 0 {
		l.truncated += len(p)
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated += len(p) - remaining
		p = p[:remaining]
	}
	return l.buf.Write(p)
}
