package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Summarize renders a one-line human description of a tool call for the
// activity log shown in chat. Arguments may be malformed; the summary is
// best-effort and never fails.
func Summarize(name string, args json.RawMessage) string {
	fields := parseArgs(args)
	switch name {
	case "exec_command":
		if cmd := firstLine(fields["command"]); cmd != "" {
			return fmt.Sprintf("Running `%s`", truncate(cmd, 120))
		}
		return "Running a command"
	case "read_file":
		if p := fields["path"]; p != "" {
			return "Reading " + p
		}
		return "Reading a file"
	case "write_file":
		if p := fields["path"]; p != "" {
			return "Writing " + p
		}
		return "Writing a file"
	case "list_files":
		if p := fields["path"]; p != "" && p != "." {
			return "Listing " + p
		}
		return "Listing files"
	case "todo_write":
		return "Updating task list"
	}
	return "Calling " + name
}

// parseArgs pulls string-valued top-level fields out of a JSON object.
// Non-string values and invalid JSON are ignored.
func parseArgs(args json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(args) == 0 {
		return out
	}
	var raw map[string]any
	if err := json.Unmarshal(args, &raw); err != nil {
		return out
	}
	for key, value := range raw {
		if s, ok := value.(string); ok {
			out[key] = strings.TrimSpace(s)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
