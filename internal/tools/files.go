package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"threadpilot/internal/llm"
)

// resolvePath anchors relative paths at the configured workdir.
func resolvePath(workdir, path string) string {
	p := strings.TrimSpace(path)
	if p == "" || filepath.IsAbs(p) || workdir == "" {
		return p
	}
	return filepath.Join(workdir, p)
}

type ListFilesTool struct {
	Workdir string
}

type listFilesArgs struct {
	Path       string `json:"path"`
	Recursive  bool   `json:"recursive"`
	MaxEntries int    `json:"max_entries"`
}

func (t *ListFilesTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "list_files",
		Description: "List files under a path. Supports recursive listing.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string", "description": "Directory to list (default: .)"},
				"recursive":   map[string]any{"type": "boolean"},
				"max_entries": map[string]any{"type": "integer", "description": "Maximum entries returned (default: 2000)"},
			},
		},
	}
}

func (t *ListFilesTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in listFilesArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
	}
	if in.Path == "" {
		in.Path = "."
	}
	if in.MaxEntries <= 0 {
		in.MaxEntries = 2000
	}
	root := resolvePath(t.Workdir, in.Path)

	results := make([]string, 0, 128)
	if in.Recursive {
		var stopErr = errors.New("max entries reached")
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if d.IsDir() {
				rel += string(os.PathSeparator)
			}
			results = append(results, rel)
			if len(results) >= in.MaxEntries {
				return stopErr
			}
			return nil
		})
		if err != nil && !errors.Is(err, stopErr) {
			return "", err
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			if entry.IsDir() {
				name += string(os.PathSeparator)
			}
			results = append(results, name)
			if len(results) >= in.MaxEntries {
				break
			}
		}
	}

	if len(results) == 0 {
		return "(no entries)", nil
	}
	return strings.Join(results, "\n"), nil
}

type ReadFileTool struct {
	Workdir string
}

type readFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (t *ReadFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file. Supports line ranges.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":       map[string]any{"type": "string"},
				"start_line": map[string]any{"type": "integer"},
				"end_line":   map[string]any{"type": "integer"},
			},
			"required": []string{"path"},
		},
	}
}

func (t *ReadFileTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in readFileArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", err
	}
	if in.Path == "" {
		return "", errors.New("path is required")
	}
	data, err := os.ReadFile(resolvePath(t.Workdir, in.Path))
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")

	start := in.StartLine
	end := in.EndLine
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return "", fmt.Errorf("invalid line range: %d-%d", start, end)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

type WriteFileTool struct {
	Workdir string
}

type writeFileArgs struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	CreateDirs bool   `json:"create_dirs"`
	Append     bool   `json:"append"`
}

func (t *WriteFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file. Use append=true to add to an existing file.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string"},
				"content":     map[string]any{"type": "string"},
				"create_dirs": map[string]any{"type": "boolean"},
				"append":      map[string]any{"type": "boolean"},
			},
			"required": []string{"path", "content"},
		},
	}
}

func (t *WriteFileTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in writeFileArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("write_file: invalid JSON arguments: %w", err)
	}
	if in.Path == "" {
		return "", errors.New("path is required")
	}
	path := resolvePath(t.Workdir, in.Path)
	if in.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if in.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(in.Content); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path), nil
}
