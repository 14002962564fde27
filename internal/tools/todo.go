package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"threadpilot/internal/llm"
)

// TodoItem is one entry of the agent's self-reported plan.
type TodoItem struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// TodoWriteTool lets the agent publish its task list. The result never goes
// back to the chat as text; OnUpdate feeds the task-list slot instead.
type TodoWriteTool struct {
	OnUpdate func(items []TodoItem)
}

type todoWriteArgs struct {
	Todos []TodoItem `json:"todos"`
}

func (t *TodoWriteTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: "todo_write",
		Description: "Replace your current task list. Call whenever the plan changes or an item " +
			"starts or finishes. Statuses: pending, in_progress, completed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"todos": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"text":   map[string]any{"type": "string"},
							"status": map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
						},
						"required": []string{"text", "status"},
					},
				},
			},
			"required": []string{"todos"},
		},
	}
}

func (t *TodoWriteTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in todoWriteArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("todo_write: invalid JSON arguments: %w", err)
	}
	items := make([]TodoItem, 0, len(in.Todos))
	for _, item := range in.Todos {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		status := strings.ToLower(strings.TrimSpace(item.Status))
		switch status {
		case "pending", "in_progress", "completed":
		default:
			return "", fmt.Errorf("todo_write: unsupported status %q", item.Status)
		}
		items = append(items, TodoItem{Text: text, Status: status})
	}
	if len(items) == 0 {
		return "", errors.New("todo_write: todos is empty")
	}
	if t.OnUpdate != nil {
		t.OnUpdate(items)
	}
	return fmt.Sprintf("task list updated (%d items)", len(items)), nil
}
