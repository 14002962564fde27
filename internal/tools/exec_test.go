package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestExecCommandCapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available")
	}
	tool := &ExecCommandTool{}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"command":"echo hello"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(out, "exit_code: 0") {
		t.Errorf("missing exit code in output:\n%s", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("missing stdout in output:\n%s", out)
	}
}

func TestExecCommandReportsExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available")
	}
	tool := &ExecCommandTool{}
	out, err := tool.Call(context.Background(), json.RawMessage(`{"command":"exit 3"}`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(out, "exit_code: 3") {
		t.Errorf("wrong exit code in output:\n%s", out)
	}
}

func TestExecCommandRequiresCommand(t *testing.T) {
	tool := &ExecCommandTool{}
	if _, err := tool.Call(context.Background(), json.RawMessage(`{"command":"  "}`)); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLimitedBufferCapsOutput(t *testing.T) {
	lb := &limitedBuffer{buf: &bytes.Buffer{}, max: 5}
	n, err := lb.Write([]byte("abcdefgh"))
	if err != nil || n != 8 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if got := lb.buf.String(); got != "abcde" {
		t.Errorf("buffer = %q, want %q", got, "abcde")
	}
	if lb.truncated != 3 {
		t.Errorf("truncated = %d, want 3", lb.truncated)
	}
}

func TestTodoWriteNormalizesItems(t *testing.T) {
	var got []TodoItem
	tool := &TodoWriteTool{OnUpdate: func(items []TodoItem) { got = items }}
	args := `{"todos":[{"text":" plan ","status":"In_Progress"},{"text":"","status":"pending"},{"text":"ship","status":"completed"}]}`
	if _, err := tool.Call(context.Background(), json.RawMessage(args)); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[0].Text != "plan" || got[0].Status != "in_progress" {
		t.Errorf("item 0 = %+v", got[0])
	}
	if got[1].Text != "ship" || got[1].Status != "completed" {
		t.Errorf("item 1 = %+v", got[1])
	}
}

func TestTodoWriteRejectsUnknownStatus(t *testing.T) {
	tool := &TodoWriteTool{}
	args := `{"todos":[{"text":"x","status":"blocked"}]}`
	if _, err := tool.Call(context.Background(), json.RawMessage(args)); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
