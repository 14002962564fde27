package store

import (
	"context"
	"testing"

	"threadpilot/internal/llm"
)

func TestMemoryHistoryAppendAndLoad(t *testing.T) {
	s := NewMemoryHistory(0)
	ctx := context.Background()

	if err := s.Append(ctx, "s1", []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Errorf("Load = %+v", got)
	}

	other, _ := s.Load(ctx, "s2")
	if len(other) != 0 {
		t.Errorf("sessions leak: %+v", other)
	}
}

func TestMemoryHistoryCapsMessages(t *testing.T) {
	s := NewMemoryHistory(3)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		if err := s.Append(ctx, "s1", []llm.Message{{Role: "user", Content: text}}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, _ := s.Load(ctx, "s1")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Content != "c" || got[2].Content != "e" {
		t.Errorf("kept wrong window: %+v", got)
	}
}

func TestMemoryHistoryLoadReturnsCopy(t *testing.T) {
	s := NewMemoryHistory(0)
	ctx := context.Background()
	_ = s.Append(ctx, "s1", []llm.Message{{Role: "user", Content: "original"}})

	got, _ := s.Load(ctx, "s1")
	got[0].Content = "mutated"

	again, _ := s.Load(ctx, "s1")
	if again[0].Content != "original" {
		t.Error("Load exposed internal slice")
	}
}

func TestMemoryHistoryClear(t *testing.T) {
	s := NewMemoryHistory(0)
	ctx := context.Background()
	_ = s.Append(ctx, "s1", []llm.Message{{Role: "user", Content: "x"}})
	if err := s.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ := s.Load(ctx, "s1")
	if len(got) != 0 {
		t.Errorf("history not cleared: %+v", got)
	}
}
