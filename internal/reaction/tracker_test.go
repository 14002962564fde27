package reaction

import (
	"context"
	"errors"
	"testing"

	"threadpilot/internal/chat"
)

type indicatorCall struct {
	op   string
	name string
}

type fakeIndicators struct {
	calls      []indicatorCall
	failRemove bool
}

func (f *fakeIndicators) AddIndicator(ctx context.Context, ref chat.MessageRef, name string) error {
	f.calls = append(f.calls, indicatorCall{op: "add", name: name})
	return nil
}

func (f *fakeIndicators) RemoveIndicator(ctx context.Context, ref chat.MessageRef, name string) error {
	if f.failRemove {
		return errors.New("no_reaction")
	}
	f.calls = append(f.calls, indicatorCall{op: "remove", name: name})
	return nil
}

var ref = chat.MessageRef{Channel: "C1", Timestamp: "111.000"}

func TestSetSuppressesRedundantUpdates(t *testing.T) {
	fake := &fakeIndicators{}
	tr := NewTracker(fake, nil)
	ctx := context.Background()

	tr.Set(ctx, "s1", ref, IndicatorThinking)
	tr.Set(ctx, "s1", ref, IndicatorThinking)
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single add, got %v", fake.calls)
	}
}

func TestSetReplacesPrevious(t *testing.T) {
	fake := &fakeIndicators{}
	tr := NewTracker(fake, nil)
	ctx := context.Background()

	tr.Set(ctx, "s1", ref, IndicatorThinking)
	tr.Set(ctx, "s1", ref, IndicatorDone)

	want := []indicatorCall{
		{op: "add", name: IndicatorThinking},
		{op: "remove", name: IndicatorThinking},
		{op: "add", name: IndicatorDone},
	}
	if len(fake.calls) != len(want) {
		t.Fatalf("unexpected calls: %v", fake.calls)
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Fatalf("call %d: got %v want %v", i, fake.calls[i], want[i])
		}
	}
}

func TestSetToleratesRemoveFailure(t *testing.T) {
	fake := &fakeIndicators{}
	tr := NewTracker(fake, nil)
	ctx := context.Background()

	tr.Set(ctx, "s1", ref, IndicatorThinking)
	fake.failRemove = true
	tr.Set(ctx, "s1", ref, IndicatorError)

	last := fake.calls[len(fake.calls)-1]
	if last.op != "add" || last.name != IndicatorError {
		t.Fatalf("new indicator must still be applied, got %v", fake.calls)
	}
}

func TestClear(t *testing.T) {
	fake := &fakeIndicators{}
	tr := NewTracker(fake, nil)
	ctx := context.Background()

	tr.Set(ctx, "s1", ref, IndicatorWorking)
	tr.Clear(ctx, "s1", ref)
	last := fake.calls[len(fake.calls)-1]
	if last.op != "remove" || last.name != IndicatorWorking {
		t.Fatalf("clear must remove without adding, got %v", fake.calls)
	}
}

func TestProgressIndicator(t *testing.T) {
	cases := []struct {
		name  string
		items []chat.TaskItem
		want  string
	}{
		{"empty", nil, ""},
		{"all completed", []chat.TaskItem{
			{Status: chat.TaskCompleted}, {Status: chat.TaskCompleted},
		}, IndicatorTasksDone},
		{"none completed one active", []chat.TaskItem{
			{Status: chat.TaskInProgress}, {Status: chat.TaskPending},
		}, IndicatorTasksActive},
		{"partial", []chat.TaskItem{
			{Status: chat.TaskCompleted}, {Status: chat.TaskPending},
		}, IndicatorTasksPending},
		{"all pending", []chat.TaskItem{
			{Status: chat.TaskPending},
		}, IndicatorTasksPending},
	}
	for _, tc := range cases {
		if got := ProgressIndicator(tc.items); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}
