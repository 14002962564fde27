package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"threadpilot/internal/chat"
)

type promptSink struct {
	mu      sync.Mutex
	nextTS  int
	posts   []chat.Content
	updates []chat.Content
}

func (s *promptSink) PostMessage(ctx context.Context, channel, thread string, content chat.Content) (chat.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTS++
	s.posts = append(s.posts, content)
	return chat.MessageRef{Channel: channel, Timestamp: fmt.Sprintf("ts-%d", s.nextTS)}, nil
}

func (s *promptSink) UpdateMessage(ctx context.Context, ref chat.MessageRef, content chat.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, content)
	return nil
}

func (s *promptSink) DeleteMessage(ctx context.Context, ref chat.MessageRef) error {
	return nil
}

func (s *promptSink) promptID(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, c := range s.posts {
			if p, ok := c.(chat.ApprovalPrompt); ok {
				s.mu.Unlock()
				return p.ID
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no approval prompt posted")
	return ""
}

func (s *promptSink) noticeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.posts {
		if _, ok := c.(chat.Text); ok {
			n++
		}
	}
	return n
}

func testRequest() Request {
	return Request{
		SessionKey: "U1:C1:111.000",
		ToolName:   "exec_command",
		Input:      json.RawMessage(`{"command":"rm -rf /tmp/x"}`),
		Channel:    "C1",
		Thread:     "111.000",
	}
}

func TestAllowRuleShortCircuit(t *testing.T) {
	sink := &promptSink{}
	g, err := NewGate(sink, nil, Options{
		Deadline:  time.Minute,
		AllowRule: func(name string, input json.RawMessage) bool { return name == "read_file" },
	})
	if err != nil {
		t.Fatal(err)
	}
	req := testRequest()
	req.ToolName = "read_file"
	out := g.Request(context.Background(), req)
	if !out.Allow {
		t.Fatal("allow rule must short-circuit to allow")
	}
	if string(out.Input) != string(req.Input) {
		t.Fatal("allow must return the original input")
	}
	if len(sink.posts) != 0 {
		t.Fatal("no prompt may be rendered for pre-authorized tools")
	}
	if g.PendingCount() != 0 {
		t.Fatal("no pending record may be created for pre-authorized tools")
	}
}

func TestApproveReturnsOriginalInput(t *testing.T) {
	sink := &promptSink{}
	g, err := NewGate(sink, nil, Options{Deadline: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	outCh := make(chan Outcome, 1)
	go func() { outCh <- g.Request(context.Background(), testRequest()) }()

	id := sink.promptID(t)
	if !g.Approve(context.Background(), id) {
		t.Fatal("approve should resolve the pending record")
	}
	out := <-outCh
	if !out.Allow {
		t.Fatalf("expected allow, got %+v", out)
	}
	if string(out.Input) != `{"command":"rm -rf /tmp/x"}` {
		t.Fatalf("approve must carry the original stored input, got %s", out.Input)
	}
	if g.PendingCount() != 0 {
		t.Fatal("record must be removed on resolution")
	}
}

func TestDenyIsDistinctFromTimeout(t *testing.T) {
	sink := &promptSink{}
	g, err := NewGate(sink, nil, Options{Deadline: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	outCh := make(chan Outcome, 1)
	go func() { outCh <- g.Request(context.Background(), testRequest()) }()

	id := sink.promptID(t)
	if !g.Deny(context.Background(), id) {
		t.Fatal("deny should resolve the pending record")
	}
	out := <-outCh
	if out.Allow || out.Reason != ReasonUserDenied {
		t.Fatalf("expected user denial, got %+v", out)
	}
	if sink.noticeCount() != 0 {
		t.Fatal("explicit denial must not post a timeout notice")
	}
}

func TestTimeoutResolvesOnceWithSingleNotice(t *testing.T) {
	sink := &promptSink{}
	g, err := NewGate(sink, nil, Options{Deadline: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	outCh := make(chan Outcome, 1)
	go func() { outCh <- g.Request(context.Background(), testRequest()) }()
	id := sink.promptID(t)

	out := <-outCh
	if out.Allow || out.Reason != ReasonTimeout {
		t.Fatalf("expected timeout denial, got %+v", out)
	}
	if g.PendingCount() != 0 {
		t.Fatal("record must be absent after timeout")
	}

	// Stray late click after the deadline fired.
	if g.Approve(context.Background(), id) {
		t.Fatal("late approve must be a no-op")
	}
	if g.Deny(context.Background(), id) {
		t.Fatal("late deny must be a no-op")
	}
	if got := sink.noticeCount(); got != 1 {
		t.Fatalf("expected exactly one paused notice, got %d", got)
	}
}

func TestTimerAfterApproveIsNoOp(t *testing.T) {
	sink := &promptSink{}
	g, err := NewGate(sink, nil, Options{Deadline: 40 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	outCh := make(chan Outcome, 1)
	go func() { outCh <- g.Request(context.Background(), testRequest()) }()
	id := sink.promptID(t)

	if !g.Approve(context.Background(), id) {
		t.Fatal("approve failed")
	}
	out := <-outCh
	if !out.Allow {
		t.Fatalf("expected allow, got %+v", out)
	}

	// Let the (stopped or racing) deadline timer pass; it must not resolve
	// again or post a notice.
	time.Sleep(80 * time.Millisecond)
	if got := sink.noticeCount(); got != 0 {
		t.Fatalf("timer after approve posted %d notices", got)
	}
}

// clickingSink approves the prompt from inside PostMessage, before the post
// returns. Fails the post if the pending record is not yet visible.
type clickingSink struct {
	promptSink
	gate *Gate
}

func (s *clickingSink) PostMessage(ctx context.Context, channel, thread string, content chat.Content) (chat.MessageRef, error) {
	if p, ok := content.(chat.ApprovalPrompt); ok && s.gate != nil {
		if !s.gate.Approve(context.Background(), p.ID) {
			return chat.MessageRef{}, errors.New("record not registered before prompt post")
		}
	}
	return s.promptSink.PostMessage(ctx, channel, thread, content)
}

func TestClickRacingPromptPostStillResolves(t *testing.T) {
	sink := &clickingSink{}
	g, err := NewGate(sink, nil, Options{Deadline: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	sink.gate = g

	out := g.Request(context.Background(), testRequest())
	if !out.Allow {
		t.Fatalf("click during prompt post must win, got %+v", out)
	}
	if string(out.Input) != `{"command":"rm -rf /tmp/x"}` {
		t.Fatalf("approve must carry the original stored input, got %s", out.Input)
	}
	if g.PendingCount() != 0 {
		t.Fatal("record must be removed on resolution")
	}
}

func TestContextCancellationDenies(t *testing.T) {
	sink := &promptSink{}
	g, err := NewGate(sink, nil, Options{Deadline: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	outCh := make(chan Outcome, 1)
	go func() { outCh <- g.Request(ctx, testRequest()) }()
	sink.promptID(t)

	cancel()
	out := <-outCh
	if out.Allow || out.Reason != ReasonCancelled {
		t.Fatalf("expected cancellation denial, got %+v", out)
	}
	if g.PendingCount() != 0 {
		t.Fatal("record must be removed on cancellation")
	}
	if sink.noticeCount() != 0 {
		t.Fatal("cancellation must not post notices")
	}
}
