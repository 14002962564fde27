package slackgw

import (
	"testing"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"threadpilot/internal/chat"
)

func testGateway(allowedUsers ...string) *Gateway {
	return &Gateway{
		logger:    zap.NewNop(),
		botUserID: "UBOT",
		allowed:   allowlist(allowedUsers),
	}
}

func clickFrom(user string) slack.InteractionCallback {
	cb := slack.InteractionCallback{
		Type: slack.InteractionTypeBlockActions,
		User: slack.User{ID: user},
	}
	cb.ActionCallback.BlockActions = []*slack.BlockAction{
		{ActionID: actionApprove, Value: "req-1"},
	}
	return cb
}

func TestDeliverFiltersUnlistedUsers(t *testing.T) {
	g := testGateway("U1")

	var got []chat.Inbound
	record := func(msg chat.Inbound) { got = append(got, msg) }

	g.deliver(record, chat.Inbound{UserID: "U1", Channel: "C1", TS: "1.0", Text: "hi"})
	g.deliver(record, chat.Inbound{UserID: "U2", Channel: "C1", TS: "2.0", Text: "hi"})

	if len(got) != 1 || got[0].UserID != "U1" {
		t.Fatalf("delivered = %+v, want only U1's message", got)
	}
}

func TestDeliverEmptyAllowlistAdmitsEveryone(t *testing.T) {
	g := testGateway()

	delivered := 0
	g.deliver(func(chat.Inbound) { delivered++ }, chat.Inbound{UserID: "U9", Channel: "C1", TS: "1.0", Text: "hi"})
	if delivered != 1 {
		t.Fatal("empty allowlist must admit every member")
	}
}

func TestInteractionFiltersUnlistedUsers(t *testing.T) {
	g := testGateway("U1")

	var got []chat.Action
	record := func(a chat.Action) { got = append(got, a) }

	g.handleInteraction(clickFrom("U2"), record)
	if len(got) != 0 {
		t.Fatalf("unlisted user's click dispatched: %+v", got)
	}

	g.handleInteraction(clickFrom("U1"), record)
	if len(got) != 1 || got[0].Kind != chat.ActionApprove || got[0].Token != "req-1" {
		t.Fatalf("listed user's click not dispatched: %+v", got)
	}
}

func TestAllowlistTrimsBlankEntries(t *testing.T) {
	if m := allowlist([]string{" ", ""}); m != nil {
		t.Fatalf("blank-only list must behave as empty, got %v", m)
	}
	m := allowlist([]string{" U1 ", "U2"})
	if !m["U1"] || !m["U2"] {
		t.Fatalf("entries not trimmed: %v", m)
	}
}
