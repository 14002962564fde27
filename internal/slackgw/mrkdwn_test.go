package slackgw

import (
	"strings"
	"testing"
)

func TestToMrkdwnBasics(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"**bold** words", "*bold* words"},
		{"*emphasis* words", "_emphasis_ words"},
		{"use `go test` here", "use `go test` here"},
		{"# Title", "*Title*"},
		{"[docs](https://example.com)", "<https://example.com|docs>"},
		{"<https://example.com>", "<https://example.com>"},
	}
	for _, tc := range cases {
		if got := ToMrkdwn(tc.in); got != tc.want {
			t.Errorf("ToMrkdwn(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToMrkdwnCodeBlock(t *testing.T) {
	got := ToMrkdwn("before\n\n```\nfmt.Println(1)\n```\n\nafter")
	if !strings.Contains(got, "```\nfmt.Println(1)\n```") {
		t.Errorf("code fence lost:\n%s", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Errorf("surrounding text lost:\n%s", got)
	}
}

func TestToMrkdwnLists(t *testing.T) {
	got := ToMrkdwn("- one\n- two\n")
	if !strings.Contains(got, "• one") || !strings.Contains(got, "• two") {
		t.Errorf("bullets missing:\n%s", got)
	}

	got = ToMrkdwn("1. first\n2. second\n")
	if !strings.Contains(got, "1. first") || !strings.Contains(got, "2. second") {
		t.Errorf("ordinals missing:\n%s", got)
	}
}

func TestToMrkdwnBlockquote(t *testing.T) {
	got := ToMrkdwn("> quoted line")
	if !strings.Contains(got, "> quoted line") {
		t.Errorf("quote marker missing:\n%s", got)
	}
}
