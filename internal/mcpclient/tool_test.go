package mcpclient

import "testing"

func TestLocalToolName(t *testing.T) {
	cases := []struct {
		server string
		tool   string
		want   string
	}{
		{"github", "search_issues", "mcp__github__search_issues"},
		{"my server", "run/query", "mcp__my_server__run_query"},
		{"", "ping", "mcp__ping"},
		{"github", "", ""},
	}
	for _, tc := range cases {
		if got := localToolName(tc.server, tc.tool); got != tc.want {
			t.Errorf("localToolName(%q, %q) = %q, want %q", tc.server, tc.tool, got, tc.want)
		}
	}
}

func TestLoadConfigMissingFileIsEmpty(t *testing.T) {
	cfg, err := LoadConfig("testdata/does-not-exist.json")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("expected no servers, got %d", len(cfg.Servers))
	}
}
