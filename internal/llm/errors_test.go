package llm

import (
	"errors"
	"testing"
)

func TestIsLikelyContextOverflow(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"", false},
		{"connection reset by peer", false},
		{"prompt is too long: 210000 tokens > 200000 maximum", true},
		{"request_too_large: request exceeds the maximum size", true},
		{"This model's maximum context length is 128000 tokens", true},
		{"context window exceeded the limit", true},
		{"rate limit reached for requests", false},
		{"429 too many requests", false},
	}
	for _, tc := range cases {
		var err error
		if tc.text != "" {
			err = errors.New(tc.text)
		}
		if got := IsLikelyContextOverflow(err); got != tc.want {
			t.Errorf("%q: got %v want %v", tc.text, got, tc.want)
		}
	}
}
