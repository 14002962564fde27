package llm

import (
	"regexp"
	"strings"
)

var (
	contextOverflowHintRe = regexp.MustCompile(`(?i)context window.*(too (?:large|long)|exceed|limit|max(?:imum)?)|prompt.*(too (?:large|long)|exceed|limit)`)
	rateLimitHintRe       = regexp.MustCompile(`(?i)rate limit|too many requests|quota|throttl|429\b`)
)

// IsLikelyContextOverflow reports whether err looks like the request blew the
// model's context window. Providers word this inconsistently, so this is a
// heuristic over the error text.
func IsLikelyContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	text := strings.TrimSpace(err.Error())
	if text == "" {
		return false
	}
	// Rate limit errors can match broad overflow wording.
	if rateLimitHintRe.MatchString(text) {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "request_too_large") ||
		strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "exceeds model context window") {
		return true
	}
	return contextOverflowHintRe.MatchString(text)
}
