package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// RedactPII masks contact details a candidate may speak or paste: email
// addresses, profile links, card numbers and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{urlPattern, "[REDACTED_URL]"},
		// Cards before phones, or long card numbers match as phones.
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// LogSafe prepares transcript text for a log line: PII is masked, whitespace
// collapsed and the result cut to at most limit runes.
func LogSafe(input string, limit int) string {
	out, _ := RedactPII(input)
	out = strings.TrimSpace(spacePattern.ReplaceAllString(out, " "))
	if limit <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= limit {
		return out
	}
	return string(runes[:limit]) + "..."
}
