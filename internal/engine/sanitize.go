package engine

import (
	"regexp"
	"strings"
)

// MaxErrorLength caps persisted error messages, in runes.
const MaxErrorLength = 500

type redaction struct {
	re   *regexp.Regexp
	repl string
}

// Order matters: connection strings and JWTs contain shapes the later rules would split.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|rediss?|amqps?|sqlserver|clickhouse)://[^\s'"]+`), "[REDACTED_CONNECTION]"},
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]{5,}`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9_-]{16,}`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}`), "[REDACTED_KEY]"},
	{regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|key|access[_-]?token|secret|password|passwd|token)(\s*[=:]\s*)["']?[^\s"'&,;]+`), "${1}${2}[REDACTED]"},
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`), "[REDACTED_IP]"},
	{regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){3,7}[0-9a-fA-F]{1,4}\b|\b(?:[0-9a-fA-F]{1,4}:)+:(?:[0-9a-fA-F]{1,4}(?::[0-9a-fA-F]{1,4})*)?|(?:^|\s)::1\b`), "[REDACTED_IP]"},
	{regexp.MustCompile(`\b[A-Za-z]:\\[^\s"']+`), "[REDACTED_PATH]"},
	{regexp.MustCompile(`(^|[\s"'=(])/[^\s"':]+(?:/[^\s"':]+)+`), "${1}[REDACTED_PATH]"},
}

// SanitizeError renders err for persistence: secrets and host details are
// redacted, stack traces dropped and the result length-capped.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeMessage(err.Error())
}

// SanitizeMessage applies the same rules as SanitizeError to a raw message.
func SanitizeMessage(msg string) string {
	if i := strings.Index(msg, "\ngoroutine "); i >= 0 {
		msg = msg[:i]
	}
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.repl)
	}
	msg = CollapseSpace(msg)
	return TruncateRunes(msg, MaxErrorLength, "...")
}
