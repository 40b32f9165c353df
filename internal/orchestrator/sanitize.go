package orchestrator

import "strings"

const maxCustomPromptLen = 500

// redactedPatterns are injection attempts replaced with "[redacted]" rather
// than rejecting the prompt outright.
var redactedPatterns = []string{
	"ignore previous", "forget instructions", "system:", "assistant:", "user:",
	"```", "exec(", "eval(", "import ", "__", "os.", "subprocess", "rm -rf",
}

// integrityViolationPatterns reject the custom prompt entirely: these would
// disable a mandatory phase if honored.
var integrityViolationPatterns = []string{
	"skip warehouse", "bypass warehouse", "skip snowflake", "bypass snowflake",
	"ignore snowflake", "no snowflake", "disable snowflake", "skip investigation",
	"bypass analysis", "avoid analysis", "only use",
}

// SanitizeCustomPrompt applies three sanitisation stages in order:
// length bound, pattern redaction, then integrity-violation rejection. It
// returns the sanitised prompt and whether it is safe to use; callers must
// fall back to the unmodified base prompt when ok is false.
func SanitizeCustomPrompt(raw string) (sanitized string, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	if len(trimmed) > maxCustomPromptLen {
		trimmed = trimmed[:maxCustomPromptLen]
	}

	for _, pattern := range redactedPatterns {
		trimmed = replaceCaseInsensitive(trimmed, pattern, "[redacted]")
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range integrityViolationPatterns {
		if strings.Contains(lower, pattern) {
			return "", false
		}
	}

	return trimmed, true
}

func replaceCaseInsensitive(s, pattern, replacement string) string {
	lower := strings.ToLower(s)
	patternLower := strings.ToLower(pattern)
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lower[i:], patternLower)
		if idx < 0 {
			b.WriteString(s[i:])
			break
		}
		b.WriteString(s[i : i+idx])
		b.WriteString(replacement)
		i += idx + len(pattern)
	}
	return b.String()
}
