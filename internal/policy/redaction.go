package policy

import "regexp"

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	apiKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{6,}`)
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/\-]+=*`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Run card redaction before phone to avoid card numbers being classified as phone.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactSecrets masks API keys and bearer tokens.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := bearerPattern.ReplaceAllString(input, "Bearer [REDACTED_TOKEN]")
	out = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	return out, out != input
}

// Redact applies secret and PII masking. Upstream error bodies go through this
// before they are logged or returned.
func Redact(input string) string {
	out, _ := RedactSecrets(input)
	out, _ = RedactPII(out)
	return out
}
