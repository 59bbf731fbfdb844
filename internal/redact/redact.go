// Package redact strips sensitive fragments from strings before they are
// logged. Error details from the record store carry data-dir paths, and the
// admin surface handles signing secrets and bearer tokens; none of these
// should reach a log line or a client verbatim.
package redact

import (
	"regexp"
)

// Constants for redaction placeholders
const (
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rules are applied in order. Stack traces go first because they contain
// paths; tokens go before credentials because "token: eyJ..." would
// otherwise be consumed as a generic credential.
var rules = []rule{
	{
		pattern:     regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		placeholder: RedactedStackPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
		placeholder: RedactedJWTPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(secret|password|api[_-]?key|token)(\s*[=:]\s*)['"]?[^'"&\s]{3,}`),
		placeholder: RedactedCredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`),
		placeholder: RedactedPathPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(/[\w.-]+){2,}`),
		placeholder: RedactedPathPlaceholder,
	},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
