// Package secrets keeps venue credentials out of log output. The ingestion
// orchestrator passes a failed task's error message through the Redactor
// before logging it and storing it in the task's checkpoint; alert
// payloads are not passed through it.
package secrets

import (
	"regexp"
	"strings"
)

// Redactor masks sensitive substrings in free-form text.
type Redactor struct {
	patterns    []*regexp.Regexp
	known       []string
	replacement string
}

var defaultPatterns = []string{
	// key=value style credential assignments
	`(?i)(api[_-]?key|secret|password|passphrase|token)["\s]*[:=]["\s]*[^\s"',}&]+`,
	// HTTP auth headers
	`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
	// signature query parameters on signed venue requests
	`(?i)signature=[0-9a-f]{32,}`,
	// JWTs
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// NewRedactor builds a Redactor with the default credential patterns plus
// the literal secret values the process was configured with, so a secret
// that leaks into an error message verbatim is masked even when no pattern
// matches its shape.
func NewRedactor(knownSecrets ...string) *Redactor {
	patterns := make([]*regexp.Regexp, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}

	var known []string
	for _, s := range knownSecrets {
		if len(s) >= 6 { // very short values would mask unrelated text
			known = append(known, s)
		}
	}

	return &Redactor{patterns: patterns, known: known, replacement: "[REDACTED]"}
}

// Redact returns text with every credential-shaped substring and every
// known secret value replaced.
func (r *Redactor) Redact(text string) string {
	for _, s := range r.known {
		text = strings.ReplaceAll(text, s, r.replacement)
	}
	for _, p := range r.patterns {
		text = p.ReplaceAllString(text, r.replacement)
	}
	return text
}

// RedactError is a convenience for the common err.Error() case; nil-safe.
func (r *Redactor) RedactError(err error) string {
	if err == nil {
		return ""
	}
	return r.Redact(err.Error())
}
