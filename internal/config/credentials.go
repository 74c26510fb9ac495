package config

import (
	"regexp"
	"strings"
)

// credentialPattern represents a pattern that might indicate a hardcoded
// credential, typically in session.env.
type credentialPattern struct {
	kind    string
	pattern *regexp.Regexp
}

var credentialPatterns = []credentialPattern{
	{
		kind:    "token",
		pattern: regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token|bearer)\s*=\s*['"][a-zA-Z0-9_.-]{15,}['"]`),
	},
	{
		kind:    "password",
		pattern: regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*['"].+['"]`),
	},
	{
		kind:    "secret",
		pattern: regexp.MustCompile(`(?i)(secret|secret[_-]?key|private[_-]?key)\s*=\s*['"][a-zA-Z0-9_-]{15,}['"]`),
	},
	{
		kind:    "aws key",
		pattern: regexp.MustCompile(`(?i)(aws[_-]?access[_-]?key[_-]?id|aws[_-]?secret[_-]?access[_-]?key)\s*=\s*['"][A-Za-z0-9/+]{16,}['"]`),
	},
	{
		kind:    "github token",
		pattern: regexp.MustCompile(`gh[ps]_[a-zA-Z0-9]{36,}`),
	},
}

// CredentialFinding is one suspicious line. The value itself is never
// recorded.
type CredentialFinding struct {
	Kind string
	Line int // 1-based
}

// ScanCredentials looks for hardcoded secrets in config source. Lua comments
// are scanned too.
func ScanCredentials(content string) []CredentialFinding {
	var findings []CredentialFinding
	for i, line := range strings.Split(content, "\n") {
		for _, p := range credentialPatterns {
			if p.pattern.MatchString(line) {
				findings = append(findings, CredentialFinding{Kind: p.kind, Line: i + 1})
			}
		}
	}
	return findings
}
