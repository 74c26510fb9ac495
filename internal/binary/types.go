package binary

import (
	"fmt"
	"strings"
)

// VerificationMethod selects how a downloaded archive is checked before it is
// extracted.
type VerificationMethod int

const (
	// VerificationNone skips verification.
	VerificationNone VerificationMethod = iota
	// VerificationSHA256 checks the archive against the release sha256sums.txt.
	VerificationSHA256
	// VerificationGPG checks a detached OpenPGP signature against a keyring.
	VerificationGPG
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "gpg"
	case VerificationSHA256:
		return "sha256"
	case VerificationNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseVerificationMethod parses "none", "sha256" or "gpg".
func ParseVerificationMethod(s string) (VerificationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return VerificationNone, nil
	case "sha256":
		return VerificationSHA256, nil
	case "gpg":
		return VerificationGPG, nil
	default:
		return VerificationNone, fmt.Errorf("unknown verification method: %q", s)
	}
}
