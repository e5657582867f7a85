package handshake

import (
	"fmt"
	"strings"
)

// Redaction is the way a rejected token appears in logs.
type Redaction int

const (
	// RedactPrefix keeps the first few characters of the token.
	RedactPrefix Redaction = iota
	// RedactHidden drops the token entirely.
	RedactHidden
	// RedactNone logs the token as is.
	RedactNone
)

const redactPrefixLen = 4

// ParseRedaction parses a redaction mode name: prefix, hidden or none. An
// empty name means prefix.
func ParseRedaction(s string) (Redaction, error) {
	switch strings.ToLower(s) {
	case "", "prefix":
		return RedactPrefix, nil
	case "hidden":
		return RedactHidden, nil
	case "none":
		return RedactNone, nil
	default:
		return 0, fmt.Errorf("unknown token redaction %q", s)
	}
}

func (r Redaction) String() string {
	switch r {
	case RedactHidden:
		return "hidden"
	case RedactNone:
		return "none"
	default:
		return "prefix"
	}
}

// Apply returns token in the form allowed by r.
func (r Redaction) Apply(token string) string {
	switch r {
	case RedactNone:
		return token
	case RedactHidden:
		return "<redacted>"
	}
	runes := []rune(token)
	if len(runes) <= redactPrefixLen {
		return "<redacted>"
	}
	return fmt.Sprintf("%s... (%d chars)", string(runes[:redactPrefixLen]), len(runes))
}
