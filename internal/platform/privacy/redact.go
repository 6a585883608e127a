// Package privacy provides utilities for keeping personally identifiable
// information (PII) out of logs, traces, and diagnostic payloads.
package privacy

import (
	"fmt"
	"net"
	"strings"
	"unicode"
)

// RedactAlphanumeric masks every letter as X and every digit as # while
// preserving punctuation and length, so redacted document numbers remain
// recognizable in shape ("DOE-84-1165" -> "XXX-##-####") without exposing the
// underlying value.
func RedactAlphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune('X')
		case unicode.IsDigit(r):
			b.WriteRune('#')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AnonymizeIP truncates an IP address to remove the host-identifying portion.
//
// For IPv4 addresses, the last octet is zeroed (masking to a /24 network).
// For IPv6 addresses, only the /48 prefix is kept.
//
// Returns "invalid" for unparseable IP addresses, and "unknown" for empty strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
