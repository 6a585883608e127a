package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactAlphanumeric(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"document number", "DOE-84-1165", "XXX-##-####"},
		{"plain digits", "123456789", "#########"},
		{"mixed case letters", "AbC", "XXX"},
		{"empty", "", ""},
		{"punctuation preserved", "A1 B2.C3", "X# X#.X#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactAlphanumeric(tt.input))
		})
	}
}

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ipv4", "192.168.1.47", "192.168.1.0"},
		{"ipv6", "2001:db8:85a3::8a2e:370:7334", "2001:0db8:85a3::"},
		{"empty", "", "unknown"},
		{"garbage", "not-an-ip", "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.input))
		})
	}
}
