package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ipv4", input: "192.168.1.47", expected: "192.168.1.0"},
		{name: "ipv4 with port", input: "10.1.2.3:5012", expected: "10.1.2.0"},
		{name: "ipv4 mapped ipv6", input: "::ffff:172.16.50.255", expected: "172.16.50.0"},
		{name: "ipv6", input: "2001:db8:85a3::8a2e:370:7334", expected: "2001:db8:85a3::"},
		{name: "ipv6 with port", input: "[2001:db8:85a3::8a2e]:443", expected: "2001:db8:85a3::"},
		{name: "empty", input: "", expected: "unknown"},
		{name: "garbage", input: "not-an-ip", expected: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AnonymizeIP(tt.input))
		})
	}
}

func TestPseudonymize(t *testing.T) {
	a := Pseudonymize("alice")
	assert.Equal(t, a, Pseudonymize("alice"), "stable across calls")
	assert.NotEqual(t, a, Pseudonymize("bob"))
	assert.NotContains(t, a, "alice")
	assert.Len(t, a, len("anon:")+16)
	assert.Empty(t, Pseudonymize(""))
}
