// Package privacy keeps subject identities and client addresses out of logs
// in a recoverable form.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/netip"
)

// Pseudonymize returns a stable, non-reversible token for value so log
// lines about the same subject can be correlated without naming them.
func Pseudonymize(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return "anon:" + hex.EncodeToString(sum[:8])
}

// AnonymizeIP masks an address to its /24 (IPv4) or /48 (IPv6) network.
// It accepts a bare IP or a host:port pair such as http.Request.RemoteAddr.
//
//	"192.168.1.47:5012"            -> "192.168.1.0"
//	"[2001:db8:85a3::8a2e]:443"    -> "2001:db8:85a3::"
func AnonymizeIP(addr string) string {
	if addr == "" || addr == "unknown" {
		return "unknown"
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return "invalid"
	}
	ip = ip.Unmap()

	bits := 48
	if ip.Is4() {
		bits = 24
	}
	prefix, err := ip.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
