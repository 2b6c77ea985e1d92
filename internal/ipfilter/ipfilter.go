package ipfilter

import (
	"fmt"
	"net/netip"
	"strings"
)

// ValidIPv4 reports whether entry is a strict dotted-quad IPv4 literal.
// CIDR ranges, IPv6 and zone suffixes are rejected; leading zeros in an
// octet are rejected by the parser.
func ValidIPv4(entry string) bool {
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return false
	}
	return addr.Is4()
}

// Validate parses a newline-separated allowlist. Lines are trimmed and
// empty lines dropped; every remaining entry must be a valid IPv4 literal.
// The first invalid entry fails the whole list, naming that entry. Empty
// input is valid and means "no restriction".
func Validate(text string) ([]string, error) {
	var ips []string
	for _, line := range strings.Split(text, "\n") {
		entry := strings.TrimSpace(line)
		if entry == "" {
			continue
		}
		if !ValidIPv4(entry) {
			return nil, fmt.Errorf("invalid IPv4 address: %s", entry)
		}
		ips = append(ips, entry)
	}
	return ips, nil
}

// Permitted reports whether sourceIP may consume a grant restricted to
// allowlist. An empty allowlist permits every source address.
func Permitted(sourceIP string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, ip := range allowlist {
		if ip == sourceIP {
			return true
		}
	}
	return false
}
