package apikey

import (
	"net"
	"strings"
)

// IPAllowed evaluates the key's allow-list against the trusted-proxy
// resolved client address. An empty list means no restriction; entries
// match permissively: "*" matches anything, CIDR entries match by network
// membership, everything else by exact string equality.
func IPAllowed(allowed []string, ip string) bool {
	if len(allowed) == 0 {
		return true
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "*":
			return true
		case strings.Contains(entry, "/"):
			_, network, err := net.ParseCIDR(entry)
			if err == nil && parsed != nil && network.Contains(parsed) {
				return true
			}
		case entry == ip:
			return true
		}
	}
	return false
}
