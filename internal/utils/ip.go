package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ParseCIDRs parses a list of CIDR blocks. Bare IPs are accepted as single
// host blocks.
func ParseCIDRs(list []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(list))
	for _, raw := range list {
		cidr := strings.TrimSpace(raw)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", cidr)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			cidr = fmt.Sprintf("%s/%d", cidr, bits)
		}
		_, netblock, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", raw, err)
		}
		nets = append(nets, netblock)
	}
	return nets, nil
}

// IsAllowedIP checking if the IP address enters the allowed CIDR subnetwork
func IsAllowedIP(ip string, allowed []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, netblock := range allowed {
		if netblock.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
