package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// IPList matches addresses against single IPs and CIDR ranges.
type IPList struct {
	ips  map[string]bool
	nets []*net.IPNet
}

// ParseIPList builds a list from entries; invalid entries are logged and
// skipped.
func ParseIPList(entries []string, logger zerolog.Logger) *IPList {
	l := &IPList{ips: make(map[string]bool)}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in IP list")
				continue
			}
			l.nets = append(l.nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn().Str("entry", entry).Msg("invalid IP in IP list")
			continue
		}
		l.ips[ip.String()] = true
	}
	return l
}

// Len is the number of entries.
func (l *IPList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ips) + len(l.nets)
}

// Contains reports whether ipStr is listed. IPv4-mapped IPv6 addresses
// match their IPv4 form.
func (l *IPList) Contains(ipStr string) bool {
	if l == nil {
		return false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if l.ips[ip.String()] {
		return true
	}
	for _, ipNet := range l.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP extracts the client IP, honouring proxy headers. Use it for keys
// and logs, not for access decisions.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return peerIP(r)
}

// peerIP is the address of the connection itself.
func peerIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
