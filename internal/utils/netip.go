package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientAddr resolves the caller's address. With trustProxy the first
// X-Forwarded-For hop, then X-Real-IP, take precedence over RemoteAddr.
func ClientAddr(r *http.Request, trustProxy bool) (netip.Addr, bool) {
	if trustProxy {
		xff, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, v := range []string{xff, r.Header.Get("X-Real-IP")} {
			if a, ok := parseAddr(v); ok {
				return a, true
			}
		}
	}
	return parseAddr(r.RemoteAddr)
}

// ClientIP is ClientAddr as text, or RemoteAddr when nothing parses.
func ClientIP(r *http.Request, trustProxy bool) string {
	if a, ok := ClientAddr(r, trustProxy); ok {
		return a.String()
	}
	return r.RemoteAddr
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

// AddrSet is an allow list of prefixes. Bare addresses are single-host prefixes.
type AddrSet struct {
	prefixes []netip.Prefix
}

// ParseAddrSet builds a set from CIDRs and addresses. Entries that parse as
// neither are returned in invalid.
func ParseAddrSet(list []string) (set AddrSet, invalid []string) {
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			set.prefixes = append(set.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			set.prefixes = append(set.prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		invalid = append(invalid, s)
	}
	return set, invalid
}

func (s AddrSet) Empty() bool {
	return len(s.prefixes) == 0
}

func (s AddrSet) Contains(a netip.Addr) bool {
	for _, p := range s.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
