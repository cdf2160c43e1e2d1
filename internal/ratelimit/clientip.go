// internal/ratelimit/clientip.go
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Proxies is the set of reverse proxies whose forwarding headers are
// believed. A nil *Proxies trusts nobody and always answers with the peer.
type Proxies struct {
	nets []*net.IPNet
}

// ParseProxies accepts CIDR blocks and bare addresses.
func ParseProxies(entries []string) (*Proxies, error) {
	p := &Proxies{}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q is not an address or CIDR", raw)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		p.nets = append(p.nets, n)
	}
	return p, nil
}

func (p *Proxies) trusted(ip net.IP) bool {
	if p == nil || ip == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the address a request is attributed to. Forwarding
// headers only count when the peer is a trusted proxy. X-Forwarded-For is
// read right to left and the first hop that is not a trusted proxy wins, so
// a client cannot pick its identity by prepending entries.
func (p *Proxies) ClientIP(r *http.Request) string {
	peer := peerIP(r)
	ip := net.ParseIP(peer)
	if !p.trusted(ip) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := net.ParseIP(strings.TrimSpace(hops[i]))
			if hop == nil {
				// Anything left of a garbled hop is unverifiable.
				return ip.String()
			}
			if !p.trusted(hop) {
				return hop.String()
			}
			ip = hop
		}
		return ip.String()
	}
	if xri := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-Ip"))); xri != nil {
		return xri.String()
	}
	return peer
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
