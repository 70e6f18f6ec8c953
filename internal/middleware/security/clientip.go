package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPResolver works out the client address of a request. Forwarding headers
// are honoured only when the direct peer is a trusted proxy.
type IPResolver struct {
	trustedProxies []*net.IPNet
}

// NewIPResolver trusts loopback and private networks plus any extra CIDRs.
func NewIPResolver(extra ...string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, cidr := range append([]string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}, extra...) {
		if err := r.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddTrustedProxy adds a trusted proxy network
func (r *IPResolver) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	r.trustedProxies = append(r.trustedProxies, network)
	return nil
}

// ClientIP returns the peer address unless the peer is a trusted proxy. For
// a trusted peer it walks X-Forwarded-For from the right and returns the
// first address that is not itself a trusted proxy; entries left of that
// are client-supplied and ignored. X-Real-IP is the fallback.
func (r *IPResolver) ClientIP(req *http.Request) string {
	directIP, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		directIP = req.RemoteAddr
	}
	parsed := net.ParseIP(directIP)
	if parsed == nil || !r.isTrustedProxy(parsed) {
		return directIP
	}

	if ip := r.forwardedFor(req); ip != "" {
		return ip
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (r *IPResolver) forwardedFor(req *http.Request) string {
	var hops []string
	for _, v := range req.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}

	last := ""
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			// a malformed hop ends the chain we can vouch for
			return last
		}
		if !r.isTrustedProxy(ip) {
			return hop
		}
		last = hop
	}
	return last
}

func (r *IPResolver) isTrustedProxy(ip net.IP) bool {
	for _, network := range r.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
