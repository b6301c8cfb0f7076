// Package net provides network related utilities, among them the
// shared Redis ring client used by the cluster rate limiting.
package net

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// strip port from addresses with hostname, ipv4 or ipv6
func stripPort(address string) string {
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}

	return address
}

// RemoteAddr returns the remote address of the client. When the
// 'X-Forwarded-For' header is set, then it is used instead. This is
// how most often proxies behave. Wikipedia shows the format
// https://en.wikipedia.org/wiki/X-Forwarded-For#Format
//
// Example:
//
//	X-Forwarded-For: client, proxy1, proxy2
func RemoteAddr(r *http.Request) netip.Addr {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		s, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(stripPort(strings.TrimSpace(s))); err == nil {
			return addr
		}
	}

	addr, _ := netip.ParseAddr(stripPort(r.RemoteAddr))
	return addr
}

// RemoteAddrFromLast returns the remote address of the client taking
// the last entry of the 'X-Forwarded-For' header instead of the first.
// This is known to be the client address appended by AWS Application
// LoadBalancer. AWS docs
// https://docs.aws.amazon.com/elasticloadbalancing/latest/classic/x-forwarded-headers.html
//
// Example:
//
//	X-Forwarded-For: ip-address-1, ip-address-2, client-ip-address
func RemoteAddrFromLast(r *http.Request) netip.Addr {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		addr, _ := netip.ParseAddr(stripPort(r.RemoteAddr))
		return addr
	}

	last := xff
	if i := strings.LastIndex(xff, ","); i != -1 {
		last = xff[i+1:]
	}

	addr, err := netip.ParseAddr(stripPort(strings.TrimSpace(last)))
	if err != nil {
		addr, _ := netip.ParseAddr(stripPort(r.RemoteAddr))
		return addr
	}
	return addr
}
