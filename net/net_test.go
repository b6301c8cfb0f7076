package net

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripPort(t *testing.T) {
	assert.Equal(t, "example.org", stripPort("example.org:80"))
	assert.Equal(t, "example.org", stripPort("example.org"))
	assert.Equal(t, "127.0.0.1", stripPort("127.0.0.1:8080"))
	assert.Equal(t, "::1", stripPort("[::1]:8080"))
}

func newRequest(remoteAddr, forwardedFor string) *http.Request {
	r := &http.Request{RemoteAddr: remoteAddr, Header: http.Header{}}
	if forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return r
}

func TestRemoteAddrPrefersForwardedFor(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "203.0.113.1, 10.0.0.1, 10.0.0.2")
	assert.Equal(t, "203.0.113.1", RemoteAddr(r).String())
}

func TestRemoteAddrStripsPortFromForwardedFor(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "203.0.113.1:33421")
	assert.Equal(t, "203.0.113.1", RemoteAddr(r).String())
}

func TestRemoteAddrFallsBackOnInvalidForwardedFor(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "not-an-address")
	assert.Equal(t, "1.2.3.4", RemoteAddr(r).String())
}

func TestRemoteAddrUsesRequestRemoteAddr(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "")
	assert.Equal(t, "1.2.3.4", RemoteAddr(r).String())
}

func TestRemoteAddrFromLast(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "10.0.0.1, 10.0.0.2, 203.0.113.1")
	assert.Equal(t, "203.0.113.1", RemoteAddrFromLast(r).String())
}

func TestRemoteAddrFromLastSingleEntry(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "203.0.113.1")
	assert.Equal(t, "203.0.113.1", RemoteAddrFromLast(r).String())
}

func TestRemoteAddrFromLastFallsBack(t *testing.T) {
	r := newRequest("1.2.3.4:56789", "10.0.0.1, garbage")
	assert.Equal(t, "1.2.3.4", RemoteAddrFromLast(r).String())

	r = newRequest("1.2.3.4:56789", "")
	assert.Equal(t, "1.2.3.4", RemoteAddrFromLast(r).String())
}
