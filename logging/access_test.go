package logging

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(t *testing.T) *http.Request {
	r, err := http.NewRequest("GET", "http://example.org/apache.png", nil)
	require.NoError(t, err)

	r.RequestURI = "/apache.png"
	r.RemoteAddr = "127.0.0.1:8989"
	r.Header.Set("Referer", "http://example.org/")
	r.Header.Set("User-Agent", "Mozilla/5.0")
	return r
}

func testAccessEntry(t *testing.T) *AccessEntry {
	requestTime, err := time.Parse(dateFormat, "10/Oct/2000:13:55:36 -0700")
	require.NoError(t, err)

	return &AccessEntry{
		Request:      testRequest(t),
		StatusCode:   http.StatusTeapot,
		ResponseSize: 2326,
		Duration:     42 * time.Millisecond,
		RequestTime:  requestTime,
	}
}

func captureAccessLog(t *testing.T, o Options, entry *AccessEntry) string {
	var buf bytes.Buffer
	o.AccessLogOutput = &buf
	Init(o)
	defer Init(Options{AccessLogDisabled: true})

	LogAccess(entry)
	return buf.String()
}

func TestAccessLogFormat(t *testing.T) {
	out := captureAccessLog(t, Options{}, testAccessEntry(t))
	assert.Equal(
		t,
		`127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /apache.png HTTP/1.1" 418 2326 "http://example.org/" "Mozilla/5.0" 42 example.org`,
		strings.TrimSpace(out),
	)
}

func TestAccessLogForwardedFor(t *testing.T) {
	entry := testAccessEntry(t)
	entry.Request.Header.Set("X-Forwarded-For", "192.168.3.3")

	out := captureAccessLog(t, Options{}, entry)
	assert.True(t, strings.HasPrefix(out, "192.168.3.3 "))
}

func TestAccessLogMissingRequest(t *testing.T) {
	entry := testAccessEntry(t)
	entry.Request = nil

	out := captureAccessLog(t, Options{}, entry)
	assert.True(t, strings.HasPrefix(out, `- - - [10/Oct/2000:13:55:36 -0700] "  " 418 2326`))
}

func TestAccessLogJSON(t *testing.T) {
	out := captureAccessLog(t, Options{AccessLogJSONEnabled: true}, testAccessEntry(t))
	assert.Contains(t, out, `"host":"127.0.0.1"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"uri":"/apache.png"`)
}

func TestAccessLogDisabled(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{AccessLogOutput: &buf, AccessLogDisabled: true})
	defer Init(Options{AccessLogDisabled: true})

	LogAccess(testAccessEntry(t))
	assert.Empty(t, buf.String())
}
