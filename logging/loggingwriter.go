package logging

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// LoggingWriter is an http.ResponseWriter that remembers the status
// code and the number of body bytes written, so that they can be
// reported in the access log.
type LoggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

// NewLoggingWriter wraps an http.ResponseWriter.
func NewLoggingWriter(writer http.ResponseWriter) *LoggingWriter {
	return &LoggingWriter{writer: writer}
}

func (lw *LoggingWriter) Write(data []byte) (count int, err error) {
	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

func (lw *LoggingWriter) WriteHeader(code int) {
	lw.writer.WriteHeader(code)
	if code == 0 {
		code = 200
	}

	lw.code = code
}

func (lw *LoggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *LoggingWriter) Flush() {
	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *LoggingWriter) Unwrap() http.ResponseWriter {
	return lw.writer
}

func (lw *LoggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hij, ok := lw.writer.(http.Hijacker); ok {
		return hij.Hijack()
	}

	return nil, nil, fmt.Errorf("could not hijack connection")
}

// GetCode returns the status code of the response, or 200 when no
// explicit status was written.
func (lw *LoggingWriter) GetCode() int {
	if lw.code == 0 {
		return http.StatusOK
	}

	return lw.code
}

// GetBytes returns the number of body bytes written so far.
func (lw *LoggingWriter) GetBytes() int64 {
	return lw.bytes
}
