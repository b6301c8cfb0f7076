package logging

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggingWriterCountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := NewLoggingWriter(rec)

	lw.Write([]byte("Hello, "))
	lw.Write([]byte("world!"))

	assert.Equal(t, int64(13), lw.GetBytes())
	assert.Equal(t, "Hello, world!", rec.Body.String())
}

func TestLoggingWriterStatusCode(t *testing.T) {
	rec := httptest.NewRecorder()
	lw := NewLoggingWriter(rec)

	assert.Equal(t, 200, lw.GetCode())

	lw.WriteHeader(418)
	assert.Equal(t, 418, lw.GetCode())
	assert.Equal(t, 418, rec.Code)
}
