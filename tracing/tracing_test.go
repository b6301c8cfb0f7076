package tracing

import (
	"testing"

	ot "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracer(t *testing.T) {
	for _, tt := range []struct {
		msg  string
		opts []string
		fail bool
	}{
		{"no arguments", nil, true},
		{"unsupported tracer", []string{"jaeger"}, true},
		{"noop", []string{"noop"}, false},
		{"basic", []string{"basic"}, false},
		{"basic with options", []string{"basic", "sample-modulo=2", "max-logs-per-span=10", "drop-all-logs"}, false},
		{"basic with invalid option", []string{"basic", "what-is-this"}, true},
		{"basic with missing argument", []string{"basic", "sample-modulo"}, true},
		{"basic with invalid argument", []string{"basic", "sample-modulo=x"}, true},
		{"basic with zero modulo", []string{"basic", "sample-modulo=0"}, true},
	} {
		t.Run(tt.msg, func(t *testing.T) {
			tracer, err := InitTracer(tt.opts)
			if tt.fail {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, tracer)
		})
	}
}

func TestInitTracerNoop(t *testing.T) {
	tracer, err := InitTracer([]string{"noop"})
	require.NoError(t, err)
	assert.IsType(t, &ot.NoopTracer{}, tracer)
}

func TestTestTracerRecordsSpans(t *testing.T) {
	tracer, recorder := InitTestTracer()

	span := tracer.StartSpan("test-operation")
	span.SetTag("color", "green")
	span.Finish()

	spans := recorder.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "test-operation", spans[0].Operation)
	assert.Equal(t, "green", spans[0].Tags["color"])
}
