// Package tracing constructs the opentracing tracer of the proxy from
// an option list.
package tracing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	basic "github.com/opentracing/basictracer-go"
	ot "github.com/opentracing/opentracing-go"
)

var (
	// ErrUnsupportedTracer is returned when an unsupported tracer
	// implementation is requested.
	ErrUnsupportedTracer = errors.New("unsupported tracer")

	// ErrMissingArguments is returned when an empty option list is
	// passed to InitTracer.
	ErrMissingArguments = errors.New("no tracer arguments passed")
)

// InitTracer creates a tracer from an option list. The first element
// names the implementation, the remaining elements are settings of it:
//
//	noop
//	basic sample-modulo=1 max-logs-per-span=8 drop-all-logs
//
// The basic tracer records finished spans in memory, it is meant for
// tests and local troubleshooting, not for production use.
func InitTracer(opts []string) (ot.Tracer, error) {
	if len(opts) == 0 {
		return nil, ErrMissingArguments
	}

	name, opts := opts[0], opts[1:]
	switch name {
	case "noop":
		return &ot.NoopTracer{}, nil
	case "basic":
		return initBasicTracer(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTracer, name)
	}
}

// InitTestTracer returns a basic tracer that samples every trace,
// together with the recorder holding the finished spans.
func InitTestTracer() (ot.Tracer, *basic.InMemorySpanRecorder) {
	recorder := basic.NewInMemoryRecorder()
	tracer := basic.NewWithOptions(basic.Options{
		ShouldSample: func(uint64) bool { return true },
		Recorder:     recorder,
	})

	return tracer, recorder
}

func initBasicTracer(opts []string) (ot.Tracer, error) {
	var (
		dropAllLogs    bool
		sampleModulo   uint64 = 1
		maxLogsPerSpan int
		err            error
	)

	for _, o := range opts {
		k, v, _ := strings.Cut(o, "=")
		switch k {
		case "drop-all-logs":
			dropAllLogs = true

		case "sample-modulo":
			if v == "" {
				return nil, missingArg(k)
			}
			sampleModulo, err = strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, invalidArg(k, err)
			}
			if sampleModulo == 0 {
				return nil, invalidArg(k, errors.New("must be positive"))
			}

		case "max-logs-per-span":
			if v == "" {
				return nil, missingArg(k)
			}
			maxLogsPerSpan, err = strconv.Atoi(v)
			if err != nil {
				return nil, invalidArg(k, err)
			}

		default:
			return nil, fmt.Errorf("invalid basic tracer option: %s", k)
		}
	}

	return basic.NewWithOptions(basic.Options{
		DropAllLogs:    dropAllLogs,
		ShouldSample:   func(traceID uint64) bool { return traceID%sampleModulo == 0 },
		MaxLogsPerSpan: maxLogsPerSpan,
		Recorder:       basic.NewInMemoryRecorder(),
	}), nil
}

func missingArg(opt string) error {
	return fmt.Errorf("missing argument for %s option", opt)
}

func invalidArg(opt string, err error) error {
	return fmt.Errorf("invalid argument for %s option: %v", opt, err)
}
