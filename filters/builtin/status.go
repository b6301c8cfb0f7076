package builtin

import (
	"fmt"
	"net/http"

	"github.com/viaduct-io/viaduct/filters"
)

type statusSpec struct{}

type statusFilter struct {
	code int
}

// NewSetStatus creates a filter specification whose instances overwrite
// the status code of the response, regardless of what the backend or the
// rest of the chain produced:
//
//	setStatus=418
//
// Name: "setStatus".
func NewSetStatus() filters.Spec { return new(statusSpec) }

func (s *statusSpec) Name() string { return SetStatusName }

func (s *statusSpec) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	code := a.Int("status")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	if http.StatusText(code) == "" {
		return nil, fmt.Errorf("%w: invalid status code %d", filters.ErrInvalidFilterParameters, code)
	}

	return &statusFilter{code: code}, nil
}

func (f *statusFilter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	if err := next.Filter(ctx); err != nil {
		return err
	}

	if rsp := ctx.Response(); rsp != nil {
		rsp.StatusCode = f.code
		rsp.Status = ""
	}

	return nil
}
