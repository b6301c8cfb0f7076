package builtin

import (
	"fmt"

	"github.com/viaduct-io/viaduct/filters"
)

type preserveHost bool

// NewPreserveHost creates a filter specification whose instances make
// the proxy forward the Host header of the incoming request to the
// backend instead of the host of the backend address. An optional
// boolean argument, defaulting to true, allows disabling the filter
// instance without removing it from the route. Name: "preserveHost".
func NewPreserveHost() filters.Spec { return preserveHost(true) }

func (preserveHost) Name() string { return PreserveHostName }

func (preserveHost) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	preserve := a.OptionalBool("preserve", true)
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	return preserveHost(preserve), nil
}

func (f preserveHost) Filter(ctx filters.FilterContext, next filters.Chain) error {
	if f {
		if host := ctx.Request().Host; host != "" {
			ctx.SetOutgoingHost(host)
		}
	}

	return next.Filter(ctx)
}
