package builtin

import (
	"fmt"
	"strings"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/routedef"
)

type headerBehavior int

const (
	setRequest headerBehavior = 1 + iota
	addRequest
	setResponse
	addResponse
)

// common structure for the four header manipulating specifications and
// their filter instances
type headerFilter struct {
	behavior headerBehavior
	name     string
	key      string
	value    *routedef.Template
}

// NewSetRequestHeader creates a filter specification whose instances
// replace the value of a request header before the request is dispatched
// to the backend. Instances expect two arguments: the header name and
// the value. The value may contain {name} placeholders resolved from the
// variables captured by the predicates of the route:
//
//	setRequestHeader=X-Account,{account}
//
// Setting the Host header changes the host of the outgoing request, too.
// Name: "setRequestHeader".
func NewSetRequestHeader() filters.Spec {
	return &headerFilter{behavior: setRequest, name: SetRequestHeaderName}
}

// NewAddRequestHeader creates a filter specification whose instances
// append a value to a request header, keeping existing values. Arguments
// and templating as in NewSetRequestHeader. Name: "addRequestHeader".
func NewAddRequestHeader() filters.Spec {
	return &headerFilter{behavior: addRequest, name: AddRequestHeaderName}
}

// NewSetResponseHeader creates a filter specification whose instances
// replace the value of a response header after the rest of the chain
// completed. Arguments and templating as in NewSetRequestHeader.
// Name: "setResponseHeader".
func NewSetResponseHeader() filters.Spec {
	return &headerFilter{behavior: setResponse, name: SetResponseHeaderName}
}

// NewAddResponseHeader creates a filter specification whose instances
// append a value to a response header, keeping existing values.
// Name: "addResponseHeader".
func NewAddResponseHeader() filters.Spec {
	return &headerFilter{behavior: addResponse, name: AddResponseHeaderName}
}

func (spec *headerFilter) Name() string { return spec.name }

func (spec *headerFilter) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	key := a.String("name")
	value := a.String("value")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	return &headerFilter{
		behavior: spec.behavior,
		key:      key,
		value:    routedef.NewTemplate(value),
	}, nil
}

func (f *headerFilter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	switch f.behavior {
	case setRequest:
		value := f.value.Apply(ctx.PathParam)
		ctx.Request().Header.Set(f.key, value)
		if strings.EqualFold(f.key, "host") {
			ctx.SetOutgoingHost(value)
		}
	case addRequest:
		ctx.Request().Header.Add(f.key, f.value.Apply(ctx.PathParam))
	}

	if err := next.Filter(ctx); err != nil {
		return err
	}

	if rsp := ctx.Response(); rsp != nil {
		switch f.behavior {
		case setResponse:
			rsp.Header.Set(f.key, f.value.Apply(ctx.PathParam))
		case addResponse:
			rsp.Header.Add(f.key, f.value.Apply(ctx.PathParam))
		}
	}

	return nil
}
