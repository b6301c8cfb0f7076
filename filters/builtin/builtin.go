/*
Package builtin provides a small, generic set of filters for
transforming the request path, the headers, the response status and
the response body encoding.
*/
package builtin

import (
	"github.com/viaduct-io/viaduct/filters"
)

const (
	RewritePathName       = "rewritePath"
	SetPathName           = "setPath"
	StripPrefixName       = "stripPrefix"
	SetRequestHeaderName  = "setRequestHeader"
	AddRequestHeaderName  = "addRequestHeader"
	SetResponseHeaderName = "setResponseHeader"
	AddResponseHeaderName = "addResponseHeader"
	SetStatusName         = "setStatus"
	RedirectToName        = "redirectTo"
	PreserveHostName      = "preserveHost"
	CompressName          = "compress"
)

// MakeRegistry returns a registry with the default set of filter
// specifications found in this package.
func MakeRegistry() filters.Registry {
	r := make(filters.Registry)
	for _, s := range []filters.Spec{
		NewRewritePath(),
		NewSetPath(),
		NewStripPrefix(),
		NewSetRequestHeader(),
		NewAddRequestHeader(),
		NewSetResponseHeader(),
		NewAddResponseHeader(),
		NewSetStatus(),
		NewRedirectTo(),
		NewPreserveHost(),
		NewCompress(),
	} {
		r.Register(s)
	}

	return r
}
