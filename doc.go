/*
Package viaduct provides an HTTP gateway: it identifies the route of
the incoming requests by their method, path, host, headers and query,
applies the filter chain of the matched route, and forwards the
requests to the backend of the route.

# Running

The viaduct command starts the gateway with the routes read from a
YAML document:

	viaduct -routes-file routes.yaml

The file is polled while the gateway is running, route changes are
applied without a restart. Programs embedding the gateway call Run
with the equivalent options:

	log.Fatal(viaduct.Run(viaduct.Options{
		Address:    ":9090",
		RoutesFile: "routes.yaml",
	}))

# Route documents

A route document lists route definitions, and optionally default
filters prepended to the filter chain of every route:

	routes:
	  - id: payments
	    uri: https://payments.example.org
	    predicates:
	      - Path=/payments/**
	    filters:
	      - stripPrefix=1

	  - id: legacy
	    uri: http://legacy.internal:8080
	    order: -1
	    predicates:
	      - name: Host
	        args:
	          patterns: legacy.example.org

	defaultFilters:
	  - addResponseHeader=X-Gateway,viaduct

Predicates and filters are written either in the shorthand form
Name=arg1,arg2 or as a mapping with explicit argument names. Routes
with a lower order are matched first, among equal orders the first
matching route of the document wins. A route without predicates
matches every request.

# Predicates

The builtin predicates are Path, Host, Method, Header and Query. Path
patterns support single segment {name} variables and a trailing **
wildcard, the captured values are available to the filter argument
templates of the route:

	predicates:
	  - Path=/users/{id}/**
	filters:
	  - setRequestHeader=X-User,{id}

# Filters

The builtin filters transform the request path (rewritePath, setPath,
stripPrefix), the headers (setRequestHeader, addRequestHeader,
setResponseHeader, addResponseHeader, preserveHost), and the response
(setStatus, redirectTo, compress). The requestRateLimiter filter
limits the request rate per client, with the counters optionally
shared between gateway instances through Redis. The circuitBreaker
filter protects backends with a named circuit breaker, an optional
command timeout and an optional fallback. Custom filters implement
filters.Spec and are registered through Options.CustomFilters.

# Backends

The scheme of the route URI selects how the request is dispatched.
Routes with an http or https URI are proxied to the address of the
URI. Routes with an lb URI, for example lb://payments, are proxied
round-robin over the endpoints of the named group declared in
Options.LoadBalancerGroups. Routes with a forward URI are served by
the local handler of the gateway without proxying, by default the
support handler with the health check and the metrics exposition.

# Circuit breakers

The settings of the named circuit breakers are read from a YAML
document, a list of entries where the entry without a name provides
the defaults:

	- type: consecutive
	  failures: 5
	  timeout: 15s
	- name: payments
	  type: rate
	  window: 200
	  failures: 30

# Operations

The gateway writes an application log and an access log through
logrus, collects request metrics in the Coda Hale or the Prometheus
flavour, exposed on the support listener, and reports proxy spans to
the OpenTracing tracer selected by Options.OpenTracing.
*/
package viaduct
