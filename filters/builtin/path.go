package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/routedef"
)

type pathBehavior int

const (
	regexpRewrite pathBehavior = 1 + iota
	fullReplace
)

type modPath struct {
	behavior    pathBehavior
	rx          *regexp.Regexp
	replacement string
	template    *routedef.Template
}

// NewRewritePath creates a filter specification whose instances rewrite
// the request path with a regular expression before the request is
// dispatched to the backend. Instances expect two arguments: the
// expression to match and the replacement. The replacement may refer to
// capture groups as $1 or ${name}, a literal dollar is written as "$\".
//
//	rewritePath=/foo/(.*),/bar/$1
//
// Name: "rewritePath".
func NewRewritePath() filters.Spec { return &modPath{behavior: regexpRewrite} }

// NewSetPath creates a filter specification whose instances replace the
// request path. The argument is a template, placeholders of the format
// {name} are resolved from the variables captured by the predicates of
// the route:
//
//	setPath=/bar/{segment}
//
// Name: "setPath".
func NewSetPath() filters.Spec { return &modPath{behavior: fullReplace} }

func (spec *modPath) Name() string {
	switch spec.behavior {
	case regexpRewrite:
		return RewritePathName
	default:
		return SetPathName
	}
}

func createRewritePath(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	expr := a.String("regexp")
	replacement := a.String("replacement")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	rx, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	// the escape keeps a literal dollar expressible next to the $1
	// style group references
	replacement = strings.ReplaceAll(replacement, `$\`, `$`)

	return &modPath{behavior: regexpRewrite, rx: rx, replacement: replacement}, nil
}

func createSetPath(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	template := a.String("template")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	return &modPath{behavior: fullReplace, template: routedef.NewTemplate(template)}, nil
}

func (spec *modPath) CreateFilter(args map[string]string) (filters.Filter, error) {
	switch spec.behavior {
	case regexpRewrite:
		return createRewritePath(args)
	default:
		return createSetPath(args)
	}
}

// saveOriginalURL keeps the target URL as it was before the first path
// changing filter, for diagnostics and response filters.
func saveOriginalURL(ctx filters.FilterContext) {
	bag := ctx.StateBag()
	if _, ok := bag[filters.OriginalRequestURLKey]; ok {
		return
	}

	u := *ctx.Request().URL
	bag[filters.OriginalRequestURLKey] = &u
}

func (f *modPath) Filter(ctx filters.FilterContext, next filters.Chain) error {
	saveOriginalURL(ctx)

	req := ctx.Request()
	switch f.behavior {
	case regexpRewrite:
		req.URL.Path = f.rx.ReplaceAllString(req.URL.Path, f.replacement)
	default:
		req.URL.Path = f.template.Apply(ctx.PathParam)
	}

	return next.Filter(ctx)
}

type stripPrefix struct {
	parts int
}

// NewStripPrefix creates a filter specification whose instances drop
// the given number of leading path segments from the request path
// before the request is dispatched to the backend:
//
//	stripPrefix=2
//
// turns /api/v1/users into /users. Name: "stripPrefix".
func NewStripPrefix() filters.Spec { return &stripPrefix{} }

func (spec *stripPrefix) Name() string { return StripPrefixName }

func (spec *stripPrefix) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	parts := a.Int("parts")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	if parts < 1 {
		return nil, fmt.Errorf("%w: parts must be positive", filters.ErrInvalidFilterParameters)
	}

	return &stripPrefix{parts: parts}, nil
}

func (f *stripPrefix) Filter(ctx filters.FilterContext, next filters.Chain) error {
	saveOriginalURL(ctx)

	req := ctx.Request()
	segments := strings.Split(req.URL.Path, "/")

	kept := make([]string, 0, len(segments))
	kept = append(kept, "")
	dropped := 0
	for _, s := range segments {
		if s == "" {
			continue
		}

		if dropped < f.parts {
			dropped++
			continue
		}

		kept = append(kept, s)
	}

	if len(kept) == 1 {
		kept = append(kept, "")
	}

	req.URL.Path = strings.Join(kept, "/")
	return next.Filter(ctx)
}
