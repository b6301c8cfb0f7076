package predicates

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/viaduct-io/viaduct/routing"
)

type fixed struct {
	ok     bool
	params map[string]string
}

func (f fixed) Match(*http.Request) (bool, map[string]string) {
	return f.ok, f.params
}

func matches(params map[string]string) routing.Predicate {
	return fixed{ok: true, params: params}
}

func rejects() routing.Predicate {
	return fixed{}
}

func testRequest() *http.Request {
	return &http.Request{URL: &url.URL{Path: "/"}}
}

func TestAnd(t *testing.T) {
	ok, params := And(
		matches(map[string]string{"first": "1", "shared": "first"}),
		matches(map[string]string{"second": "2", "shared": "second"}),
	).Match(testRequest())
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"first": "1", "second": "2", "shared": "second"}, params)

	ok, params = And(matches(nil), rejects()).Match(testRequest())
	assert.False(t, ok)
	assert.Nil(t, params)

	ok, _ = And().Match(testRequest())
	assert.True(t, ok)
}

func TestOr(t *testing.T) {
	ok, params := Or(
		rejects(),
		matches(map[string]string{"winner": "second"}),
		matches(map[string]string{"winner": "third"}),
	).Match(testRequest())
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"winner": "second"}, params)

	ok, _ = Or(rejects(), rejects()).Match(testRequest())
	assert.False(t, ok)

	ok, _ = Or().Match(testRequest())
	assert.False(t, ok)
}

func TestNot(t *testing.T) {
	ok, params := Not(rejects()).Match(testRequest())
	assert.True(t, ok)
	assert.Nil(t, params)

	ok, _ = Not(matches(map[string]string{"dropped": "yes"})).Match(testRequest())
	assert.False(t, ok)
}

func TestCombinatorsNest(t *testing.T) {
	p := And(
		matches(map[string]string{"kept": "yes"}),
		Not(And(matches(nil), rejects())),
		Or(rejects(), matches(nil)),
	)

	ok, params := p.Match(testRequest())
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"kept": "yes"}, params)
}
