package routesfile

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaduct-io/viaduct/routedef"
)

const testDocument = `
routes:
  - id: payments
    uri: https://payments.example.org
    predicates:
      - Path=/payments/**
    filters:
      - stripPrefix=1

  - id: assets
    uri: https://assets.example.org
    predicates:
      - Path=/assets/**

defaultFilters:
  - addResponseHeader=X-Gateway,viaduct
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	writeFile(t, path, content)
	return path
}

func routeIDs(defs []*routedef.RouteDefinition) []string {
	ids := make([]string, len(defs))
	for i, def := range defs {
		ids[i] = def.ID
	}

	sort.Strings(ids)
	return ids
}

func TestOpenFailsEagerly(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Open(testFile(t, "{invalid"))
	assert.Error(t, err)
}

func TestGetInitial(t *testing.T) {
	c, err := Open(testFile(t, testDocument))
	require.NoError(t, err)

	defs, err := c.GetInitial()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "payments", defs[0].ID)
	assert.Equal(t, "https://payments.example.org", defs[0].URI)
	require.Len(t, defs[0].Predicates, 1)
	assert.Equal(t, "Path", defs[0].Predicates[0].Name)
	assert.Equal(t, map[string]string{"_genkey_0": "/payments/**"}, defs[0].Predicates[0].Args)
	require.Len(t, defs[0].Filters, 1)
	assert.Equal(t, "stripPrefix", defs[0].Filters[0].Name)

	assert.Equal(t, "assets", defs[1].ID)

	defaults := c.DefaultFilters()
	require.Len(t, defaults, 1)
	assert.Equal(t, "addResponseHeader", defaults[0].Name)
	assert.Equal(t, map[string]string{"_genkey_0": "X-Gateway", "_genkey_1": "viaduct"}, defaults[0].Args)
}

func TestBareListDocument(t *testing.T) {
	c, err := Open(testFile(t, `
- id: payments
  uri: https://payments.example.org
`))
	require.NoError(t, err)

	defs, err := c.GetInitial()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "payments", defs[0].ID)
	assert.Empty(t, c.DefaultFilters())
}

func TestGetUpdateWithoutChange(t *testing.T) {
	path := testFile(t, testDocument)
	c, err := Open(path)
	require.NoError(t, err)

	_, err = c.GetInitial()
	require.NoError(t, err)

	// rewriting the same content only changes the timestamp
	writeFile(t, path, testDocument)

	upsert, deleted, err := c.GetUpdate()
	require.NoError(t, err)
	assert.Empty(t, upsert)
	assert.Empty(t, deleted)
}

func TestGetUpdateDiff(t *testing.T) {
	path := testFile(t, testDocument)
	c, err := Open(path)
	require.NoError(t, err)

	_, err = c.GetInitial()
	require.NoError(t, err)

	writeFile(t, path, `
routes:
  - id: payments
    uri: https://payments.example.org
    predicates:
      - Path=/payments/**
    filters:
      - stripPrefix=2

  - id: orders
    uri: https://orders.example.org
`)

	upsert, deleted, err := c.GetUpdate()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "payments"}, routeIDs(upsert))
	assert.Equal(t, []string{"assets"}, deleted)
}

func TestGeneratedIDsAreStable(t *testing.T) {
	doc := `
routes:
  - uri: https://one.example.org
  - uri: https://two.example.org
  - uri: https://two.example.org
`

	path := testFile(t, doc)
	c, err := Open(path)
	require.NoError(t, err)

	defs, err := c.GetInitial()
	require.NoError(t, err)
	require.Len(t, defs, 3)

	ids := routeIDs(defs)
	for _, id := range ids {
		assert.NotEmpty(t, id)
	}

	// identical definitions still get distinct ids
	assert.Len(t, uniqueStrings(ids), 3)

	writeFile(t, path, doc)
	upsert, deleted, err := c.GetUpdate()
	require.NoError(t, err)
	assert.Empty(t, upsert)
	assert.Empty(t, deleted)

	writeFile(t, path, `
routes:
  - uri: https://one.example.org
  - uri: https://two.example.org
`)

	upsert, deleted, err = c.GetUpdate()
	require.NoError(t, err)
	assert.Empty(t, upsert)
	require.Len(t, deleted, 1)
	assert.Contains(t, ids, deleted[0])
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}

	return unique
}

func TestRemovedFileDeletesAllRoutes(t *testing.T) {
	path := testFile(t, testDocument)
	c, err := Open(path)
	require.NoError(t, err)

	_, err = c.GetInitial()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	upsert, deleted, err := c.GetUpdate()
	require.NoError(t, err)
	assert.Empty(t, upsert)
	sort.Strings(deleted)
	assert.Equal(t, []string{"assets", "payments"}, deleted)

	// still gone, nothing left to delete
	upsert, deleted, err = c.GetUpdate()
	require.NoError(t, err)
	assert.Empty(t, upsert)
	assert.Empty(t, deleted)
}

func TestMalformedUpdateKeepsRoutes(t *testing.T) {
	path := testFile(t, testDocument)
	c, err := Open(path)
	require.NoError(t, err)

	_, err = c.GetInitial()
	require.NoError(t, err)

	writeFile(t, path, "{invalid")
	_, _, err = c.GetUpdate()
	assert.Error(t, err)

	// the routing container falls back to the full set on update errors
	writeFile(t, path, testDocument)
	defs, err := c.GetInitial()
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}
