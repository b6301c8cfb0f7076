package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaduct-io/viaduct/routedef"
)

func defsWithIDs(ids ...string) []*routedef.RouteDefinition {
	defs := make([]*routedef.RouteDefinition, len(ids))
	for i, id := range ids {
		defs[i] = &routedef.RouteDefinition{ID: id, URI: "https://example.org"}
	}

	return defs
}

func idsOf(defs []*routedef.RouteDefinition) []string {
	ids := make([]string, len(defs))
	for i, def := range defs {
		ids[i] = def.ID
	}

	return ids
}

func TestApplyIncomingKeepsFirstSeenOrder(t *testing.T) {
	defs := applyIncoming(nil, &incomingData{
		typ:          incomingReset,
		upsertedDefs: defsWithIDs("a", "b", "c"),
	})

	// upserting an existing definition keeps its position
	defs = applyIncoming(defs, &incomingData{
		typ:          incomingUpdate,
		upsertedDefs: defsWithIDs("b", "d"),
	})

	merged := mergeDefs([]DataClient{nil}, map[DataClient]*routeDefs{nil: defs})
	assert.Equal(t, []string{"a", "b", "c", "d"}, idsOf(merged))
}

func TestApplyIncomingDelete(t *testing.T) {
	defs := applyIncoming(nil, &incomingData{
		typ:          incomingReset,
		upsertedDefs: defsWithIDs("a", "b", "c"),
	})

	defs = applyIncoming(defs, &incomingData{
		typ:        incomingUpdate,
		deletedIDs: []string{"b"},
	})

	merged := mergeDefs([]DataClient{nil}, map[DataClient]*routeDefs{nil: defs})
	assert.Equal(t, []string{"a", "c"}, idsOf(merged))
}

func TestApplyIncomingReset(t *testing.T) {
	defs := applyIncoming(nil, &incomingData{
		typ:          incomingReset,
		upsertedDefs: defsWithIDs("a", "b"),
	})

	defs = applyIncoming(defs, &incomingData{
		typ:          incomingReset,
		upsertedDefs: defsWithIDs("c"),
	})

	merged := mergeDefs([]DataClient{nil}, map[DataClient]*routeDefs{nil: defs})
	assert.Equal(t, []string{"c"}, idsOf(merged))
}

func TestMergeDefsLaterClientWins(t *testing.T) {
	c1 := &fakeClient{}
	c2 := &fakeClient{}

	byClient := map[DataClient]*routeDefs{
		c1: applyIncoming(nil, &incomingData{
			typ: incomingReset,
			upsertedDefs: []*routedef.RouteDefinition{
				{ID: "shared", URI: "https://first.example.org"},
				{ID: "only-first", URI: "https://first.example.org"},
			},
		}),
		c2: applyIncoming(nil, &incomingData{
			typ: incomingReset,
			upsertedDefs: []*routedef.RouteDefinition{
				{ID: "shared", URI: "https://second.example.org"},
			},
		}),
	}

	merged := mergeDefs([]DataClient{c1, c2}, byClient)
	require.Equal(t, []string{"shared", "only-first"}, idsOf(merged))
	assert.Equal(t, "https://second.example.org", merged[0].URI)
}

type fakeClient struct{}

func (c *fakeClient) GetInitial() ([]*routedef.RouteDefinition, error) { return nil, nil }
func (c *fakeClient) GetUpdate() ([]*routedef.RouteDefinition, []string, error) {
	return nil, nil, nil
}
