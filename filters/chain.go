package filters

import "sort"

// NewChain creates a chain that processes the given filters in slice
// order. The chain value holds its own cursor, the remainder handed to
// every filter is independent of the remainders handed out before.
func NewChain(f []Filter) Chain {
	return chain{filters: f}
}

type chain struct {
	filters []Filter
	index   int
}

func (c chain) Filter(ctx FilterContext) error {
	if c.index >= len(c.filters) {
		return nil
	}

	return c.filters[c.index].Filter(ctx, chain{filters: c.filters, index: c.index + 1})
}

// OrderOf returns the explicit order of a filter, or zero for filters
// without one.
func OrderOf(f Filter) int {
	if o, ok := f.(Ordered); ok {
		return o.Order()
	}

	return 0
}

// SortByOrder sorts filters ascending by their explicit order, keeping
// the declaration order of filters with equal orders.
func SortByOrder(f []Filter) {
	sort.SliceStable(f, func(i, j int) bool {
		return OrderOf(f[i]) < OrderOf(f[j])
	})
}
