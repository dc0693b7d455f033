package etl

import "strings"

// ParseFilters splits a filter expression on ";" into the ordered clauses
// passed to the adapter. Clauses are not interpreted. An empty or blank
// expression yields nil, meaning a full import. Trailing empty clauses are
// dropped.
func ParseFilters(expr string) []string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	filters := strings.Split(expr, ";")
	for len(filters) > 0 && filters[len(filters)-1] == "" {
		filters = filters[:len(filters)-1]
	}
	return filters
}
