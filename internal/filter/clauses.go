package filter

import "societycal/internal/config"

// ClauseTable maps a facet option to the fixed query clause it contributes,
// e.g. Location/London -> "location=london".
type ClauseTable struct {
	m map[clauseKey]string
}

type clauseKey struct {
	facet  string
	option string
}

// NewClauseTable builds the lookup from the configured facets. Options with
// an empty clause are left out, so selecting them never constrains the query.
func NewClauseTable(facets []config.FacetConfig) ClauseTable {
	t := ClauseTable{m: make(map[clauseKey]string)}
	for _, f := range facets {
		for _, o := range f.Options {
			if o.Clause == "" {
				continue
			}
			t.m[clauseKey{f.Label, o.Label}] = o.Clause
		}
	}
	return t
}

// Lookup returns the clause for option within facet.
func (t ClauseTable) Lookup(facet, option string) (string, bool) {
	c, ok := t.m[clauseKey{facet, option}]
	return c, ok
}

// Len is the number of mapped options.
func (t ClauseTable) Len() int { return len(t.m) }
