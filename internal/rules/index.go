package rules

import (
	"sort"
	"strings"
)

// indexed pairs a rule with its ordinal position in the container's
// rule list, so candidate sets can be replayed in container order.
type indexed struct {
	rule *Rule
	pos  int
}

// Index gives O(1) lookup of the rules watching a given field, plus the
// root rules not tied to any field. Container order is preserved within
// and across buckets so rule order remains the merge tie-break.
type Index struct {
	byField map[string][]indexed
	root    []indexed
}

// BuildIndex indexes a container's rule list. Inactive rules are kept in
// the index and filtered at evaluation time, so toggling a rule does not
// change its position in container order.
func BuildIndex(list []Rule) *Index {
	ix := &Index{byField: make(map[string][]indexed)}
	for i := range list {
		r := &list[i]
		switch r.Trigger.Category {
		case CategoryRoot:
			ix.root = append(ix.root, indexed{r, i})
		case CategoryField:
			// Dotted sub-key triggers ("status.paid") bucket under the
			// root field, since diffs are taken on the root.
			root, _, _ := strings.Cut(r.Trigger.Field, ".")
			ix.byField[root] = append(ix.byField[root], indexed{r, i})
		}
	}
	return ix
}

// ForField returns the rules watching the named field, in container order.
func (ix *Index) ForField(name string) []*Rule {
	return unwrap(ix.byField[name])
}

// Root returns the container-level rules, in container order.
func (ix *Index) Root() []*Rule {
	return unwrap(ix.root)
}

// Candidates returns every rule that could fire for the given changed
// fields and event tag, deduplicated and sorted by container order.
func (ix *Index) Candidates(changedFields []string, event string) []*Rule {
	seen := make(map[string]bool)
	var cands []indexed
	add := func(rs []indexed) {
		for _, e := range rs {
			if seen[e.rule.ID] {
				continue
			}
			seen[e.rule.ID] = true
			cands = append(cands, e)
		}
	}
	for _, f := range changedFields {
		add(ix.byField[f])
	}
	if event != "" {
		add(ix.root)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].pos < cands[j].pos })
	return unwrap(cands)
}

func unwrap(rs []indexed) []*Rule {
	out := make([]*Rule, len(rs))
	for i, e := range rs {
		out[i] = e.rule
	}
	return out
}
