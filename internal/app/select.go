package app

import "sort"

// Selection is the outcome of applying allow and deny lists to the
// collections known to the cluster (or recorded in a manifest).
type Selection struct {
	Selected []string
	Excluded []string // removed by the blacklist
	Missing  []string // allow-listed but not available
}

// Select filters available by the allow-list include (all when empty) and
// the blacklist exclude. The blacklist wins when a name is in both lists.
// Every returned slice is sorted.
func Select(available, include, exclude []string) Selection {
	excluded := toSet(exclude)
	included := toSet(include)
	present := toSet(available)

	sel := Selection{Selected: []string{}}
	for name := range present {
		switch {
		case excluded[name]:
			sel.Excluded = append(sel.Excluded, name)
		case len(included) == 0 || included[name]:
			sel.Selected = append(sel.Selected, name)
		}
	}
	for name := range included {
		if !present[name] && !excluded[name] {
			sel.Missing = append(sel.Missing, name)
		}
	}
	sort.Strings(sel.Selected)
	sort.Strings(sel.Excluded)
	sort.Strings(sel.Missing)
	return sel
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = true
		}
	}
	return set
}
