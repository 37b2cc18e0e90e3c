package engine

import "sort"

// dedupMatches keeps, for each rule, only the widest of any group of
// overlapping spans. Ties prefer the earlier span. The result is in rule id
// then offset order.
func dedupMatches(in []ruleMatch) []ruleMatch {
	byRule := map[string][]ruleMatch{}
	var ids []string
	for _, m := range in {
		if _, ok := byRule[m.rule.ID]; !ok {
			ids = append(ids, m.rule.ID)
		}
		byRule[m.rule.ID] = append(byRule[m.rule.ID], m)
	}
	sort.Strings(ids)

	var out []ruleMatch
	for _, id := range ids {
		group := byRule[id]
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].match.Span, group[j].match.Span
			if a.Len() != b.Len() {
				return a.Len() > b.Len()
			}
			if a.Start != b.Start {
				return a.Start < b.Start
			}
			return group[i].match.Evidence < group[j].match.Evidence
		})
		var kept []ruleMatch
		for _, m := range group {
			overlaps := false
			for k := range kept {
				if kept[k].match.Span.Overlaps(m.match.Span) {
					overlaps = true
					// corroborating matches raise confidence
					kept[k].rule.Confidence = min(0.99, kept[k].rule.Confidence+0.05)
					break
				}
			}
			if !overlaps {
				kept = append(kept, m)
			}
		}
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].match.Span.Start < kept[j].match.Span.Start })
		out = append(out, kept...)
	}
	return out
}
