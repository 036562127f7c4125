package source

// ClassifyRelationships splits edges into self-referencing, many-to-many
// (a third table references both ends) and one-to-many. Edges are grouped by
// (from, to) pair in first-seen order.
func ClassifyRelationships(edges []ForeignKey) Summary {
	s := Summary{
		OneToMany:       []ForeignKey{},
		ManyToMany:      []ForeignKey{},
		SelfReferencing: []ForeignKey{},
	}

	type pair struct{ from, to string }
	var order []pair
	groups := make(map[pair][]ForeignKey)
	refs := make(map[string]map[string]struct{})
	for _, fk := range edges {
		p := pair{fk.FromTable, fk.ToTable}
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], fk)
		if refs[fk.FromTable] == nil {
			refs[fk.FromTable] = make(map[string]struct{})
		}
		refs[fk.FromTable][fk.ToTable] = struct{}{}
	}

	for _, p := range order {
		fks := groups[p]
		switch {
		case p.from == p.to:
			s.SelfReferencing = append(s.SelfReferencing, fks...)
		case manyToMany(p.from, p.to, refs):
			s.ManyToMany = append(s.ManyToMany, fks...)
		default:
			s.OneToMany = append(s.OneToMany, fks...)
		}
	}
	return s
}

// manyToMany reports whether a junction table other than a and b
// references both.
func manyToMany(a, b string, refs map[string]map[string]struct{}) bool {
	for junction, targets := range refs {
		if junction == a || junction == b {
			continue
		}
		_, ra := targets[a]
		_, rb := targets[b]
		if ra && rb {
			return true
		}
	}
	return false
}
