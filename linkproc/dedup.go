package linkproc

// Group collects candidates by ResourceKey. Groups come out in first-seen
// order and cells keep their scan order inside a group.
func Group(cands []LinkCandidate) []LinkGroup {
	index := make(map[ResourceKey]int)
	var groups []LinkGroup
	for _, c := range cands {
		key := KeyFor(c.URL)
		i, ok := index[key]
		if !ok {
			id, _, _ := ExtractResourceID(c.URL)
			groups = append(groups, LinkGroup{Key: key, ResourceID: id, OriginalURL: c.URL})
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].Cells = append(groups[i].Cells, c)
	}
	return groups
}

// CellCount is the number of cells across groups.
func CellCount(groups []LinkGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Cells)
	}
	return n
}
