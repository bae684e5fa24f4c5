package detector

import (
	"sort"
	"time"

	"r4r-detector/internal/models"
)

// DetectGroups finds suspicious groups: connected components of at least
// MinGroupSize accounts in the subgraph restricted to edges with at least
// GroupEdgeMinPairs pairs and a mean pair score of at least
// GroupEdgeMinScore. Components are found with union-find over the
// qualified edge list, so there is no all-pairs comparison.
func (e *Engine) DetectGroups(g *Graph) []models.SuspiciousGroup {
	uf := newUnionFind()
	qualified := make(map[edgeKey]*edge)

	for key, ed := range g.edges {
		if ed.pairCount < e.config.GroupEdgeMinPairs {
			continue
		}
		if ed.meanScore() < e.config.GroupEdgeMinScore {
			continue
		}
		qualified[key] = ed
		uf.union(key.a, key.b)
	}

	// Collect members and edge statistics per component root.
	members := make(map[string][]string)
	for node := range uf.parent {
		root := uf.find(node)
		members[root] = append(members[root], node)
	}

	type groupStats struct {
		interactions int
		totalGap     time.Duration
		pairCount    int
	}
	stats := make(map[string]*groupStats)
	for key, ed := range qualified {
		root := uf.find(key.a)
		st, exists := stats[root]
		if !exists {
			st = &groupStats{}
			stats[root] = st
		}
		st.interactions += ed.interactions
		st.totalGap += ed.totalGap
		st.pairCount += ed.pairCount
	}

	groups := make([]models.SuspiciousGroup, 0)
	for root, nodes := range members {
		if len(nodes) < e.config.MinGroupSize {
			continue
		}

		sort.Strings(nodes)
		group := models.NewSuspiciousGroup(nodes)
		if st := stats[root]; st != nil && st.pairCount > 0 {
			group.InteractionCount = st.interactions
			group.AvgTimeGap = st.totalGap / time.Duration(st.pairCount)
		}
		groups = append(groups, *group)
	}

	// Largest, most active groups first.
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Members) != len(groups[j].Members) {
			return len(groups[i].Members) > len(groups[j].Members)
		}
		return groups[i].InteractionCount > groups[j].InteractionCount
	})

	return groups
}

// unionFind is a disjoint-set over userkeys with union by rank and path
// compression.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

func (uf *unionFind) find(x string) string {
	if _, exists := uf.parent[x]; !exists {
		uf.parent[x] = x
	}
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
