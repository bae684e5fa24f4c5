package detector

import (
	"sort"
	"time"

	"r4r-detector/internal/models"
)

// Graph is the weighted interaction graph derived from detected pairs.
// Nodes are userkeys; an edge aggregates all pairs between two users.
type Graph struct {
	// connections indexes per-owner counterpart aggregates.
	connections map[string]map[string]*models.NetworkConnection
	edges       map[edgeKey]*edge
	seen        map[[2]string]bool
}

type edgeKey struct {
	a, b string // a < b
}

type edge struct {
	pairCount    int
	totalGap     time.Duration
	totalScore   float64
	reciprocal   int
	interactions int
}

func newEdgeKey(a, b string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

// BuildNetwork aggregates pair sets into an interaction graph. The map is
// keyed by the userkey that owns each pair set; a single-user analysis
// passes one entry, a network scan passes one per scanned member so that
// counterpart-of-counterpart edges appear when the batch has them.
func (e *Engine) BuildNetwork(pairSets map[string][]models.ReviewPair) *Graph {
	g := &Graph{
		connections: make(map[string]map[string]*models.NetworkConnection),
		edges:       make(map[edgeKey]*edge),
		seen:        make(map[[2]string]bool),
	}

	for owner, pairs := range pairSets {
		for _, p := range pairs {
			g.addPair(owner, p)
		}
	}

	return g
}

func (g *Graph) addPair(owner string, p models.ReviewPair) {
	// Two scanned members contribute the same pair from both ends; count
	// it on the edge once, identified by its constituent review IDs.
	pairID := [2]string{p.Earlier.ID, p.Later.ID}
	if !g.seen[pairID] {
		g.seen[pairID] = true

		key := newEdgeKey(owner, p.Counterpart)
		ed, exists := g.edges[key]
		if !exists {
			ed = &edge{}
			g.edges[key] = ed
		}

		ed.pairCount++
		ed.reciprocal++
		ed.interactions += 2 // one review in each direction
		ed.totalGap += p.TimeGap
		ed.totalScore += p.SuspiciousScore
	}

	g.connectFor(owner, p)
}

func (g *Graph) connectFor(owner string, p models.ReviewPair) {
	conns, exists := g.connections[owner]
	if !exists {
		conns = make(map[string]*models.NetworkConnection)
		g.connections[owner] = conns
	}

	conn, exists := conns[p.Counterpart]
	if !exists {
		conn = &models.NetworkConnection{Userkey: p.Counterpart}
		conns[p.Counterpart] = conn
	}

	// Running aggregation: rebuild the means from the accumulated totals
	// kept on the connection itself.
	prev := float64(conn.ReciprocalCount)
	conn.InteractionCount += 2
	conn.ReciprocalCount++
	conn.AvgTimeGap = time.Duration((float64(conn.AvgTimeGap)*prev + float64(p.TimeGap)) / float64(conn.ReciprocalCount))
	conn.SuspiciousScore = (conn.SuspiciousScore*prev + p.SuspiciousScore) / float64(conn.ReciprocalCount)
}

// ConnectionsFor returns the deduplicated counterpart aggregates for one
// owner, sorted by suspicious score descending.
func (g *Graph) ConnectionsFor(owner string) []models.NetworkConnection {
	conns := make([]models.NetworkConnection, 0, len(g.connections[owner]))
	for _, c := range g.connections[owner] {
		conns = append(conns, *c)
	}

	sort.Slice(conns, func(i, j int) bool {
		if conns[i].SuspiciousScore != conns[j].SuspiciousScore {
			return conns[i].SuspiciousScore > conns[j].SuspiciousScore
		}
		return conns[i].Userkey < conns[j].Userkey
	})

	return conns
}

// meanScore returns the edge's mean pair suspicious score.
func (ed *edge) meanScore() float64 {
	if ed.pairCount == 0 {
		return 0
	}
	return ed.totalScore / float64(ed.pairCount)
}

// meanGap returns the edge's mean pair time gap.
func (ed *edge) meanGap() time.Duration {
	if ed.pairCount == 0 {
		return 0
	}
	return ed.totalGap / time.Duration(ed.pairCount)
}
