package nav

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// OutdoorsID names the synthetic node that links outdoor starting points to
// landmarks with a known outdoor entrance.
const OutdoorsID = "outdoors"

// outdoorsIndex is the arena slot reserved for OutdoorsID.
const outdoorsIndex int64 = 0

// Landmark is a recorded, re-locatable point.
type Landmark struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`

	// Pose is the recorded map-frame pose, if one was captured.
	Pose *Pose `json:"pose,omitempty"`

	// Outdoor is the lon/lat of the entrance this landmark sits behind and
	// OutdoorFeature the name it was recorded under.
	Outdoor        *orb.Point `json:"outdoor,omitempty"`
	OutdoorFeature string     `json:"outdoorFeature,omitempty"`
}

// Edge is a recorded path segment between two landmarks. Each segment was
// captured in its own tracking session, so its poses share a frame with
// each other but not with any other edge.
type Edge struct {
	From  string
	To    string
	Start Pose // landmark From as recorded
	End   Pose // landmark To as recorded
	Path  []Pose

	// PathAnchors are other landmarks seen while recording, in this edge's
	// frame.
	PathAnchors map[string]Pose

	// Synthesized marks an edge made by reversing a recorded one.
	Synthesized bool
}

// Cost is the walked length of the segment including the hops from the
// landmarks to the ends of the breadcrumb trail.
func (e *Edge) Cost() float64 {
	if len(e.Path) == 0 {
		return Distance(e.Start.Position, e.End.Position)
	}
	total := Distance(e.Start.Position, e.Path[0].Position)
	for i := 0; i < len(e.Path)-1; i++ {
		total += Distance(e.Path[i].Position, e.Path[i+1].Position)
	}
	return total + Distance(e.Path[len(e.Path)-1].Position, e.End.Position)
}

// Reversed returns the segment walked backwards. Path anchors are copied
// as recorded.
func (e *Edge) Reversed() *Edge {
	crumbs := make([]Pose, len(e.Path))
	for i, p := range e.Path {
		crumbs[len(e.Path)-1-i] = p
	}
	anchors := make(map[string]Pose, len(e.PathAnchors))
	for id, p := range e.PathAnchors {
		anchors[id] = p
	}
	return &Edge{
		From:        e.To,
		To:          e.From,
		Start:       e.End,
		End:         e.Start,
		Path:        crumbs,
		PathAnchors: anchors,
		Synthesized: true,
	}
}

type edgeKey struct {
	from, to string
}

// RouteGraph holds the landmarks and recorded segments of a map. Landmarks
// are kept in an arena so the planner can address them by index.
type RouteGraph struct {
	landmarks   []Landmark
	index       map[string]int64
	edges       map[edgeKey]*Edge
	geolocation *orb.Point
}

// NewRouteGraph returns a graph holding only the outdoors node.
func NewRouteGraph() *RouteGraph {
	return &RouteGraph{
		landmarks: []Landmark{{ID: OutdoorsID, Category: "outdoors"}},
		index:     map[string]int64{OutdoorsID: outdoorsIndex},
		edges:     make(map[edgeKey]*Edge),
	}
}

// AddLandmark registers a landmark, replacing the details of one already
// registered under the same id. The outdoors node cannot be replaced.
func (g *RouteGraph) AddLandmark(l Landmark) int64 {
	if idx, ok := g.index[l.ID]; ok {
		if idx != outdoorsIndex {
			g.landmarks[idx] = l
		}
		return idx
	}
	idx := int64(len(g.landmarks))
	g.landmarks = append(g.landmarks, l)
	g.index[l.ID] = idx
	return idx
}

// Landmark looks up a landmark by id.
func (g *RouteGraph) Landmark(id string) (Landmark, bool) {
	idx, ok := g.index[id]
	if !ok {
		return Landmark{}, false
	}
	return g.landmarks[idx], true
}

// Landmarks returns the recorded landmarks in registration order, without
// the outdoors node.
func (g *RouteGraph) Landmarks() []Landmark {
	out := make([]Landmark, len(g.landmarks)-1)
	copy(out, g.landmarks[1:])
	return out
}

// HasLandmark reports whether id is a registered node.
func (g *RouteGraph) HasLandmark(id string) bool {
	_, ok := g.index[id]
	return ok
}

// AddEdge stores a segment, replacing any segment between the same pair.
// Edges may name landmarks that are not registered yet; they are ignored
// by the planner until both ends exist.
func (g *RouteGraph) AddEdge(e *Edge) {
	g.edges[edgeKey{e.From, e.To}] = e
}

// Edge returns the segment from one landmark to another.
func (g *RouteGraph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.edges[edgeKey{from, to}]
	return e, ok
}

// Edges returns every stored segment ordered by (from, to).
func (g *RouteGraph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// RemoveEdge deletes the segment from one landmark to another.
func (g *RouteGraph) RemoveEdge(from, to string) {
	delete(g.edges, edgeKey{from, to})
}

// RemoveEdgesFrom deletes every segment leaving a landmark.
func (g *RouteGraph) RemoveEdgesFrom(id string) {
	for k := range g.edges {
		if k.from == id {
			delete(g.edges, k)
		}
	}
}

// SynthesizeReverseEdges adds a reversed copy of every segment that has no
// recorded counterpart and returns how many were added. A reversed trail is
// an approximation: turns that are easy one way may not be the other way.
func (g *RouteGraph) SynthesizeReverseEdges() int {
	added := 0
	for _, e := range g.Edges() {
		if _, ok := g.edges[edgeKey{e.To, e.From}]; ok {
			continue
		}
		g.AddEdge(e.Reversed())
		added++
	}
	return added
}

// SetGeolocation records the device's last coarse fix (lon, lat).
func (g *RouteGraph) SetGeolocation(p orb.Point) {
	g.geolocation = &p
}

// Geolocation returns the last coarse fix, if any.
func (g *RouteGraph) Geolocation() (orb.Point, bool) {
	if g.geolocation == nil {
		return orb.Point{}, false
	}
	return *g.geolocation, true
}

// Build constructs the weighted graph the planner searches. Segments with an
// unregistered end, self loops and unusable costs are left out. When a
// geolocation is known the outdoors node gets an edge to every landmark
// with an outdoor entrance, weighted by great-circle distance.
func (g *RouteGraph) Build() *simple.WeightedDirectedGraph {
	wg := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i := range g.landmarks {
		wg.AddNode(simple.Node(int64(i)))
	}

	for k, e := range g.edges {
		from, okFrom := g.index[k.from]
		to, okTo := g.index[k.to]
		if !okFrom || !okTo || from == to {
			continue
		}
		cost := e.Cost()
		if math.IsNaN(cost) || cost < 0 {
			continue
		}
		wg.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: cost})
	}

	if g.geolocation != nil {
		for i, l := range g.landmarks {
			if int64(i) == outdoorsIndex || l.Outdoor == nil {
				continue
			}
			wg.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(outdoorsIndex),
				T: simple.Node(int64(i)),
				W: geo.Distance(*g.geolocation, *l.Outdoor),
			})
		}
	}
	return wg
}

// ShortestPath returns the cheapest landmark sequence from one landmark to
// another and its cost. An empty result means the destination is
// unreachable.
func (g *RouteGraph) ShortestPath(from, to string) ([]string, float64) {
	fi, okFrom := g.index[from]
	ti, okTo := g.index[to]
	if !okFrom || !okTo {
		return nil, math.Inf(1)
	}

	nodes, weight := path.DijkstraFrom(simple.Node(fi), g.Build()).To(ti)
	if len(nodes) == 0 {
		return nil, math.Inf(1)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = g.landmarks[n.ID()].ID
	}
	return ids, weight
}

// ReachableSet returns the candidates reachable from any of the starts, in
// candidate order. A start does not count as reachable from itself.
func (g *RouteGraph) ReachableSet(starts, candidates []string) []string {
	wg := g.Build()
	reached := make(map[int64]bool)
	for _, s := range starts {
		si, ok := g.index[s]
		if !ok {
			continue
		}
		bfs := traverse.BreadthFirst{
			Visit: func(n graph.Node) {
				if n.ID() != si {
					reached[n.ID()] = true
				}
			},
		}
		bfs.Walk(wg, simple.Node(si), nil)
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		ci, ok := g.index[c]
		if !ok || seen[c] || !reached[ci] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
