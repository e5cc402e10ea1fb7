package nav

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// poseFloats is the length of a column-major 4x4 transform.
const poseFloats = 16

// MapDocument is the persisted form of a recorded map.
type MapDocument struct {
	Anchors     []AnchorRecord     `json:"anchors"`
	Connections []ConnectionRecord `json:"connections"`
}

// GeoLocation is a WGS84 coordinate.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AnchorRecord is one recorded landmark. Pose, when present, is its
// column-major transform in the frame it was recorded in.
type AnchorRecord struct {
	ID                       string       `json:"id"`
	Name                     string       `json:"name,omitempty"`
	Category                 string       `json:"category,omitempty"`
	AssociatedOutdoorFeature string       `json:"associatedOutdoorFeature,omitempty"`
	Location                 *GeoLocation `json:"location,omitempty"`
	Pose                     []float64    `json:"pose,omitempty"`
}

// ConnectionRecord is one recorded segment. Path holds the breadcrumbs
// flattened into consecutive 16-float column-major transforms.
type ConnectionRecord struct {
	FromID      string               `json:"fromID"`
	ToID        string               `json:"toID"`
	FromPose    []float64            `json:"fromPose"`
	ToPose      []float64            `json:"toPose"`
	Path        []float64            `json:"path"`
	PathAnchors map[string][]float64 `json:"pathAnchors,omitempty"`
}

// LoadMapFile reads a recorded map from disk.
func LoadMapFile(path string) (*RouteGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("map file not found: %s", path)
		}
		return nil, fmt.Errorf("reading map file: %w", err)
	}
	return ParseMapJSON(data)
}

// ParseMapJSON builds a route graph from a recorded map. Malformed
// connections are skipped. Every connection without a recorded return trip
// gets a synthesized reverse.
func ParseMapJSON(data []byte) (*RouteGraph, error) {
	var doc MapDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing map JSON: %w", err)
	}
	if len(doc.Anchors) == 0 {
		return nil, fmt.Errorf("map has no anchors")
	}

	g := NewRouteGraph()
	for i, a := range doc.Anchors {
		if a.ID == "" {
			return nil, fmt.Errorf("anchors[%d].id is required", i)
		}
		if a.ID == OutdoorsID {
			return nil, fmt.Errorf("anchors[%d]: id %q is reserved", i, OutdoorsID)
		}
		g.AddLandmark(a.landmark())
	}

	skipped := 0
	for _, c := range doc.Connections {
		e, err := c.edge()
		if err != nil {
			Logf("[MAP] Skipping connection %s -> %s: %v", c.FromID, c.ToID, err)
			skipped++
			continue
		}
		g.AddEdge(e)
	}

	reversed := g.SynthesizeReverseEdges()
	Logf("[MAP] Loaded %d anchors, %d connections (%d skipped, %d reversed)",
		len(doc.Anchors), len(doc.Connections)-skipped, skipped, reversed)
	return g, nil
}

func (a AnchorRecord) landmark() Landmark {
	l := Landmark{ID: a.ID, Name: a.Name, Category: a.Category}
	if p, err := poseFromFloats(a.Pose); err == nil {
		l.Pose = &p
	}
	if a.AssociatedOutdoorFeature != "" && a.Location != nil {
		l.Outdoor = &orb.Point{a.Location.Longitude, a.Location.Latitude}
		l.OutdoorFeature = a.AssociatedOutdoorFeature
	}
	return l
}

func (c ConnectionRecord) edge() (*Edge, error) {
	if c.FromID == "" || c.ToID == "" {
		return nil, fmt.Errorf("fromID and toID are required")
	}
	start, err := poseFromFloats(c.FromPose)
	if err != nil {
		return nil, fmt.Errorf("fromPose: %w", err)
	}
	end, err := poseFromFloats(c.ToPose)
	if err != nil {
		return nil, fmt.Errorf("toPose: %w", err)
	}

	e := &Edge{From: c.FromID, To: c.ToID, Start: start, End: end}
	for i := 0; i+poseFloats <= len(c.Path); i += poseFloats {
		p, _ := poseFromFloats(c.Path[i : i+poseFloats])
		e.Path = append(e.Path, p)
	}
	if len(c.PathAnchors) > 0 {
		e.PathAnchors = make(map[string]Pose, len(c.PathAnchors))
		for id, m := range c.PathAnchors {
			if p, err := poseFromFloats(m); err == nil {
				e.PathAnchors[id] = p
			}
		}
	}
	return e, nil
}

func poseFromFloats(m []float64) (Pose, error) {
	if len(m) != poseFloats {
		return Pose{}, fmt.Errorf("want %d floats, got %d", poseFloats, len(m))
	}
	var a [poseFloats]float64
	copy(a[:], m)
	return ColumnMajorPose(a), nil
}

// EncodeMap converts a graph back to its persisted form. Synthesized edges
// are left out.
func EncodeMap(g *RouteGraph) *MapDocument {
	doc := &MapDocument{}
	for _, l := range g.Landmarks() {
		a := AnchorRecord{ID: l.ID, Name: l.Name, Category: l.Category}
		if l.Pose != nil {
			m := l.Pose.ColumnMajor()
			a.Pose = m[:]
		}
		if l.Outdoor != nil {
			a.AssociatedOutdoorFeature = l.OutdoorFeature
			if a.AssociatedOutdoorFeature == "" {
				a.AssociatedOutdoorFeature = l.ID
			}
			a.Location = &GeoLocation{Latitude: l.Outdoor.Lat(), Longitude: l.Outdoor.Lon()}
		}
		doc.Anchors = append(doc.Anchors, a)
	}
	for _, e := range g.Edges() {
		if e.Synthesized {
			continue
		}
		from, to := e.Start.ColumnMajor(), e.End.ColumnMajor()
		c := ConnectionRecord{FromID: e.From, ToID: e.To, FromPose: from[:], ToPose: to[:]}
		for _, p := range e.Path {
			m := p.ColumnMajor()
			c.Path = append(c.Path, m[:]...)
		}
		if len(e.PathAnchors) > 0 {
			c.PathAnchors = make(map[string][]float64, len(e.PathAnchors))
			for id, p := range e.PathAnchors {
				m := p.ColumnMajor()
				c.PathAnchors[id] = m[:]
			}
		}
		doc.Connections = append(doc.Connections, c)
	}
	return doc
}
