package nav

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// officeMapJSON encodes the A->B->C corridor with an outdoor entrance at A.
func officeMapJSON(t *testing.T) []byte {
	t.Helper()
	g := twoSegmentGraph(YawPose(1.0, r3.Vec{X: 10, Z: 2}))
	start := IdentityPose()
	g.AddLandmark(Landmark{ID: "A", Name: "Front door", Category: "door", Pose: &start,
		Outdoor: &entrance, OutdoorFeature: "Main St entrance"})

	data, err := json.Marshal(EncodeMap(g))
	require.NoError(t, err)
	return data
}

func TestParseMapJSON(t *testing.T) {
	muteLogs(t)
	g, err := ParseMapJSON(officeMapJSON(t))
	require.NoError(t, err)

	require.Len(t, g.Landmarks(), 3)
	a, ok := g.Landmark("A")
	require.True(t, ok)
	assert.Equal(t, "Front door", a.Name)
	assert.Equal(t, "door", a.Category)
	require.NotNil(t, a.Pose)
	require.NotNil(t, a.Outdoor)
	assert.InDelta(t, entrance.Lon(), a.Outdoor.Lon(), 1e-12)
	assert.InDelta(t, entrance.Lat(), a.Outdoor.Lat(), 1e-12)
	assert.Equal(t, "Main St entrance", a.OutdoorFeature)

	b, _ := g.Landmark("B")
	assert.Nil(t, b.Outdoor)

	// Two recorded connections plus their synthesized reverses.
	assert.Len(t, g.Edges(), 4)

	ab, ok := g.Edge("A", "B")
	require.True(t, ok)
	assert.False(t, ab.Synthesized)
	assert.Len(t, ab.Path, 4)
	assertVecNear(t, r3.Vec{Z: -2}, ab.Path[1].Position, 1e-9)

	bc, _ := g.Edge("B", "C")
	require.Contains(t, bc.PathAnchors, "sign")

	ids, cost := g.ShortestPath("C", "A")
	assert.Equal(t, []string{"C", "B", "A"}, ids)
	assert.InDelta(t, 9, cost, 1e-9)
}

func TestParseMapJSON_StitchesAfterRoundTrip(t *testing.T) {
	muteLogs(t)
	g, err := ParseMapJSON(officeMapJSON(t))
	require.NoError(t, err)

	route, err := Stitch(g, []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, route.Keypoints, 3)
	assertVecNear(t, r3.Vec{X: 4, Z: -5}, route.Keypoints[2].Position(), 1e-9)
}

func TestParseMapJSON_SkipsMalformedConnections(t *testing.T) {
	muteLogs(t)
	id := IdentityPose().ColumnMajor()
	doc := MapDocument{
		Anchors: []AnchorRecord{{ID: "A"}, {ID: "B"}},
		Connections: []ConnectionRecord{
			{FromID: "A", ToID: "B", FromPose: id[:], ToPose: id[:5]},
			{FromID: "", ToID: "B", FromPose: id[:], ToPose: id[:]},
			{FromID: "B", ToID: "A", FromPose: id[:], ToPose: id[:], Path: append(id[:], 1, 2, 3)},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	g, err := ParseMapJSON(data)
	require.NoError(t, err)

	ba, ok := g.Edge("B", "A")
	require.True(t, ok)
	assert.Len(t, ba.Path, 1, "trailing partial pose ignored")

	ab, ok := g.Edge("A", "B")
	require.True(t, ok)
	assert.True(t, ab.Synthesized, "malformed A->B replaced by reverse of B->A")
}

func TestParseMapJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"anchors": [`},
		{"no anchors", `{"anchors": [], "connections": []}`},
		{"missing id", `{"anchors": [{"name": "lobby"}]}`},
		{"reserved id", `{"anchors": [{"id": "outdoors"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseMapJSON([]byte(tt.data))
			assert.Error(t, err)
			assert.Nil(t, g)
		})
	}
}

func TestParseMapJSON_EntranceNeedsFeature(t *testing.T) {
	muteLogs(t)
	data := `{"anchors": [
		{"id": "A", "location": {"latitude": 42.36, "longitude": -71.05}},
		{"id": "B", "associatedOutdoorFeature": "north lot", "location": {"latitude": 42.37, "longitude": -71.06}}
	]}`
	g, err := ParseMapJSON([]byte(data))
	require.NoError(t, err)

	a, _ := g.Landmark("A")
	assert.Nil(t, a.Outdoor)
	b, _ := g.Landmark("B")
	require.NotNil(t, b.Outdoor)
	assert.Equal(t, orb.Point{-71.06, 42.37}, *b.Outdoor)
}

func TestLoadMapFile(t *testing.T) {
	muteLogs(t)
	_, err := LoadMapFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "map file not found")

	path := filepath.Join(t.TempDir(), "office.json")
	require.NoError(t, os.WriteFile(path, officeMapJSON(t), 0644))
	g, err := LoadMapFile(path)
	require.NoError(t, err)
	assert.True(t, g.HasLandmark("C"))
}

func TestEncodeMap_OutdoorFeature(t *testing.T) {
	g := NewRouteGraph()
	named, unnamed := entrance, orb.Point{-71.06, 42.36}
	g.AddLandmark(Landmark{ID: "A", Outdoor: &named, OutdoorFeature: "Main St entrance"})
	g.AddLandmark(Landmark{ID: "B", Outdoor: &unnamed})
	g.AddLandmark(Landmark{ID: "C"})

	features := map[string]string{}
	for _, a := range EncodeMap(g).Anchors {
		features[a.ID] = a.AssociatedOutdoorFeature
	}
	assert.Equal(t, map[string]string{"A": "Main St entrance", "B": "B", "C": ""}, features)
}

func TestEncodeMap_DropsSynthesizedEdges(t *testing.T) {
	g := abcGraph()
	g.SynthesizeReverseEdges()
	doc := EncodeMap(g)
	assert.Len(t, doc.Connections, 2)
	assert.Len(t, doc.Anchors, 3)
}
