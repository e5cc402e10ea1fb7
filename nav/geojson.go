package nav

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	orbsimplify "github.com/paulmach/orb/simplify"
)

// Route and edge geometry is exported in the local ground plane: GeoJSON x
// is world x and GeoJSON y is world z. Only entrances carry lon/lat.

// RouteGeoJSON renders a navigation status as a feature collection: the
// keypoint polyline, simplified with Douglas-Peucker when tolerance is
// positive, followed by one point per keypoint.
func RouteGeoJSON(status Status, tolerance float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(status.Keypoints) == 0 {
		return fc
	}

	line := make(orb.LineString, 0, len(status.Keypoints))
	for _, kp := range status.Keypoints {
		line = append(line, groundPoint(kp.Position()))
	}
	if len(line) >= 2 {
		line = simplifyLine(line, tolerance)
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["landmarks"] = status.Route
		f.Properties["complete"] = status.Complete
		fc.Append(f)
	}

	for i, kp := range status.Keypoints {
		f := geojson.NewFeature(groundPoint(kp.Position()))
		f.Properties["kind"] = "keypoint"
		f.Properties["index"] = i
		f.Properties["mode"] = string(kp.Mode)
		f.Properties["reached"] = i < status.Current
		if kp.ID != "" {
			f.Properties["anchor"] = kp.ID
		}
		fc.Append(f)
	}
	return fc
}

// EdgeGeoJSON renders a recorded segment as a line in its own session
// frame, with its path anchors as points.
func EdgeGeoJSON(e *Edge, tolerance float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	line := orb.LineString{groundPoint(e.Start.Position)}
	for _, p := range e.Path {
		line = append(line, groundPoint(p.Position))
	}
	line = append(line, groundPoint(e.End.Position))

	f := geojson.NewFeature(simplifyLine(line, tolerance))
	f.Properties["kind"] = "edge"
	f.Properties["from"] = e.From
	f.Properties["to"] = e.To
	f.Properties["cost"] = e.Cost()
	f.Properties["synthesized"] = e.Synthesized
	fc.Append(f)

	for _, id := range sortedKeys(e.PathAnchors) {
		a := geojson.NewFeature(groundPoint(e.PathAnchors[id].Position))
		a.Properties["kind"] = "path-anchor"
		a.Properties["anchor"] = id
		fc.Append(a)
	}
	return fc
}

// EntrancesGeoJSON lists the landmarks that have an outdoor entrance as
// lon/lat points.
func EntrancesGeoJSON(landmarks []Landmark) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range landmarks {
		if l.Outdoor == nil {
			continue
		}
		f := geojson.NewFeature(*l.Outdoor)
		f.ID = l.ID
		f.Properties["kind"] = "entrance"
		if l.Name != "" {
			f.Properties["name"] = l.Name
		}
		if l.Category != "" {
			f.Properties["category"] = l.Category
		}
		if l.OutdoorFeature != "" {
			f.Properties["feature"] = l.OutdoorFeature
		}
		fc.Append(f)
	}
	return fc
}

// simplifyLine drops vertices closer than tolerance metres to the line
// through their neighbours. The input is not modified.
func simplifyLine(line orb.LineString, tolerance float64) orb.LineString {
	if tolerance <= 0 || len(line) <= 2 {
		return line
	}
	return orbsimplify.DouglasPeucker(tolerance).LineString(line.Clone())
}

func sortedKeys(m map[string]Pose) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
