package nav

import "fmt"

// StitchedRoute is a multi-segment route expressed in one shared frame.
type StitchedRoute struct {
	// Landmarks are the ids the route visits, in order.
	Landmarks []string

	// Poses is the continuous trajectory: every segment's leveled start,
	// its breadcrumbs and its leveled end.
	Poses []Pose

	// Anchors holds every landmark seen along the route in the route frame,
	// ready for the LandmarkAligner.
	Anchors map[string]Pose

	// Keypoints are the simplified turn points of Poses.
	Keypoints []Keypoint
}

// Stitch joins the recorded segments between consecutive landmarks into one
// route. Each segment is moved into the frame of the one before it by
// lining up its leveled start with the previous segment's leveled end. A
// missing segment aborts the whole stitch.
func Stitch(g *RouteGraph, ids []string) (*StitchedRoute, error) {
	if len(ids) < 2 {
		return nil, ErrRouteTooShort
	}

	route := &StitchedRoute{
		Landmarks: append([]string(nil), ids...),
		Anchors:   make(map[string]Pose),
	}

	aligner := IdentityPose()
	var prevEnd *Pose
	for i := 0; i < len(ids)-1; i++ {
		from, to := ids[i], ids[i+1]
		e, ok := g.Edge(from, to)
		if !ok {
			return nil, fmt.Errorf("stitch %s -> %s: %w", from, to, ErrMissingEdge)
		}

		start := e.Start.Leveled()
		if prevEnd != nil {
			aligner = prevEnd.Mul(start.Inverse())
		}

		route.Anchors[from] = aligner.Mul(start)
		route.Anchors[to] = aligner.Mul(e.End.Leveled())
		for id, p := range e.PathAnchors {
			route.Anchors[id] = aligner.Mul(p.Leveled())
		}

		route.Poses = append(route.Poses, aligner.Mul(start))
		for _, p := range e.Path {
			route.Poses = append(route.Poses, aligner.Mul(p))
		}
		end := aligner.Mul(e.End.Leveled())
		route.Poses = append(route.Poses, end)
		prevEnd = &end
	}

	route.Keypoints = ExtractKeypoints(route.Poses, nil)
	OrientKeypoints(route.Keypoints)
	return route, nil
}
