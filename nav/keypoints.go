package nav

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultPathWidth is how far (m) a breadcrumb may stray from the chord
	// of its segment before it becomes a turn point.
	DefaultPathWidth = 0.3
)

// DefaultOrientation is the forward axis given to a keypoint with no
// predecessor.
var DefaultOrientation = r3.Vec{Z: -1}

// KeypointMode says which frame a keypoint's pose is expressed in.
type KeypointMode string

const (
	// ModeCloudAnchor keypoints live in the recorded route frame and need
	// an alignment before they can be used.
	ModeCloudAnchor KeypointMode = "cloud-anchor"

	// ModeGeo keypoints were placed by a terrain anchor and are already in
	// the live tracking frame.
	ModeGeo KeypointMode = "geo"
)

// Keypoint is a turn point along a planned route.
type Keypoint struct {
	ID          string       `json:"id"`
	Mode        KeypointMode `json:"mode"`
	Pose        Pose         `json:"pose"`
	Orientation r3.Vec       `json:"orientation"`
}

// Position is shorthand for the keypoint's location.
func (k Keypoint) Position() r3.Vec { return k.Pose.Position }

// groundNormal maps a chord onto the horizontal vector perpendicular to it.
var groundNormal = r3.NewMat([]float64{
	0, 0, 1,
	0, 0, 0,
	-1, 0, 0,
})

// ExtractKeypoints simplifies a breadcrumb trail into turn points. The first
// and last breadcrumbs are always kept. When indices is non-empty only the
// breadcrumbs at those indices (in the given order) are used and each of
// them becomes a keypoint.
func ExtractKeypoints(crumbs []Pose, indices []int) []Keypoint {
	if len(indices) > 0 {
		selected := make([]Pose, 0, len(indices))
		for _, i := range indices {
			if i >= 0 && i < len(crumbs) {
				selected = append(selected, crumbs[i])
			}
		}
		return newKeypoints(selected)
	}

	switch len(crumbs) {
	case 0:
		return nil
	case 1:
		return newKeypoints(crumbs)
	}

	kept := make([]Pose, 0, 8)
	kept = append(kept, crumbs[0])
	kept = append(kept, simplify(crumbs, DefaultPathWidth)...)
	kept = append(kept, crumbs[len(crumbs)-1])
	return newKeypoints(kept)
}

func newKeypoints(poses []Pose) []Keypoint {
	kps := make([]Keypoint, len(poses))
	for i, p := range poses {
		kps[i] = Keypoint{ID: uuid.NewString(), Mode: ModeCloudAnchor, Pose: p}
	}
	return kps
}

// simplify returns the interior breadcrumbs that deviate from the chord by
// more than width, recursing on either side of the worst one.
func simplify(crumbs []Pose, width float64) []Pose {
	if len(crumbs) < 3 {
		return nil
	}

	idx, dev := farthestFromChord(crumbs)
	if dev <= width {
		return nil
	}

	out := simplify(crumbs[:idx+1], width)
	out = append(out, crumbs[idx])
	return append(out, simplify(crumbs[idx:], width)...)
}

// farthestFromChord finds the breadcrumb with the largest combined lateral
// and vertical offset from the line through the first and last breadcrumb.
// Ties keep the earliest index.
func farthestFromChord(crumbs []Pose) (int, float64) {
	first := crumbs[0].Position
	chord := r3.Sub(crumbs[len(crumbs)-1].Position, first)

	deviation := chordDeviation(chord)
	best, bestDev := 0, 0.0
	for i, c := range crumbs {
		d := deviation(r3.Sub(c.Position, first))
		if d > bestDev {
			best, bestDev = i, d
		}
	}
	return best, bestDev
}

// chordDeviation returns a function measuring how far an offset from the
// chord's start lies from the chord line. The offset is split into a
// horizontal component across the chord and a component orthogonal to both
// the chord and that horizontal, so height changes count as leaving the path.
func chordDeviation(chord r3.Vec) func(r3.Vec) float64 {
	length := r3.Norm(chord)
	if length < 1e-9 {
		// Closed loop: measure distance from the start.
		return r3.Norm
	}

	lateral := groundNormal.MulVec(chord)
	if r3.Norm(lateral) < 1e-9 {
		// Vertical chord (a lift or ladder); fall back to line distance.
		u := r3.Scale(1/length, chord)
		return func(c r3.Vec) float64 {
			return r3.Norm(r3.Sub(c, r3.Scale(r3.Dot(c, u), u)))
		}
	}

	lateral = r3.Unit(lateral)
	vertical := r3.Cross(r3.Scale(1/length, chord), lateral)
	return func(c r3.Vec) float64 {
		a, b := r3.Dot(c, vertical), r3.Dot(c, lateral)
		return r3.Norm(r3.Vec{X: a, Y: b})
	}
}

// OrientKeypoints sets each keypoint's orientation to the horizontal unit
// vector from its predecessor. The first keypoint gets DefaultOrientation
// and keypoints stacked directly above their predecessor inherit its
// orientation.
func OrientKeypoints(kps []Keypoint) {
	prevDir := DefaultOrientation
	for i := range kps {
		if i > 0 {
			d := flatten(r3.Sub(kps[i].Position(), kps[i-1].Position()))
			if r3.Norm(d) > 1e-6 {
				prevDir = r3.Unit(d)
			}
		}
		kps[i].Orientation = prevDir
	}
}
