package nav

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxDetections bounds the per-landmark re-detection history.
const maxDetections = 16

// LandmarkAligner fuses landmark re-detections into one map-to-live
// alignment by letting every landmark propose an alignment and keeping the
// proposal most others agree with.
type LandmarkAligner struct {
	radius   float64
	mapPoses map[string]Pose
	history  map[string][]TimedPose
}

// alignmentCandidate is one landmark's proposal.
type alignmentCandidate struct {
	landmark  string
	transform Pose
	timestamp float64
}

// NewLandmarkAligner returns an aligner that treats proposals within radius
// metres of each other as agreeing.
func NewLandmarkAligner(radius float64) *LandmarkAligner {
	if radius <= 0 {
		radius = DefaultAlignmentConfig().AgreementRadius
	}
	return &LandmarkAligner{
		radius:   radius,
		mapPoses: make(map[string]Pose),
		history:  make(map[string][]TimedPose),
	}
}

// SetMapLandmarks replaces the recorded landmark poses. Re-detection history
// is kept so a re-planned route can reuse landmarks already seen.
func (a *LandmarkAligner) SetMapLandmarks(landmarks map[string]Pose) {
	a.mapPoses = make(map[string]Pose, len(landmarks))
	for id, p := range landmarks {
		a.mapPoses[id] = p
	}
}

// MapLandmarks returns a copy of the recorded landmark poses.
func (a *LandmarkAligner) MapLandmarks() map[string]Pose {
	out := make(map[string]Pose, len(a.mapPoses))
	for id, p := range a.mapPoses {
		out[id] = p
	}
	return out
}

// Observe records a live re-detection of a landmark.
func (a *LandmarkAligner) Observe(id string, pose Pose, timestamp float64) {
	h := append(a.history[id], TimedPose{Pose: pose, Timestamp: timestamp})
	if len(h) > maxDetections {
		h = h[len(h)-maxDetections:]
	}
	a.history[id] = h
}

// Detections returns how many re-detections are held for a landmark.
func (a *LandmarkAligner) Detections(id string) int {
	return len(a.history[id])
}

// Reset forgets every re-detection.
func (a *LandmarkAligner) Reset() {
	a.history = make(map[string][]TimedPose)
}

// candidates builds one proposal per landmark that has both a recorded pose
// and a re-detection, ordered by landmark id.
func (a *LandmarkAligner) candidates() []alignmentCandidate {
	ids := make([]string, 0, len(a.history))
	for id, h := range a.history {
		if _, ok := a.mapPoses[id]; ok && len(h) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]alignmentCandidate, 0, len(ids))
	for _, id := range ids {
		h := a.history[id]
		latest := h[len(h)-1]
		for _, d := range h {
			if d.Timestamp > latest.Timestamp {
				latest = d
			}
		}
		out = append(out, alignmentCandidate{
			landmark:  id,
			transform: latest.Pose.Leveled().Mul(a.mapPoses[id].Leveled().Inverse()),
			timestamp: latest.Timestamp,
		})
	}
	return out
}

// Estimate returns the best supported alignment for the device's current
// pose. Each proposal scores one vote for every other proposal, including
// the previous alignment, that places the device within the agreement
// radius of where it places it. The highest score wins and ties go to the
// most recent re-detection; the previous alignment competes with timestamp
// zero so it only survives with strictly more support. With nothing to vote
// on, previous is returned unchanged.
func (a *LandmarkAligner) Estimate(device *Pose, previous *Pose) *Pose {
	cands := a.candidates()
	if len(cands) == 0 || device == nil {
		return previous
	}
	if previous != nil {
		cands = append(cands, alignmentCandidate{transform: *previous})
	}

	projected := make([]r3.Vec, len(cands))
	for i, c := range cands {
		projected[i] = c.transform.Mul(*device).Position
	}

	best, bestVotes := -1, -1
	for i, c := range cands {
		votes := 0
		for j := range cands {
			if i != j && Distance(projected[i], projected[j]) <= a.radius {
				votes++
			}
		}
		if votes > bestVotes || (votes == bestVotes && c.timestamp > cands[best].timestamp) {
			best, bestVotes = i, votes
		}
	}

	chosen := cands[best]
	if chosen.landmark != "" {
		Logf("[ALIGN] %d proposals, chose %s with %d votes", len(cands), chosen.landmark, bestVotes)
	}
	t := chosen.transform
	return &t
}
