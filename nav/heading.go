package nav

import (
	"math"

	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r3"
)

// HeadingUpdate is the outcome of one calibrator tick.
type HeadingUpdate struct {
	Offset    float64 `json:"offset"` // radians, last committed value
	Committed bool    `json:"committed"`
	Lost      bool    `json:"lost"`
}

// HeadingCalibrator estimates the angle between where the phone points and
// where the user actually walks. While the user walks a straight line with a
// steady heading, the offset between the walked direction and the reported
// heading is committed. A user who stands still while the heading swings
// about is reported lost.
type HeadingCalibrator struct {
	cfg       HeadingConfig
	headings  []float64
	positions []r3.Vec
	offset    float64
}

// NewHeadingCalibrator returns a calibrator with an offset of zero.
// Zero-valued settings take their defaults.
func NewHeadingCalibrator(cfg HeadingConfig) *HeadingCalibrator {
	c := Config{Heading: cfg}
	c.applyDefaults()
	if c.Heading.BufferSize < 2 {
		c.Heading.BufferSize = 2
	}
	return &HeadingCalibrator{cfg: c.Heading}
}

// Offset returns the last committed offset in radians.
func (h *HeadingCalibrator) Offset() float64 {
	return h.offset
}

// SetOffset seeds the offset, for example from a cached value.
func (h *HeadingCalibrator) SetOffset(offset float64) {
	h.offset = NormalizeAngle(offset)
}

// Reset clears both buffers. The committed offset is kept.
func (h *HeadingCalibrator) Reset() {
	h.headings = h.headings[:0]
	h.positions = h.positions[:0]
}

// Tick records one heading/position sample.
func (h *HeadingCalibrator) Tick(headingYaw float64, position r3.Vec) HeadingUpdate {
	if math.IsNaN(headingYaw) || math.IsNaN(position.X) || math.IsNaN(position.Z) {
		return HeadingUpdate{Offset: h.offset}
	}

	h.headings = append(h.headings, NormalizeAngle(headingYaw))
	h.positions = append(h.positions, position)
	if n := len(h.headings) - h.cfg.BufferSize; n > 0 {
		h.headings = append(h.headings[:0], h.headings[n:]...)
		h.positions = append(h.positions[:0], h.positions[n:]...)
	}
	if len(h.headings) < h.cfg.BufferSize {
		return HeadingUpdate{Offset: h.offset}
	}

	first, last := h.positions[0], h.positions[len(h.positions)-1]
	walked := flatten(r3.Sub(last, first))
	if r3.Norm(walked) < h.cfg.MinDistance {
		if h.swinging() {
			Logf("[HEADING] Heading swinging while stationary, user may be lost")
			h.Reset()
			return HeadingUpdate{Offset: h.offset, Lost: true}
		}
		return HeadingUpdate{Offset: h.offset}
	}

	if !h.steady() || !h.straight() {
		return HeadingUpdate{Offset: h.offset}
	}

	startHeading, endHeading := h.headings[0], h.headings[len(h.headings)-1]
	offset := AngleDiff(YawOf(walked), CircularMean(startHeading, endHeading))
	if math.Cos(offset) < -0.5 {
		// walking backwards
		offset = NormalizeAngle(offset - math.Pi)
	}
	if math.Cos(offset) < 0 {
		return HeadingUpdate{Offset: h.offset}
	}

	h.offset = offset
	Logf("[HEADING] Committed offset %.1f°", offset*180/math.Pi)
	return HeadingUpdate{Offset: h.offset, Committed: true}
}

// steady reports whether every heading is within tolerance of both the
// first and the last heading in the buffer.
func (h *HeadingCalibrator) steady() bool {
	tol := h.cfg.HeadingTolerance * math.Pi / 180
	first, last := h.headings[0], h.headings[len(h.headings)-1]
	for _, a := range h.headings {
		if math.Abs(AngleDiff(a, first)) > tol || math.Abs(AngleDiff(a, last)) > tol {
			return false
		}
	}
	return true
}

// straight reports whether every position lies near the line from the first
// to the last one.
func (h *HeadingCalibrator) straight() bool {
	a := groundPoint(h.positions[0])
	b := groundPoint(h.positions[len(h.positions)-1])
	for _, p := range h.positions {
		if planar.DistanceFromSegment(a, b, groundPoint(p)) > h.cfg.LinearTolerance {
			return false
		}
	}
	return true
}

func (h *HeadingCalibrator) swinging() bool {
	mean := meanAngle(h.headings)
	tol := h.cfg.LostTolerance * math.Pi / 180
	for _, a := range h.headings {
		if math.Abs(AngleDiff(a, mean)) > tol {
			return true
		}
	}
	return false
}

// meanAngle is the circular mean of a set of angles.
func meanAngle(angles []float64) float64 {
	var s, c float64
	for _, a := range angles {
		s += math.Sin(a)
		c += math.Cos(a)
	}
	return math.Atan2(s, c)
}
