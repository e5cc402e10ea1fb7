package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

const deg = math.Pi / 180

// walk feeds n samples taken every step metres along walkYaw while the
// device reports heading.
func walk(h *HeadingCalibrator, n int, step, walkYaw, heading float64) []HeadingUpdate {
	dir := HeadingVector(walkYaw)
	out := make([]HeadingUpdate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, h.Tick(heading, r3.Scale(float64(i)*step, dir)))
	}
	return out
}

func committed(updates []HeadingUpdate) int {
	n := 0
	for _, u := range updates {
		if u.Committed {
			n++
		}
	}
	return n
}

func TestHeadingCalibrator_StraightWalkConverges(t *testing.T) {
	muteLogs(t)
	h := NewHeadingCalibrator(DefaultHeadingConfig())

	updates := walk(h, 25, 0.2, 0.3, 0.3-10*deg)

	for _, u := range updates[:19] {
		assert.False(t, u.Committed)
	}
	assert.True(t, updates[19].Committed)
	assert.Equal(t, 6, committed(updates))
	assert.InDelta(t, 10*deg, h.Offset(), 1e-9)
	assert.InDelta(t, 10*deg, updates[24].Offset, 1e-9)
}

func TestHeadingCalibrator_CurvedPathNeverCommits(t *testing.T) {
	muteLogs(t)
	h := NewHeadingCalibrator(DefaultHeadingConfig())

	const radius = 3.0
	for i := 0; i < 40; i++ {
		a := float64(i) * 0.1
		pos := r3.Vec{X: radius * math.Sin(a), Z: -radius * math.Cos(a)}
		u := h.Tick(a+math.Pi/2, pos)
		assert.False(t, u.Committed, "tick %d", i)
		assert.False(t, u.Lost, "tick %d", i)
	}
	assert.Zero(t, h.Offset())
}

func TestHeadingCalibrator_BackwardsWalk(t *testing.T) {
	muteLogs(t)
	h := NewHeadingCalibrator(DefaultHeadingConfig())

	updates := walk(h, 20, 0.2, 0, math.Pi+0.1)
	assert.True(t, updates[19].Committed)
	assert.InDelta(t, -0.1, h.Offset(), 1e-9)
}

func TestHeadingCalibrator_SidewaysIsRejected(t *testing.T) {
	muteLogs(t)
	h := NewHeadingCalibrator(DefaultHeadingConfig())

	updates := walk(h, 30, 0.2, 0, -100*deg)
	assert.Zero(t, committed(updates))
	assert.Zero(t, h.Offset())
}

func TestHeadingCalibrator_ShortWalkIsIgnored(t *testing.T) {
	muteLogs(t)
	h := NewHeadingCalibrator(DefaultHeadingConfig())

	updates := walk(h, 40, 0.05, 0, 0.2)
	assert.Zero(t, committed(updates))
	for _, u := range updates {
		assert.False(t, u.Lost)
	}
}

func TestHeadingCalibrator_LostWhileStationary(t *testing.T) {
	muteLogs(t)
	h := NewHeadingCalibrator(DefaultHeadingConfig())
	h.SetOffset(0.2)

	var last HeadingUpdate
	for i := 0; i < 20; i++ {
		heading := 0.0
		if i%2 == 1 {
			heading = 2.0
		}
		last = h.Tick(heading, r3.Vec{X: 0.01 * float64(i%3)})
		if i < 19 {
			assert.False(t, last.Lost)
		}
	}
	assert.True(t, last.Lost)
	assert.InDelta(t, 0.2, last.Offset, 1e-12)

	// Buffers were cleared, so the next sample starts over.
	assert.False(t, h.Tick(2.0, r3.Vec{}).Lost)
}

func TestHeadingCalibrator_Defaults(t *testing.T) {
	h := NewHeadingCalibrator(HeadingConfig{})
	assert.Equal(t, DefaultHeadingConfig(), h.cfg)

	h = NewHeadingCalibrator(HeadingConfig{BufferSize: 1})
	assert.Equal(t, 2, h.cfg.BufferSize)

	assert.Equal(t, HeadingUpdate{}, h.Tick(math.NaN(), r3.Vec{}))
	assert.Empty(t, h.headings)

	h.SetOffset(3 * math.Pi)
	assert.InDelta(t, math.Pi, math.Abs(h.Offset()), 1e-9)
}
