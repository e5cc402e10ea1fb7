package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-9

func assertVecNear(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

func assertPoseNear(t *testing.T, want, got Pose, tol float64) {
	t.Helper()
	assertVecNear(t, want.Position, got.Position, tol)
	// q and -q describe the same rotation; compare rotated axes instead.
	assertVecNear(t, want.Forward(), got.Forward(), tol)
	assertVecNear(t, want.Up(), got.Up(), tol)
}

func TestYawPose_ForwardMatchesYaw(t *testing.T) {
	tests := []struct {
		name string
		yaw  float64
		want r3.Vec
	}{
		{"ahead", 0, r3.Vec{Z: -1}},
		{"right", math.Pi / 2, r3.Vec{X: 1}},
		{"left", -math.Pi / 2, r3.Vec{X: -1}},
		{"behind", math.Pi, r3.Vec{Z: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := YawPose(tt.yaw, r3.Vec{})
			assertVecNear(t, tt.want, p.Forward(), eps)
			assert.InDelta(t, 0, AngleDiff(tt.yaw, p.Yaw()), 1e-9)
		})
	}
}

func TestPose_MulInverse(t *testing.T) {
	p := YawPose(0.7, r3.Vec{X: 1, Y: 2, Z: 3})
	q := NewPose(r3.Vec{X: -4, Y: 0.5, Z: 2}, quat.Number(r3.NewRotation(0.3, r3.Vec{X: 1, Y: 1})))

	assertPoseNear(t, IdentityPose(), p.Mul(p.Inverse()), eps)
	assertPoseNear(t, IdentityPose(), q.Inverse().Mul(q), eps)

	pt := r3.Vec{X: 0.2, Y: -1, Z: 5}
	assertVecNear(t, p.Apply(q.Apply(pt)), p.Mul(q).Apply(pt), eps)
}

func TestPose_ZeroValueIsUsable(t *testing.T) {
	var p Pose
	assertVecNear(t, r3.Vec{X: 1, Y: 2, Z: 3}, p.Apply(r3.Vec{X: 1, Y: 2, Z: 3}), eps)
}

func TestPose_Leveled(t *testing.T) {
	// Face 40° right, then pitch the phone down and roll it a little.
	yaw := 40 * math.Pi / 180
	tilt := quat.Mul(
		quat.Number(r3.NewRotation(-0.6, r3.Vec{X: 1})),
		quat.Number(r3.NewRotation(0.2, r3.Vec{Z: 1})),
	)
	p := NewPose(r3.Vec{X: 1, Y: 1.4, Z: -2}, quat.Mul(yawRotation(yaw), tilt))

	lv := p.Leveled()
	assertVecNear(t, p.Position, lv.Position, eps)
	assertVecNear(t, WorldUp, lv.Up(), 1e-9)
	assert.InDelta(t, 0, lv.Forward().Y, 1e-9)

	// Leveling a leveled pose changes nothing.
	assertPoseNear(t, lv, lv.Leveled(), 1e-9)
}

func TestPose_LeveledUpsideDown(t *testing.T) {
	p := NewPose(r3.Vec{}, quat.Number(r3.NewRotation(math.Pi, r3.Vec{X: 1})))
	lv := p.Leveled()
	assertVecNear(t, WorldUp, lv.Up(), 1e-9)
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeAngle(tt.in), 1e-12, "NormalizeAngle(%v)", tt.in)
	}
}

func TestAngleDiffAndMean(t *testing.T) {
	assert.InDelta(t, 0.2, AngleDiff(math.Pi-0.1, -math.Pi+0.1)*-1, 1e-12)
	assert.InDelta(t, math.Pi, math.Abs(CircularMean(math.Pi-0.1, -math.Pi+0.1)), 1e-12)
	assert.InDelta(t, 0.5, CircularMean(0.4, 0.6), 1e-12)
}

func TestColumnMajorRoundTrip(t *testing.T) {
	p := NewPose(r3.Vec{X: 3, Y: -1, Z: 0.5}, quat.Number(r3.NewRotation(2.1, r3.Vec{X: 0.3, Y: 1, Z: -0.2})))
	m := p.ColumnMajor()
	assert.Equal(t, 1.0, m[15])
	assertPoseNear(t, p, ColumnMajorPose(m), 1e-9)

	identity := [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 4, 5, 6, 1}
	assertPoseNear(t, NewPose(r3.Vec{X: 4, Y: 5, Z: 6}, quat.Number{Real: 1}), ColumnMajorPose(identity), eps)
}

func TestPlanarDistance(t *testing.T) {
	a := r3.Vec{X: 0, Y: 10, Z: 0}
	b := r3.Vec{X: 3, Y: -2, Z: 4}
	assert.InDelta(t, 5, PlanarDistance(a, b), 1e-12)
	assert.InDelta(t, math.Sqrt(9+144+16), Distance(a, b), 1e-12)
}
