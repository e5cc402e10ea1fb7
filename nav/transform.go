package nav

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// World axes. Tracking frames are gravity aligned with +Y up and the
// device looking down its -Z axis.
var (
	WorldUp     = r3.Vec{Y: 1}
	deviceFront = r3.Vec{Z: -1}
	deviceUp    = r3.Vec{Y: 1}
	deviceRight = r3.Vec{X: 1}
)

// Pose is a rigid transform: a rotation followed by a translation.
type Pose struct {
	Position r3.Vec      `json:"position"`
	Rotation quat.Number `json:"rotation"`
}

// TimedPose is a pose with the time it was captured, in seconds.
type TimedPose struct {
	Pose
	Timestamp float64 `json:"timestamp"`
}

// IdentityPose returns the transform that leaves every point unchanged.
func IdentityPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// NewPose builds a pose from a position and a (not necessarily unit) rotation.
func NewPose(position r3.Vec, rotation quat.Number) Pose {
	return Pose{Position: position, Rotation: unitQuat(rotation)}
}

// YawPose returns a gravity aligned pose at position facing yaw radians
// clockwise from -Z.
func YawPose(yaw float64, position r3.Vec) Pose {
	return Pose{Position: position, Rotation: yawRotation(yaw)}
}

// yawRotation turns clockwise (seen from above) by yaw, which is a negative
// right-handed rotation about +Y.
func yawRotation(yaw float64) quat.Number {
	return quat.Number(r3.NewRotation(-yaw, WorldUp))
}

func unitQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{Real: 1}
	}
	if n == 1 {
		return q
	}
	return quat.Scale(1/n, q)
}

func (p Pose) rotation() r3.Rotation {
	return r3.Rotation(unitQuat(p.Rotation))
}

// Rotate applies only the rotational part of p to v.
func (p Pose) Rotate(v r3.Vec) r3.Vec {
	return p.rotation().Rotate(v)
}

// Apply maps a point through p.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(p.Rotate(v), p.Position)
}

// Mul returns the composition p × o: o is applied first, then p.
func (p Pose) Mul(o Pose) Pose {
	return Pose{
		Position: p.Apply(o.Position),
		Rotation: unitQuat(quat.Mul(unitQuat(p.Rotation), unitQuat(o.Rotation))),
	}
}

// Inverse returns the transform that undoes p.
func (p Pose) Inverse() Pose {
	inv := quat.Conj(unitQuat(p.Rotation))
	return Pose{
		Position: r3.Scale(-1, r3.Rotation(inv).Rotate(p.Position)),
		Rotation: inv,
	}
}

// Forward is the direction the pose is facing (its rotated -Z axis).
func (p Pose) Forward() r3.Vec { return p.Rotate(deviceFront) }

// Up is the rotated +Y axis.
func (p Pose) Up() r3.Vec { return p.Rotate(deviceUp) }

// Right is the rotated +X axis.
func (p Pose) Right() r3.Vec { return p.Rotate(deviceRight) }

// Leveled drops roll and pitch, keeping yaw and translation. The smallest
// rotation that brings the pose's up axis back onto world up is applied on
// the left, so the heading the pose had is preserved.
func (p Pose) Leveled() Pose {
	fix := rotationBetween(r3.Unit(p.Up()), WorldUp)
	return Pose{
		Position: p.Position,
		Rotation: unitQuat(quat.Mul(fix, unitQuat(p.Rotation))),
	}
}

// Yaw returns the heading of the leveled pose.
func (p Pose) Yaw() float64 {
	return YawOf(p.Leveled().Forward())
}

// rotationBetween returns the shortest rotation taking unit vector u to
// unit vector v.
func rotationBetween(u, v r3.Vec) quat.Number {
	d := r3.Dot(u, v)
	if d < -1+1e-9 {
		axis := r3.Cross(r3.Vec{X: 1}, u)
		if r3.Norm(axis) < 1e-6 {
			axis = r3.Cross(r3.Vec{Z: 1}, u)
		}
		return quat.Number(r3.NewRotation(math.Pi, r3.Unit(axis)))
	}
	c := r3.Cross(u, v)
	return unitQuat(quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z})
}

// YawOf returns the clockwise angle of v's horizontal component from -Z.
func YawOf(v r3.Vec) float64 {
	return math.Atan2(v.X, -v.Z)
}

// HeadingVector is the horizontal unit vector for a yaw angle.
func HeadingVector(yaw float64) r3.Vec {
	return r3.Vec{X: math.Sin(yaw), Z: -math.Cos(yaw)}
}

// NormalizeAngle wraps a into (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	switch {
	case a <= -math.Pi:
		a += 2 * math.Pi
	case a > math.Pi:
		a -= 2 * math.Pi
	}
	return a
}

// AngleDiff returns the signed shortest rotation from b to a.
func AngleDiff(a, b float64) float64 {
	return NormalizeAngle(a - b)
}

// CircularMean averages two angles on the circle.
func CircularMean(a, b float64) float64 {
	return math.Atan2(math.Sin(a)+math.Sin(b), math.Cos(a)+math.Cos(b))
}

// Distance is the straight-line distance between two points.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// groundPoint projects v onto the ground plane as an orb point (x, z).
func groundPoint(v r3.Vec) orb.Point {
	return orb.Point{v.X, v.Z}
}

// PlanarDistance is the distance between a and b ignoring height.
func PlanarDistance(a, b r3.Vec) float64 {
	return planar.Distance(groundPoint(a), groundPoint(b))
}

// flatten zeroes the vertical component.
func flatten(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Z: v.Z}
}

// ColumnMajorPose decodes a 4x4 homogeneous transform stored column by
// column, the layout recorded maps are persisted in.
func ColumnMajorPose(m [16]float64) Pose {
	var r [3][3]float64
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			r[row][col] = m[col*4+row]
		}
	}
	return Pose{
		Position: r3.Vec{X: m[12], Y: m[13], Z: m[14]},
		Rotation: quatFromMatrix(r),
	}
}

// ColumnMajor encodes p in the layout read by ColumnMajorPose.
func (p Pose) ColumnMajor() [16]float64 {
	cols := [3]r3.Vec{p.Right(), p.Up(), p.Rotate(r3.Vec{Z: 1})}
	var m [16]float64
	for i, c := range cols {
		m[i*4], m[i*4+1], m[i*4+2] = c.X, c.Y, c.Z
	}
	m[12], m[13], m[14], m[15] = p.Position.X, p.Position.Y, p.Position.Z, 1
	return m
}

// quatFromMatrix converts a rotation matrix using Shepperd's method.
func quatFromMatrix(r [3][3]float64) quat.Number {
	tr := r[0][0] + r[1][1] + r[2][2]
	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{
			Real: s / 4,
			Imag: (r[2][1] - r[1][2]) / s,
			Jmag: (r[0][2] - r[2][0]) / s,
			Kmag: (r[1][0] - r[0][1]) / s,
		}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = quat.Number{
			Real: (r[2][1] - r[1][2]) / s,
			Imag: s / 4,
			Jmag: (r[0][1] + r[1][0]) / s,
			Kmag: (r[0][2] + r[2][0]) / s,
		}
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = quat.Number{
			Real: (r[0][2] - r[2][0]) / s,
			Imag: (r[0][1] + r[1][0]) / s,
			Jmag: s / 4,
			Kmag: (r[1][2] + r[2][1]) / s,
		}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = quat.Number{
			Real: (r[1][0] - r[0][1]) / s,
			Imag: (r[0][2] + r[2][0]) / s,
			Jmag: (r[1][2] + r[2][1]) / s,
			Kmag: s / 4,
		}
	}
	return unitQuat(q)
}
