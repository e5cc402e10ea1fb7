package nav

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ArrivalState classifies how close the user is to a keypoint.
type ArrivalState int

const (
	NotAtTarget ArrivalState = iota
	CloseToTarget
	AtTarget
)

func (s ArrivalState) String() string {
	switch s {
	case CloseToTarget:
		return "close-to-target"
	case AtTarget:
		return "at-target"
	default:
		return "not-at-target"
	}
}

// MarshalText encodes the state by name.
func (s ArrivalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *ArrivalState) UnmarshalText(b []byte) error {
	for _, v := range []ArrivalState{NotAtTarget, CloseToTarget, AtTarget} {
		if string(b) == v.String() {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown arrival state %q", b)
}

// Haptic direction buckets.
const (
	HapticError       = 0
	HapticStraight    = 1
	HapticSlightRight = 2
	HapticRight       = 3
	HapticBehind      = 4
	HapticLeft        = 5
	HapticSlightLeft  = 6
)

// DirectionInfo is the guidance for one pose sample.
type DirectionInfo struct {
	Distance        float64      `json:"distance"`     // planar, metres
	BearingError    float64      `json:"bearingError"` // radians, positive to the right
	ClockDirection  int          `json:"clockDirection"`
	HapticDirection int          `json:"hapticDirection"`
	LateralRatio    float64      `json:"-"`
	Arrival         ArrivalState `json:"arrival"`
}

// MarshalJSON encodes an infinite lateral ratio as null.
func (d DirectionInfo) MarshalJSON() ([]byte, error) {
	type plain DirectionInfo
	var ratio *float64
	if !math.IsInf(d.LateralRatio, 0) && !math.IsNaN(d.LateralRatio) {
		r := d.LateralRatio
		ratio = &r
	}
	return json.Marshal(struct {
		plain
		LateralRatio *float64 `json:"lateralRatio"`
	}{plain(d), ratio})
}

// FacingTarget reports whether the user is heading for the keypoint. Either
// walking straight on would cross its plane within cfg.FacingLateralRatio
// of its half-width, or the bearing error is inside cfg.FacingCone degrees.
func FacingTarget(d DirectionInfo, cfg GuidanceConfig) bool {
	if d.LateralRatio < cfg.FacingLateralRatio {
		return true
	}
	return math.Abs(d.BearingError) < cfg.FacingCone*math.Pi/180
}

// DeviceYaw returns the direction the user is facing. The phone's -Z axis is
// used while it is held upright and its top edge (+Y) once it is tilted
// flatter than 45°, whichever lies closer to the ground plane.
func DeviceYaw(device Pose, headingOffset float64) float64 {
	axis := device.Forward()
	if up := device.Up(); math.Abs(axis.Y) >= math.Abs(up.Y) {
		axis = up
	}
	return NormalizeAngle(YawOf(axis) + headingOffset)
}

// ClockDirection maps a bearing error onto a clock face, 12 being straight
// ahead and 3 a right turn.
func ClockDirection(bearingError float64) int {
	if math.IsNaN(bearingError) || math.IsInf(bearingError, 0) {
		return 12
	}
	c := int(math.Floor(NormalizeAngle(bearingError)*6/math.Pi+12.5)) % 12
	if c == 0 {
		return 12
	}
	return c
}

// HapticDirection buckets a bearing error at ±30°, ±60° and ±120°. A value
// on a boundary takes the bucket nearer straight ahead on the right and
// the one nearer behind on the left. Errors outside [-π, π] give
// HapticError.
func HapticDirection(bearingError float64) int {
	a := bearingError
	switch {
	case a >= -math.Pi/6 && a <= math.Pi/6:
		return HapticStraight
	case a > math.Pi/6 && a <= math.Pi/3:
		return HapticSlightRight
	case a > math.Pi/3 && a <= 2*math.Pi/3:
		return HapticRight
	case (a > 2*math.Pi/3 && a <= math.Pi) || (a >= -math.Pi && a <= -2*math.Pi/3):
		return HapticBehind
	case a > -2*math.Pi/3 && a <= -math.Pi/3:
		return HapticLeft
	case a > -math.Pi/3 && a < -math.Pi/6:
		return HapticSlightLeft
	default:
		return HapticError
	}
}

// targetFrame returns the keypoint's forward and lateral ground axes.
func targetFrame(target Keypoint) (forward, lateral r3.Vec) {
	forward = flatten(target.Orientation)
	if r3.Norm(forward) < 1e-9 {
		forward = DefaultOrientation
	}
	forward = r3.Unit(forward)
	return forward, r3.Cross(forward, WorldUp)
}

// ArrivalStateFor classifies the device position against the keypoint's
// arrival box, whose half-extents are dims.
func ArrivalStateFor(device r3.Vec, target Keypoint, dims TargetDimensions, closeRadius float64) ArrivalState {
	forward, lateral := targetFrame(target)
	delta := r3.Sub(device, target.Position())

	along := r3.Dot(delta, forward)
	across := r3.Dot(delta, lateral)
	if math.Abs(along) <= dims.Depth && math.Abs(across) <= dims.Width && math.Abs(delta.Y) <= dims.Height {
		return AtTarget
	}
	if math.Hypot(along, across) <= closeRadius {
		return CloseToTarget
	}
	return NotAtTarget
}

// LateralRatio projects the user forward along heading to the plane that
// holds the keypoint's lateral axis and returns how far from the keypoint
// the crossing would be, as a fraction of width. It is +Inf when the user
// is not moving toward the plane's far side.
func LateralRatio(device r3.Vec, heading r3.Vec, target Keypoint, width float64) float64 {
	forward, _ := targetFrame(target)
	h := flatten(heading)
	if r3.Norm(h) < 1e-9 || width <= 0 {
		return math.Inf(1)
	}
	h = r3.Unit(h)

	hf := r3.Dot(h, forward)
	if hf <= 1e-9 {
		return math.Inf(1)
	}
	delta := flatten(r3.Sub(device, target.Position()))
	s := -r3.Dot(delta, forward) / hf
	crossing := r3.Add(delta, r3.Scale(s, h))
	ratio := r3.Norm(crossing) / width
	if math.IsNaN(ratio) {
		return math.Inf(1)
	}
	return ratio
}

// Directions computes guidance from a live device pose to a keypoint
// already expressed in the live frame. last selects the final keypoint's
// arrival box.
func Directions(device Pose, target Keypoint, last bool, headingOffset float64, cfg GuidanceConfig) DirectionInfo {
	dims := cfg.Intermediate
	if last {
		dims = cfg.Final
	}
	closeRadius := cfg.CloseRadius
	if closeRadius <= 0 {
		closeRadius = DefaultGuidanceConfig().CloseRadius
	}

	yaw := DeviceYaw(device, headingOffset)
	bearing := YawOf(r3.Sub(target.Position(), device.Position))
	bearingError := AngleDiff(bearing, yaw)

	return DirectionInfo{
		Distance:        PlanarDistance(device.Position, target.Position()),
		BearingError:    bearingError,
		ClockDirection:  ClockDirection(bearingError),
		HapticDirection: HapticDirection(bearingError),
		LateralRatio:    LateralRatio(device.Position, HeadingVector(yaw), target, dims.Width),
		Arrival:         ArrivalStateFor(device.Position, target, dims, closeRadius),
	}
}

// Stairs says whether reaching a keypoint means climbing or descending.
type Stairs int

const (
	NoStairs Stairs = iota
	StairsUp
	StairsDown
)

// StairsHint flags a keypoint more than a metre above or below the previous
// one when the climb is steeper than 0.3 over the remaining ground distance.
func StairsHint(device, previous, target r3.Vec) Stairs {
	rise := target.Y - previous.Y
	if math.Abs(rise) <= 1 {
		return NoStairs
	}
	run := PlanarDistance(device, target)
	if run < 1e-9 {
		if rise > 0 {
			return StairsUp
		}
		return StairsDown
	}
	slope := rise / run
	switch {
	case slope > 0.3:
		return StairsUp
	case slope < -0.3:
		return StairsDown
	}
	return NoStairs
}

var clockPhrases = map[int]string{
	12: "Continue straight",
	1:  "Slight right at 1 o'clock",
	2:  "Slight right at 2 o'clock",
	3:  "Turn right at 3 o'clock",
	4:  "Turn right at 4 o'clock",
	5:  "Turn around at 5 o'clock",
	6:  "Turn around at 6 o'clock",
	7:  "Turn around at 7 o'clock",
	8:  "Turn left at 8 o'clock",
	9:  "Turn left at 9 o'clock",
	10: "Slight left at 10 o'clock",
	11: "Slight left at 11 o'clock",
}

var hapticPhrases = map[int]string{
	HapticStraight:    "Continue straight",
	HapticSlightRight: "Slight right",
	HapticRight:       "Turn right",
	HapticBehind:      "Turn around",
	HapticLeft:        "Turn left",
	HapticSlightLeft:  "Slight left",
}

// metresToFeet converts and rounds to a tenth of a foot.
func metresToFeet(m float64) float64 {
	return roundToTenths(m * 100 / 2.54 / 12)
}

func roundToTenths(v float64) float64 {
	return math.Round(v*10) / 10
}

// DirectionText renders guidance as a spoken instruction. Stair changes
// replace the walking distance; otherwise the distance in feet is appended
// until the user is close to the keypoint.
func DirectionText(info DirectionInfo, stairs Stairs, clockPhrasing bool) string {
	phrase := hapticPhrases[info.HapticDirection]
	if clockPhrasing {
		phrase = clockPhrases[info.ClockDirection]
	}
	if phrase == "" {
		return ""
	}

	switch stairs {
	case StairsUp:
		return phrase + " and proceed upstairs"
	case StairsDown:
		return phrase + " and proceed downstairs"
	}
	if info.Arrival == NotAtTarget {
		return fmt.Sprintf("%s and walk %d feet", phrase, int(metresToFeet(info.Distance)))
	}
	return phrase
}
