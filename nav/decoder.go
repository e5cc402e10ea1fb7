package nav

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MessageKind identifies what a device message carries.
type MessageKind string

const (
	MessagePose        MessageKind = "pose"
	MessageLandmark    MessageKind = "landmark"
	MessageGeolocation MessageKind = "geolocation"
	MessageRoute       MessageKind = "route"
)

// LandmarkSighting is a live detection of a recorded landmark.
type LandmarkSighting struct {
	ID        string  `json:"id"`
	Pose      Pose    `json:"pose"`
	Timestamp float64 `json:"timestamp"` // seconds
}

// RouteRequest asks for a new route, either as an explicit landmark list
// or as a pair the planner connects.
type RouteRequest struct {
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Landmarks []string `json:"landmarks,omitempty"`
}

// DeviceMessage is a decoded device message. Only the field matching Kind
// is set.
type DeviceMessage struct {
	Kind        MessageKind
	Pose        Pose
	Landmark    LandmarkSighting
	Geolocation orb.Point
	Route       RouteRequest
}

// poseWire accepts a column-major "pose" (or "matrix") or a position with
// an xyzw rotation.
type poseWire struct {
	Pose     []float64 `json:"pose"`
	Matrix   []float64 `json:"matrix"`
	Position *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"position"`
	Rotation *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
		W float64 `json:"w"`
	} `json:"rotation"`
}

func (w poseWire) pose() (Pose, error) {
	if w.Pose != nil {
		return poseFromFloats(w.Pose)
	}
	if w.Matrix != nil {
		return poseFromFloats(w.Matrix)
	}
	if w.Position == nil {
		return Pose{}, fmt.Errorf("pose needs a pose matrix or a position")
	}
	p := Pose{
		Position: r3.Vec{X: w.Position.X, Y: w.Position.Y, Z: w.Position.Z},
		Rotation: quat.Number{Real: 1},
	}
	if w.Rotation != nil {
		q := quat.Number{Real: w.Rotation.W, Imag: w.Rotation.X, Jmag: w.Rotation.Y, Kmag: w.Rotation.Z}
		if quat.Abs(q) < 1e-9 {
			return Pose{}, fmt.Errorf("rotation has zero length")
		}
		p.Rotation = unitQuat(q)
	}
	return p, nil
}

// DecodePose parses a pose payload: {"pose": [16]}, {"matrix": [16]},
// {"position": ..., "rotation": ...} or a bare array of 16 column-major
// floats.
func DecodePose(data []byte) (Pose, error) {
	if len(data) == 0 {
		return Pose{}, fmt.Errorf("empty data")
	}
	if data[0] == '[' {
		var m []float64
		if err := json.Unmarshal(data, &m); err != nil {
			return Pose{}, fmt.Errorf("parsing pose JSON: %w", err)
		}
		return poseFromFloats(m)
	}

	var w poseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Pose{}, fmt.Errorf("parsing pose JSON: %w", err)
	}
	return w.pose()
}

// DecodeLandmarkSighting parses {"id": ..., "pose": ..., "timestamp": ...}.
func DecodeLandmarkSighting(data []byte) (LandmarkSighting, error) {
	var w struct {
		ID        string          `json:"id"`
		Pose      json.RawMessage `json:"pose"`
		Timestamp float64         `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return LandmarkSighting{}, fmt.Errorf("parsing landmark JSON: %w", err)
	}
	if w.ID == "" {
		return LandmarkSighting{}, fmt.Errorf("landmark id is required")
	}
	p, err := DecodePose(w.Pose)
	if err != nil {
		return LandmarkSighting{}, fmt.Errorf("landmark %s: %w", w.ID, err)
	}
	return LandmarkSighting{ID: w.ID, Pose: p, Timestamp: w.Timestamp}, nil
}

// DecodeGeolocation parses {"latitude": ..., "longitude": ...} into a
// lon/lat point.
func DecodeGeolocation(data []byte) (orb.Point, error) {
	var loc GeoLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return orb.Point{}, fmt.Errorf("parsing geolocation JSON: %w", err)
	}
	if math.Abs(loc.Latitude) > 90 || math.Abs(loc.Longitude) > 180 {
		return orb.Point{}, fmt.Errorf("geolocation (%g, %g) out of range", loc.Latitude, loc.Longitude)
	}
	return orb.Point{loc.Longitude, loc.Latitude}, nil
}

// DecodeRouteRequest parses a route request. It needs either a landmark
// list or both ends.
func DecodeRouteRequest(data []byte) (RouteRequest, error) {
	var r RouteRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return RouteRequest{}, fmt.Errorf("parsing route request JSON: %w", err)
	}
	if len(r.Landmarks) == 0 && (r.From == "" || r.To == "") {
		return RouteRequest{}, fmt.Errorf("route request needs landmarks or from and to")
	}
	return r, nil
}

// DecodeMessage decodes a payload of the given kind.
func DecodeMessage(kind MessageKind, data []byte) (*DeviceMessage, error) {
	msg := &DeviceMessage{Kind: kind}
	var err error
	switch kind {
	case MessagePose:
		msg.Pose, err = DecodePose(data)
	case MessageLandmark:
		msg.Landmark, err = DecodeLandmarkSighting(data)
	case MessageGeolocation:
		msg.Geolocation, err = DecodeGeolocation(data)
	case MessageRoute:
		msg.Route, err = DecodeRouteRequest(data)
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
