package nav

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// GeoAnchorCreator places a terrain anchor at an outdoor coordinate and
// returns its id and pose in the live tracking frame.
type GeoAnchorCreator interface {
	CreateTerrainAnchor(point orb.Point) (string, Pose, error)
}

// CoreOption configures a Core.
type CoreOption func(*Core)

// WithGeoAnchorCreator enables routes that start outdoors.
func WithGeoAnchorCreator(g GeoAnchorCreator) CoreOption {
	return func(c *Core) { c.geo = g }
}

// WithHeadingCalibrator replaces the calibrator built from the config.
func WithHeadingCalibrator(h *HeadingCalibrator) CoreOption {
	return func(c *Core) {
		if h != nil {
			c.heading = h
		}
	}
}

// WithClock sets the time source used to stamp plans.
func WithClock(now func() time.Time) CoreOption {
	return func(c *Core) {
		if now != nil {
			c.now = now
		}
	}
}

// Status is a point-in-time copy of the core's navigation state.
type Status struct {
	Route         []string   `json:"route"`
	Keypoints     []Keypoint `json:"keypoints"`
	Current       int        `json:"current"`
	Remaining     int        `json:"remaining"`
	Complete      bool       `json:"complete"`
	Aligned       bool       `json:"aligned"`
	Alignment     *Pose      `json:"alignment,omitempty"`
	HeadingOffset float64    `json:"headingOffset"`
	PlannedAt     time.Time  `json:"plannedAt"`
}

// Core owns the map, the active route and the alignment state. Every
// method is safe for concurrent use; calls are serialized.
type Core struct {
	mu sync.Mutex

	graph   *RouteGraph
	cfg     Config
	aligner *LandmarkAligner
	heading *HeadingCalibrator
	geo     GeoAnchorCreator
	now     func() time.Time

	route     *StitchedRoute
	keypoints []Keypoint
	current   int
	plannedAt time.Time

	alignment  *Pose
	devicePose *Pose

	// sightingPose is the latest landmark detection pose. It stands in for
	// the device pose until the first pose tick.
	sightingPose *Pose
}

// NewCore returns a core over graph. A nil cfg uses the defaults.
func NewCore(graph *RouteGraph, cfg *Config, opts ...CoreOption) *Core {
	if graph == nil {
		graph = NewRouteGraph()
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.applyDefaults()

	core := &Core{
		graph:   graph,
		cfg:     c,
		aligner: NewLandmarkAligner(c.Alignment.AgreementRadius),
		heading: NewHeadingCalibrator(c.Heading),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(core)
	}
	return core
}

// PlanRoute replaces the active route with one visiting ids in order. When
// ids starts at OutdoorsID, a terrain anchor is placed at the outdoor
// entrance of the first indoor landmark and becomes the first keypoint. On
// error the active route is left untouched.
func (c *Core) PlanRoute(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.planLocked(ids)
}

// PlanRouteBetween plans the shortest route from one landmark to another.
func (c *Core) PlanRouteBetween(from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range []string{from, to} {
		if !c.graph.HasLandmark(id) {
			return &PlanError{Op: "plan", From: from, To: to, Err: fmt.Errorf("%w: %s", ErrUnknownLandmark, id)}
		}
	}
	ids, cost := c.graph.ShortestPath(from, to)
	if len(ids) == 0 {
		return &PlanError{Op: "plan", From: from, To: to, Err: ErrUnreachable}
	}
	Logf("[PLAN] Shortest path %s -> %s: %v (%.1fm)", from, to, ids, cost)
	return c.planLocked(ids)
}

func (c *Core) planLocked(ids []string) error {
	if len(ids) == 0 {
		return &PlanError{Op: "plan", Err: ErrRouteTooShort}
	}
	from, to := ids[0], ids[len(ids)-1]
	for _, id := range ids {
		if !c.graph.HasLandmark(id) {
			return &PlanError{Op: "plan", From: from, To: to, Err: fmt.Errorf("%w: %s", ErrUnknownLandmark, id)}
		}
	}

	var lead []Keypoint
	indoor := ids
	if from == OutdoorsID {
		if len(ids) < 2 {
			return &PlanError{Op: "plan", From: from, Err: ErrRouteTooShort}
		}
		kp, err := c.geoKeypoint(ids[1])
		if err != nil {
			return &PlanError{Op: "geo anchor", From: from, To: ids[1], Err: err}
		}
		lead = []Keypoint{kp}
		indoor = ids[1:]
	}

	route, err := c.stitchIndoor(indoor, from == OutdoorsID)
	if err != nil {
		return &PlanError{Op: "stitch", From: from, To: to, Err: err}
	}
	route.Landmarks = append([]string(nil), ids...)

	c.route = route
	c.keypoints = append(lead, route.Keypoints...)
	c.current = 0
	c.plannedAt = c.now()
	c.aligner.SetMapLandmarks(route.Anchors)
	c.alignment = c.aligner.Estimate(c.livePoseLocked(), nil)

	Logf("[PLAN] Route %v planned with %d keypoints", ids, len(c.keypoints))
	return nil
}

// stitchIndoor stitches the indoor part of a route. After an outdoor start
// a single landmark is enough as long as its pose was recorded.
func (c *Core) stitchIndoor(ids []string, outdoorStart bool) (*StitchedRoute, error) {
	if outdoorStart && len(ids) == 1 {
		l, _ := c.graph.Landmark(ids[0])
		if l.Pose == nil {
			return nil, fmt.Errorf("%s has no recorded pose: %w", ids[0], ErrRouteTooShort)
		}
		p := l.Pose.Leveled()
		kps := ExtractKeypoints([]Pose{p}, nil)
		OrientKeypoints(kps)
		return &StitchedRoute{
			Poses:     []Pose{p},
			Anchors:   map[string]Pose{ids[0]: p},
			Keypoints: kps,
		}, nil
	}
	return Stitch(c.graph, ids)
}

func (c *Core) geoKeypoint(id string) (Keypoint, error) {
	l, _ := c.graph.Landmark(id)
	if c.geo == nil {
		return Keypoint{}, fmt.Errorf("no terrain anchor support: %w", ErrGeoAnchorUnavailable)
	}
	if l.Outdoor == nil {
		return Keypoint{}, fmt.Errorf("%s has no outdoor entrance: %w", id, ErrGeoAnchorUnavailable)
	}
	anchorID, pose, err := c.geo.CreateTerrainAnchor(*l.Outdoor)
	if err != nil {
		return Keypoint{}, fmt.Errorf("%w: %v", ErrGeoAnchorUnavailable, err)
	}
	Logf("[PLAN] Terrain anchor %s placed for %s", anchorID, id)
	return Keypoint{ID: anchorID, Mode: ModeGeo, Pose: pose, Orientation: DefaultOrientation}, nil
}

// NextKeypoint returns the keypoint the user is heading for.
func (c *Core) NextKeypoint() (Keypoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLocked()
}

func (c *Core) nextLocked() (Keypoint, bool) {
	if c.current >= len(c.keypoints) {
		return Keypoint{}, false
	}
	return c.keypoints[c.current], true
}

// PreviousKeypoint returns the keypoint the user last passed.
func (c *Core) PreviousKeypoint() (Keypoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == 0 || c.current > len(c.keypoints) {
		return Keypoint{}, false
	}
	return c.keypoints[c.current-1], true
}

// OnLastKeypoint reports whether the next keypoint is the destination.
func (c *Core) OnLastKeypoint() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keypoints) > 0 && c.current == len(c.keypoints)-1
}

// RouteComplete reports whether every keypoint of a planned route has been
// passed.
func (c *Core) RouteComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keypoints) > 0 && c.current >= len(c.keypoints)
}

// Progress returns the index of the next keypoint and the keypoint count.
func (c *Core) Progress() (current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, len(c.keypoints)
}

// AdvancePastCurrentKeypoint moves on to the following keypoint.
func (c *Core) AdvancePastCurrentKeypoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < len(c.keypoints) {
		c.current++
		Logf("[PLAN] Advanced to keypoint %d of %d", c.current, len(c.keypoints))
	}
}

// liveKeypoint expresses a keypoint in the live tracking frame. Route
// keypoints need an alignment; terrain anchor keypoints already are live.
func (c *Core) liveKeypoint(kp Keypoint) (Keypoint, bool) {
	if kp.Mode == ModeGeo {
		return kp, true
	}
	if c.alignment == nil {
		return Keypoint{}, false
	}
	kp.Pose = c.alignment.Mul(kp.Pose)
	kp.Orientation = c.alignment.Rotate(kp.Orientation)
	return kp, true
}

func (c *Core) headingOffsetLocked() float64 {
	if c.cfg.Guidance.IgnoreHeadingOffset {
		return 0
	}
	return c.heading.Offset()
}

// DirectionToNextKeypoint computes guidance from a live pose to the next
// keypoint. It returns false when there is no next keypoint or the route
// has not been aligned with the live frame yet.
func (c *Core) DirectionToNextKeypoint(pose Pose) (*DirectionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !finite(pose.Position) {
		return nil, false
	}
	next, ok := c.nextLocked()
	if !ok {
		return nil, false
	}
	target, ok := c.liveKeypoint(next)
	if !ok {
		return nil, false
	}

	last := c.current == len(c.keypoints)-1
	info := Directions(pose, target, last, c.headingOffsetLocked(), c.cfg.Guidance)
	info.Distance = roundToTenths(info.Distance)
	return &info, true
}

// Instruction renders info, computed for pose, as a spoken phrase.
func (c *Core) Instruction(pose Pose, info DirectionInfo) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	stairs := NoStairs
	if next, ok := c.nextLocked(); ok {
		if target, ok := c.liveKeypoint(next); ok {
			from := pose.Position
			if c.current > 0 {
				if prev, ok := c.liveKeypoint(c.keypoints[c.current-1]); ok {
					from = prev.Position()
				}
			}
			stairs = StairsHint(pose.Position, from, target.Position())
		}
	}
	return DirectionText(info, stairs, !c.cfg.Guidance.PlainPhrases)
}

// FacingTarget reports whether info says the user is heading for the
// keypoint under the configured thresholds.
func (c *Core) FacingTarget(info DirectionInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FacingTarget(info, c.cfg.Guidance)
}

// OnLandmarkRedetected records a live sighting of a landmark and
// re-estimates the alignment. Before any device pose has been reported the
// sighting pose stands in for it.
func (c *Core) OnLandmarkRedetected(id string, pose Pose, timestamp float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.aligner.Observe(id, pose, timestamp)
	c.sightingPose = &pose
	c.alignment = c.aligner.Estimate(c.livePoseLocked(), c.alignment)
}

func (c *Core) livePoseLocked() *Pose {
	if c.devicePose != nil {
		return c.devicePose
	}
	return c.sightingPose
}

// UpdateDevicePose stores the latest live pose and feeds the heading
// calibrator.
func (c *Core) UpdateDevicePose(pose Pose) HeadingUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !finite(pose.Position) {
		return HeadingUpdate{Offset: c.heading.Offset()}
	}
	c.devicePose = &pose
	update := c.heading.Tick(DeviceYaw(pose, 0), pose.Position)
	if update.Lost {
		Logf("[HEADING] Lost signal at (%.1f, %.1f)", pose.Position.X, pose.Position.Z)
	}
	return update
}

// CurrentAlignment returns the map-to-live transform, if one is known.
func (c *Core) CurrentAlignment() (Pose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alignment == nil {
		return Pose{}, false
	}
	return *c.alignment, true
}

// HeadingOffset returns the calibrated heading offset in radians.
func (c *Core) HeadingOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heading.Offset()
}

// SetHeadingOffset seeds the calibrator, typically from a cached value.
func (c *Core) SetHeadingOffset(offset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heading.SetOffset(offset)
}

// SetGeolocation records the device's coarse outdoor fix (lon, lat).
func (c *Core) SetGeolocation(p orb.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph.SetGeolocation(p)
}

// ShortestPath runs the planner without changing the active route.
func (c *Core) ShortestPath(from, to string) ([]string, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.ShortestPath(from, to)
}

// ReachableSet filters candidates down to those reachable from starts.
func (c *Core) ReachableSet(starts, candidates []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.ReachableSet(starts, candidates)
}

// Landmarks lists the recorded landmarks.
func (c *Core) Landmarks() []Landmark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Landmarks()
}

// Edge returns the recorded segment from one landmark to another.
func (c *Core) Edge(from, to string) (*Edge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Edge(from, to)
}

// Snapshot returns a copy of the navigation state.
func (c *Core) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Current:       c.current,
		Remaining:     len(c.keypoints) - c.current,
		Complete:      len(c.keypoints) > 0 && c.current >= len(c.keypoints),
		Aligned:       c.alignment != nil,
		HeadingOffset: c.heading.Offset(),
		PlannedAt:     c.plannedAt,
		Keypoints:     append([]Keypoint(nil), c.keypoints...),
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if c.route != nil {
		s.Route = append([]string(nil), c.route.Landmarks...)
	}
	if c.alignment != nil {
		a := *c.alignment
		s.Alignment = &a
	}
	return s
}

func finite(v r3.Vec) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
