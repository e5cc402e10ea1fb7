package nav

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// headingEventThreshold is how far a committed offset must move before a
// new heading-updated event is sent.
const headingEventThreshold = math.Pi / 180

// DefaultQueueSize is how many device messages may wait for Run.
const DefaultQueueSize = 256

// ErrQueueFull is counted against a message dropped by Enqueue.
var ErrQueueFull = errors.New("message queue full")

type queuedMessage struct {
	kind MessageKind
	raw  []byte
	msg  *DeviceMessage
	err  error
}

// Navigator drives a Core from device messages: it advances through
// keypoints on arrival, publishes guidance and events, and keeps the
// StateTracker current.
type Navigator struct {
	core      *Core
	publisher *Publisher // nil when MQTT is disabled
	state     *StateTracker
	now       func() time.Time
	queue     chan queuedMessage

	mu             sync.Mutex
	headingEvented bool
	headingOffset  float64
}

// NewNavigator wires a core to a publisher and a state tracker. publisher
// may be nil; a nil state gets a fresh tracker.
func NewNavigator(core *Core, publisher *Publisher, state *StateTracker) *Navigator {
	if state == nil {
		state = NewStateTracker()
	}
	return &Navigator{
		core:      core,
		publisher: publisher,
		state:     state,
		now:       time.Now,
		queue:     make(chan queuedMessage, DefaultQueueSize),
	}
}

// Core returns the wrapped core.
func (n *Navigator) Core() *Core { return n.core }

// State returns the tracker fed by the navigator.
func (n *Navigator) State() *StateTracker { return n.state }

// SetPublisher attaches a publisher once the broker client exists.
func (n *Navigator) SetPublisher(p *Publisher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publisher = p
}

// Enqueue is a non-blocking MessageHandler for MQTTClient. Messages are
// handled by Run in the order they were queued. When the queue is full the
// message is dropped and counted as failed.
func (n *Navigator) Enqueue(kind MessageKind, raw []byte, msg *DeviceMessage, err error) {
	select {
	case n.queue <- queuedMessage{kind: kind, raw: raw, msg: msg, err: err}:
	default:
		Logf("[MQTT] Queue full, dropping %s message", kind)
		n.state.CountMessage(kind, ErrQueueFull)
	}
}

// Run handles queued messages one at a time until ctx is done.
func (n *Navigator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			n.HandleMessage(m.kind, m.raw, m.msg, m.err)
		}
	}
}

// HandleMessage handles one device message synchronously.
func (n *Navigator) HandleMessage(kind MessageKind, raw []byte, msg *DeviceMessage, err error) {
	n.state.CountMessage(kind, err)
	if err != nil || msg == nil {
		return
	}

	switch msg.Kind {
	case MessagePose:
		n.HandlePose(msg.Pose)
	case MessageLandmark:
		n.HandleLandmark(msg.Landmark)
	case MessageGeolocation:
		n.core.SetGeolocation(msg.Geolocation)
	case MessageRoute:
		_ = n.HandleRouteRequest(msg.Route)
	}
}

// HandlePose feeds a live pose through the core. When the device reaches
// the current keypoint the route advances and guidance is recomputed
// toward the next one. It returns the guidance published, if any.
func (n *Navigator) HandlePose(pose Pose) (*DirectionInfo, bool) {
	if !finite(pose.Position) {
		return nil, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	update := n.core.UpdateDevicePose(pose)
	n.state.UpdatePose(pose, update)
	n.headingEvents(update)

	info, ok := n.core.DirectionToNextKeypoint(pose)
	if !ok {
		n.state.ClearGuidance()
		return nil, false
	}

	if info.Arrival == AtTarget {
		current, _ := n.core.Progress()
		n.core.AdvancePastCurrentKeypoint()
		n.emit(EventArrived, current, "")

		if n.core.RouteComplete() {
			n.emit(EventRouteComplete, current, "")
			n.publishRoute()
			n.state.ClearGuidance()
			return info, true
		}
		n.publishRoute()

		info, ok = n.core.DirectionToNextKeypoint(pose)
		if !ok {
			n.state.ClearGuidance()
			return nil, false
		}
	}

	text := n.core.Instruction(pose, *info)
	facing := n.core.FacingTarget(*info)
	n.state.UpdateGuidance(*info, text, facing)

	if n.publisher != nil {
		current, total := n.core.Progress()
		msg := GuidanceMessage{
			Direction:   *info,
			Instruction: text,
			Facing:      facing,
			Keypoint:    current,
			Remaining:   total - current,
			Timestamp:   n.now().Unix(),
		}
		if err := n.publisher.PublishDirection(msg); err != nil {
			Logf("[MQTT] Error publishing direction: %v", err)
		}
	}
	return info, true
}

func (n *Navigator) headingEvents(update HeadingUpdate) {
	current, _ := n.core.Progress()
	if update.Lost {
		n.emit(EventHeadingLost, current, "")
		return
	}
	if !update.Committed {
		return
	}
	if n.headingEvented && math.Abs(AngleDiff(update.Offset, n.headingOffset)) < headingEventThreshold {
		return
	}
	n.headingEvented = true
	n.headingOffset = update.Offset
	n.emit(EventHeadingUpdated, current, formatDegrees(update.Offset))
}

func formatDegrees(rad float64) string {
	return fmt.Sprintf("%.1f°", rad*180/math.Pi)
}

// HandleLandmark records a sighting. The first time the route becomes
// aligned an aligned event is sent.
func (n *Navigator) HandleLandmark(s LandmarkSighting) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s.Timestamp == 0 {
		s.Timestamp = float64(n.now().UnixNano()) / 1e9
	}
	_, wasAligned := n.core.CurrentAlignment()
	n.core.OnLandmarkRedetected(s.ID, s.Pose, s.Timestamp)
	if _, aligned := n.core.CurrentAlignment(); aligned && !wasAligned {
		current, _ := n.core.Progress()
		n.emit(EventAligned, current, s.ID)
	}
}

// HandleRouteRequest plans a route. A failed plan leaves the active route
// untouched and is reported as a plan-failed event.
func (n *Navigator) HandleRouteRequest(req RouteRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var err error
	if len(req.Landmarks) > 0 {
		err = n.core.PlanRoute(req.Landmarks)
	} else {
		err = n.core.PlanRouteBetween(req.From, req.To)
	}
	if err != nil {
		Logf("[PLAN] Route request failed: %v", err)
		n.emit(EventPlanFailed, 0, err.Error())
		return err
	}

	status := n.core.Snapshot()
	n.state.ClearGuidance()
	n.emit(EventRoutePlanned, 0, strings.Join(status.Route, " -> "))
	n.publishRoute()
	return nil
}

func (n *Navigator) emit(eventType EventType, keypoint int, detail string) {
	e := NewEvent(eventType, keypoint, detail)
	e.Timestamp = n.now().Unix()
	n.state.AddEvent(e)
	if n.publisher == nil {
		return
	}
	if err := n.publisher.PublishEvent(e); err != nil {
		Logf("[MQTT] Error publishing %s event: %v", eventType, err)
	}
}

func (n *Navigator) publishRoute() {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.PublishRoute(n.core.Snapshot()); err != nil {
		Logf("[MQTT] Error publishing route status: %v", err)
	}
}
