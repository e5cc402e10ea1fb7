package nav

import (
	"sync"
	"time"
)

// DefaultEventHistory is how many events a StateTracker keeps.
const DefaultEventHistory = 50

// GuidanceState is the latest device and guidance state.
type GuidanceState struct {
	DevicePose  *Pose          `json:"devicePose,omitempty"`
	Direction   *DirectionInfo `json:"direction,omitempty"`
	Instruction string         `json:"instruction,omitempty"`
	Facing      bool           `json:"facingTarget"`
	Heading     HeadingUpdate  `json:"heading"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// StateTracker keeps the live state served over HTTP.
type StateTracker struct {
	mu        sync.RWMutex
	state     GuidanceState
	events    []Event
	maxEvents int
	messages  map[MessageKind]int
	errors    int
}

// NewStateTracker creates a tracker that keeps DefaultEventHistory events.
func NewStateTracker() *StateTracker {
	return NewStateTrackerWithHistory(DefaultEventHistory)
}

// NewStateTrackerWithHistory creates a tracker that keeps the last n events.
func NewStateTrackerWithHistory(n int) *StateTracker {
	if n < 1 {
		n = 1
	}
	return &StateTracker{
		maxEvents: n,
		messages:  make(map[MessageKind]int),
	}
}

// UpdatePose records the latest device pose and heading calibrator output.
func (st *StateTracker) UpdatePose(pose Pose, heading HeadingUpdate) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.DevicePose = &pose
	st.state.Heading = heading
	st.state.UpdatedAt = time.Now()
}

// UpdateGuidance records the latest direction, its spoken form and whether
// the user is facing the keypoint.
func (st *StateTracker) UpdateGuidance(info DirectionInfo, instruction string, facing bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Direction = &info
	st.state.Instruction = instruction
	st.state.Facing = facing
	st.state.UpdatedAt = time.Now()
}

// ClearGuidance drops the current direction, e.g. when the route finishes
// or alignment is not available.
func (st *StateTracker) ClearGuidance() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Direction = nil
	st.state.Instruction = ""
	st.state.Facing = false
}

// Guidance returns a copy of the current state.
func (st *StateTracker) Guidance() GuidanceState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.state
	if s.DevicePose != nil {
		p := *s.DevicePose
		s.DevicePose = &p
	}
	if s.Direction != nil {
		d := *s.Direction
		s.Direction = &d
	}
	return s
}

// HasGuidance reports whether a direction is currently available.
func (st *StateTracker) HasGuidance() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Direction != nil
}

// AddEvent appends e, dropping the oldest event when full.
func (st *StateTracker) AddEvent(e Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.events = append(st.events, e)
	if over := len(st.events) - st.maxEvents; over > 0 {
		st.events = append([]Event(nil), st.events[over:]...)
	}
}

// Events returns the retained events, oldest first.
func (st *StateTracker) Events() []Event {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Event, len(st.events))
	copy(out, st.events)
	return out
}

// CountMessage records a received device message; failed decodes are
// counted separately.
func (st *StateTracker) CountMessage(kind MessageKind, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		st.errors++
		return
	}
	st.messages[kind]++
}

// MessageCounts returns decoded message counts per kind and the number of
// payloads that failed to decode.
func (st *StateTracker) MessageCounts() (map[MessageKind]int, int) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[MessageKind]int, len(st.messages))
	for k, v := range st.messages {
		out[k] = v
	}
	return out, st.errors
}
