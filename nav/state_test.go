package nav

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestStateTracker_Guidance(t *testing.T) {
	st := NewStateTracker()
	assert.False(t, st.HasGuidance())
	assert.Nil(t, st.Guidance().DevicePose)

	st.UpdatePose(YawPose(0, r3.Vec{X: 1}), HeadingUpdate{Offset: 0.1, Committed: true})
	st.UpdateGuidance(DirectionInfo{Distance: 2, ClockDirection: 12}, "Continue straight and walk 6 feet", true)

	g := st.Guidance()
	require.NotNil(t, g.DevicePose)
	require.NotNil(t, g.Direction)
	assert.Equal(t, 1.0, g.DevicePose.Position.X)
	assert.Equal(t, 2.0, g.Direction.Distance)
	assert.Equal(t, 0.1, g.Heading.Offset)
	assert.False(t, g.UpdatedAt.IsZero())
	assert.True(t, g.Facing)
	assert.True(t, st.HasGuidance())

	// Returned state is a copy.
	g.Direction.Distance = 99
	g.DevicePose.Position.X = 99
	assert.Equal(t, 2.0, st.Guidance().Direction.Distance)
	assert.Equal(t, 1.0, st.Guidance().DevicePose.Position.X)

	st.ClearGuidance()
	g = st.Guidance()
	assert.Nil(t, g.Direction)
	assert.Empty(t, g.Instruction)
	assert.False(t, g.Facing)
	assert.NotNil(t, g.DevicePose, "clearing guidance keeps the pose")
}

func TestStateTracker_EventHistory(t *testing.T) {
	st := NewStateTrackerWithHistory(3)
	for i := 0; i < 5; i++ {
		st.AddEvent(Event{ID: fmt.Sprint(i), Type: EventArrived, Keypoint: i})
	}

	events := st.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].ID)
	assert.Equal(t, "4", events[2].ID)

	events[0].ID = "changed"
	assert.Equal(t, "2", st.Events()[0].ID)
}

func TestStateTracker_HistoryFloor(t *testing.T) {
	st := NewStateTrackerWithHistory(0)
	st.AddEvent(Event{ID: "a"})
	st.AddEvent(Event{ID: "b"})
	assert.Equal(t, []Event{{ID: "b"}}, st.Events())
}

func TestStateTracker_MessageCounts(t *testing.T) {
	st := NewStateTracker()
	st.CountMessage(MessagePose, nil)
	st.CountMessage(MessagePose, nil)
	st.CountMessage(MessageRoute, nil)
	st.CountMessage(MessagePose, errors.New("bad payload"))

	counts, failed := st.MessageCounts()
	assert.Equal(t, map[MessageKind]int{MessagePose: 2, MessageRoute: 1}, counts)
	assert.Equal(t, 1, failed)

	counts[MessagePose] = 100
	again, _ := st.MessageCounts()
	assert.Equal(t, 2, again[MessagePose])
}

func TestStateTracker_Concurrent(t *testing.T) {
	st := NewStateTrackerWithHistory(10)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.UpdatePose(IdentityPose(), HeadingUpdate{})
				st.UpdateGuidance(DirectionInfo{Distance: float64(j)}, "", false)
				st.AddEvent(Event{Keypoint: i})
				st.CountMessage(MessagePose, nil)
				_ = st.Guidance()
				_ = st.Events()
			}
		}(i)
	}
	wg.Wait()

	counts, _ := st.MessageCounts()
	assert.Equal(t, 800, counts[MessagePose])
	assert.Len(t, st.Events(), 10)
}
