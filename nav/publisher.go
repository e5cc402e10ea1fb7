package nav

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// EventType names a navigation event.
type EventType string

const (
	EventRoutePlanned   EventType = "route-planned"
	EventPlanFailed     EventType = "plan-failed"
	EventArrived        EventType = "arrived"
	EventRouteComplete  EventType = "route-complete"
	EventHeadingLost    EventType = "heading-lost"
	EventHeadingUpdated EventType = "heading-updated"
	EventAligned        EventType = "aligned"
)

// GuidanceMessage is the payload published on <prefix>/direction.
type GuidanceMessage struct {
	Direction   DirectionInfo `json:"direction"`
	Instruction string        `json:"instruction"`
	Facing      bool          `json:"facingTarget"`
	Keypoint    int           `json:"keypoint"`
	Remaining   int           `json:"remaining"`
	Timestamp   int64         `json:"timestamp"`
}

// Event is the payload published on <prefix>/events.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Keypoint  int       `json:"keypoint"`
	Timestamp int64     `json:"timestamp"`
}

// Publisher publishes guidance, route status and events under a topic
// prefix.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool

	mu        sync.RWMutex
	last      *GuidanceMessage
	published int
}

// NewPublisher creates a publisher. The prefix comes from
// MQTT_PUBLISH_PREFIX, then prefix, then DefaultPublishPrefix. A nil
// client disables publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // guidance is superseded many times a second
		retain:        true, // late subscribers get the current instruction
	}
}

// Prefix returns the topic prefix.
func (p *Publisher) Prefix() string { return p.publishPrefix }

// DirectionTopic is where guidance is published.
func (p *Publisher) DirectionTopic() string { return p.publishPrefix + "/direction" }

// RouteTopic is where route status is published.
func (p *Publisher) RouteTopic() string { return p.publishPrefix + "/route" }

// EventsTopic is where events are published.
func (p *Publisher) EventsTopic() string { return p.publishPrefix + "/events" }

// PublishDirection publishes guidance toward the current keypoint.
func (p *Publisher) PublishDirection(msg GuidanceMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	if err := p.publish(p.DirectionTopic(), p.retain, msg); err != nil {
		return err
	}

	p.mu.Lock()
	p.last = &msg
	p.published++
	p.mu.Unlock()
	return nil
}

// PublishRoute publishes the navigation status after a plan or an advance.
func (p *Publisher) PublishRoute(status Status) error {
	return p.publish(p.RouteTopic(), p.retain, status)
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(eventType EventType, keypoint int, detail string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Detail:    detail,
		Keypoint:  keypoint,
		Timestamp: time.Now().Unix(),
	}
}

// PublishEvent publishes a one-off event. Events are never retained.
func (p *Publisher) PublishEvent(e Event) error {
	return p.publish(p.EventsTopic(), false, e)
}

func (p *Publisher) publish(topic string, retain bool, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastDirection returns a copy of the last guidance published.
func (p *Publisher) LastDirection() (GuidanceMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return GuidanceMessage{}, false
	}
	return *p.last, true
}

// PublishedCount returns how many guidance messages were published.
func (p *Publisher) PublishedCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// SetQoS sets the QoS level (0, 1 or 2).
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether guidance and route status are retained.
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
