package runner

import (
	"volley/internal/stats"
)

type EventType string

const (
	EventStarted   EventType = "test-started"
	EventUpdate    EventType = "test-update"
	EventStopped   EventType = "test-stopped"
	EventCompleted EventType = "test-completed"
)

// Action tells which half of a request an update reports.
type Action string

const (
	ActionRequestSent      Action = "request-sent"
	ActionResponseReceived Action = "response-received"
)

// Event is published to observers of a run. Update is set for EventUpdate,
// Final for EventCompleted.
type Event struct {
	Type   EventType
	RunID  string
	Update *Update
	Final  *stats.Snapshot
}

// Update is the payload of one worker action.
type Update struct {
	Stats    stats.Snapshot
	WorkerID int
	Action   Action

	// Set on ActionResponseReceived only.
	ResponseTimeMs  int64
	StatusCode      int
	Error           string
	ResponsePreview string
	ResponseHeaders map[string]string
}

// Publisher receives run events. Implementations must be safe for
// concurrent use; all workers of a run publish through the same value.
type Publisher interface {
	Publish(Event)
}

type PublisherFunc func(Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// MultiPublisher fans an event out to every non-nil publisher in order.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// ChannelPublisher forwards events to a channel. Updates are dropped when the
// channel is full so a slow consumer never stalls the workers; lifecycle
// events always block until delivered.
type ChannelPublisher chan Event

func (c ChannelPublisher) Publish(ev Event) {
	if ev.Type == EventUpdate {
		select {
		case c <- ev:
		default:
			// Drop update if channel full, consumer acts as backpressure
		}
		return
	}
	c <- ev
}
