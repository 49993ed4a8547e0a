package converge

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured events during a run.
type Observer interface {
	Event(event Event)
}

// Event is one structured run event.
type Event struct {
	Type      EventType
	Step      string
	Index     int
	Total     int
	Message   string
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// EventType names a run event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventStepChecking    EventType = "step.checking"
	EventStepSatisfied   EventType = "step.satisfied"
	EventStepUnsatisfied EventType = "step.unsatisfied"
	EventStepApplying    EventType = "step.applying"
	EventStepVerifying   EventType = "step.verifying"
	EventStepApplied     EventType = "step.applied"
	EventStepFailed      EventType = "step.failed"
)

// LogObserver writes events through a logr.Logger.
type LogObserver struct {
	log logr.Logger
}

// NewLogObserver creates an observer that logs every event.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	kv := []any{"event", string(event.Type)}
	if event.Step != "" {
		kv = append(kv, "step", event.Step)
	}
	if event.Total > 0 {
		kv = append(kv, "index", event.Index, "total", event.Total)
	}
	if event.Duration > 0 {
		kv = append(kv, "duration", event.Duration.Round(time.Millisecond).String())
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.Type)
	}

	if event.Err != nil {
		o.log.Error(event.Err, msg, kv...)
		return
	}
	switch event.Type {
	case EventStepChecking, EventStepVerifying:
		o.log.V(1).Info(msg, kv...)
	default:
		o.log.Info(msg, kv...)
	}
}

// Recorder captures events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Event implements Observer.
func (r *Recorder) Event(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Multi fans events out to several observers.
type Multi []Observer

// Event implements Observer.
func (m Multi) Event(event Event) {
	for _, o := range m {
		if o != nil {
			o.Event(event)
		}
	}
}
