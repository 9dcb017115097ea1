package events

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/ethereum/go-ethereum/log"
)

// Sink receives notifications. Emit must not call back into the component
// that raised the event.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// OrLog returns sink, or a LogSink when sink is nil.
func OrLog(sink Sink, logger log.Logger) Sink {
	if sink != nil {
		return sink
	}
	return NewLogSink(logger)
}

// LogSink writes every notification to a logger. Warnings go out at warn
// level, everything else at debug.
type LogSink struct {
	log log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.New("module", "events")
	}
	return &LogSink{log: logger}
}

func (s *LogSink) Emit(ev Event) {
	ctx := Fields(ev)
	if w, ok := ev.(Warning); ok {
		s.log.Warn(w.Warning(), append([]interface{}{"event", ev.Name()}, ctx...)...)
		return
	}
	s.log.Debug(ev.Name(), ctx...)
}

// Fields flattens an event into key/value pairs for structured loggers.
func Fields(ev Event) []interface{} {
	v := reflect.ValueOf(ev)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	ctx := make([]interface{}, 0, 2*t.NumField())
	for i := 0; i < t.NumField(); i++ {
		ctx = append(ctx, t.Field(i).Name, fmt.Sprint(v.Field(i).Interface()))
	}
	return ctx
}

// Recorder keeps every notification in memory. Tests and the simulator use
// it to inspect what a call produced.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Event
	for _, ev := range r.events {
		if ev.Name() == name {
			res = append(res, ev)
		}
	}
	return res
}

// Warnings returns the recorded warnings.
func (r *Recorder) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []Warning
	for _, ev := range r.events {
		if w, ok := ev.(Warning); ok {
			res = append(res, w)
		}
	}
	return res
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// AllTopic receives every event published on a Bus.
const AllTopic = "*"

// Bus publishes events on an EventBus, once under the event name and once
// under AllTopic. Subscribers take a single Event argument.
type Bus struct {
	bus EventBus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: EventBus.New()}
}

func (b *Bus) Emit(ev Event) {
	b.bus.Publish(ev.Name(), ev)
	b.bus.Publish(AllTopic, ev)
}

// Subscribe registers fn for topic (an event name or AllTopic).
func (b *Bus) Subscribe(topic string, fn func(ev Event)) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeSink forwards every event to sink.
func (b *Bus) SubscribeSink(sink Sink) error {
	return b.bus.Subscribe(AllTopic, sink.Emit)
}

// Unsubscribe removes a handler previously passed to Subscribe.
func (b *Bus) Unsubscribe(topic string, fn func(ev Event)) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Batch buffers the notifications of a call until it commits. A failed call
// drops its batch so observers never see events of a rolled back change.
type Batch []Event

func (b *Batch) Add(ev Event) {
	*b = append(*b, ev)
}

// EmitTo delivers the batch in order.
func (b Batch) EmitTo(sink Sink) {
	for _, ev := range b {
		sink.Emit(ev)
	}
}
