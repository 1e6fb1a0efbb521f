// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	EventTypeNormal  = "Normal"
	EventTypeWarning = "Warning"
)

const (
	ReasonDiscovered         = "Discovered"
	ReasonTransportFailed    = "TransportFailed"
	ReasonMapFailed          = "MapFailed"
	ReasonUnrecognizedDevice = "UnrecognizedDevice"
	ReasonDriverFailed       = "DriverFailed"
	ReasonDriverBound        = "DriverBound"
)

// EventRecorder defines an interface for recording events
type EventRecorder interface {
	Eventf(source string, eventType string, reason string, messageFormat string, args ...any)
}

// EventStore defines an interface for listing events
type EventStore interface {
	ListEvents() []*Event
}

// Event is a discovery event. Source names the device-tree node or PCI function involved.
type Event struct {
	Source    string
	Type      string
	Reason    string
	Message   string
	EventTime int64
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s %s: %s", e.Type, e.Reason, e.Source, e.Message)
}

// EventStoreOptions defines options to initialize the discovery event store
type EventStoreOptions struct {
	MaxEvents      int
	TTL            time.Duration
	ResyncInterval time.Duration
}

func (o *EventStoreOptions) Defaults() {
	if o.MaxEvents <= 0 {
		o.MaxEvents = 1000
	}

	if o.TTL <= 0 {
		o.TTL = time.Hour
	}

	if o.ResyncInterval <= 0 {
		o.ResyncInterval = time.Minute
	}
}

// Store implements the EventRecorder and EventStore interface
// and represents an in-memory event store with TTL for events.
type Store struct {
	maxEvents           int           // Maximum number of events in the store
	events              []*Event      // Slice of events
	mutex               sync.Mutex    // Mutex for thread safety
	eventTTL            time.Duration // TTL for events
	eventResyncInterval time.Duration // Resync interval for event store's TTL expiration check
	head                int           // Index of the oldest event
	count               int           // Current number of events in the store
	log                 logr.Logger
	now                 func() time.Time
}

// NewEventStore creates a new Store with a fixed number of events and set TTL for events.
// Unset options are defaulted.
func NewEventStore(log logr.Logger, opts EventStoreOptions) *Store {
	opts.Defaults()
	return &Store{
		maxEvents:           opts.MaxEvents,
		events:              make([]*Event, opts.MaxEvents),
		eventTTL:            opts.TTL,
		eventResyncInterval: opts.ResyncInterval,
		log:                 log,
		now:                 time.Now,
	}
}

// Eventf logs and records an event with formatted message.
func (es *Store) Eventf(source, eventType, reason, messageFormat string, args ...any) {
	message := fmt.Sprintf(messageFormat, args...)
	if eventType == EventTypeWarning {
		es.log.Info("Warning event", "source", source, "reason", reason, "message", message)
	} else {
		es.log.V(1).Info("Event", "source", source, "reason", reason, "message", message)
	}
	es.recordEvent(source, eventType, reason, message)
}

func (es *Store) recordEvent(source, eventType, reason, message string) {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	index := (es.head + es.count) % es.maxEvents

	// If the store is full, overwrite the oldest event and move the head
	if es.count == es.maxEvents {
		es.log.V(1).Info("Overriding event", "event", es.events[es.head])
		es.head = (es.head + 1) % es.maxEvents
	} else {
		es.count++
	}

	es.events[index] = &Event{
		Source:    source,
		Type:      eventType,
		Reason:    reason,
		Message:   message,
		EventTime: es.now().Unix(),
	}
}

// removeExpiredEvents checks and removes events whose TTL has expired.
func (es *Store) removeExpiredEvents() {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	now := es.now()

	for es.count > 0 {
		index := es.head % es.maxEvents
		event := es.events[index]
		if time.Unix(event.EventTime, 0).Add(es.eventTTL).After(now) {
			break
		}

		es.events[index] = nil
		es.head = (es.head + 1) % es.maxEvents
		es.count--
	}
}

// Start runs the event store's TTL expiration check until ctx is done.
func (es *Store) Start(ctx context.Context) {
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		es.removeExpiredEvents()
	}, es.eventResyncInterval)
}

// ListEvents returns a copy of all events currently in the store, oldest first.
func (es *Store) ListEvents() []*Event {
	es.mutex.Lock()
	defer es.mutex.Unlock()

	result := make([]*Event, 0, es.count)
	for i := 0; i < es.count; i++ {
		event := *es.events[(es.head+i)%es.maxEvents]
		result = append(result, &event)
	}

	return result
}

// Discard is an EventRecorder that drops every event.
var Discard EventRecorder = discard{}

type discard struct{}

func (discard) Eventf(string, string, string, string, ...any) {}
