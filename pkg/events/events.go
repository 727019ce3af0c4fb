package events

import (
	"sync"
	"time"

	"github.com/cuemby/tiersync/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventRecordSaved         EventType = "record.saved"
	EventRecordSaveFailed    EventType = "record.save_failed"
	EventRecordRemoved       EventType = "record.removed"
	EventRecordRemoveFailed  EventType = "record.remove_failed"
	EventRecordFetched       EventType = "record.fetched"
	EventOperationSuperseded EventType = "operation.superseded"
	EventDatabaseQuiescent   EventType = "database.quiescent"
	EventOnline              EventType = "connectivity.online"
	EventOffline             EventType = "connectivity.offline"
)

// Event is a signal raised by the sync engine
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Database  string
	Key       string
	Message   string
	Data      types.Fields
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for distribution. It never blocks: the engine
// publishes from its executor, so a full buffer drops the event.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
