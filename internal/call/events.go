package call

import (
	"sync"
	"time"

	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/media"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/quality"
	"github.com/SuleymanovTahir/beauty-crm-sub001/internal/signal"
)

// EventType names the session events collaborators can subscribe to.
type EventType string

const (
	EventIncomingCall  EventType = "incomingCall"
	EventCallAccepted  EventType = "callAccepted"
	EventCallRejected  EventType = "callRejected"
	EventCallEnded     EventType = "callEnded"
	EventRemoteStream  EventType = "remoteStream"
	EventHold          EventType = "hold"
	EventResume        EventType = "resume"
	EventError         EventType = "error"
	EventQualityChange EventType = "qualityChange"
	EventTransferring  EventType = "transferring"
)

// Event carries the data for one emitted session event. Fields are set
// per type: Peer/CallType for incomingCall, Reason for callRejected and
// callEnded, Remote for remoteStream, Quality for qualityChange, PartyID
// for transferring, Err for error.
type Event struct {
	Type     EventType
	Peer     string
	CallType signal.CallType
	Reason   string
	Duration time.Duration
	Remote   media.Handle
	Quality  *quality.Sample
	PartyID  string
	Err      error
}

// ListenerID identifies one subscription for removal.
type ListenerID int

// Bus is a typed multi-subscriber event stream. Unlike callback
// properties, registering a second listener never drops the first.
type Bus struct {
	mu        sync.RWMutex
	next      ListenerID
	listeners map[EventType]map[ListenerID]func(Event)
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[EventType]map[ListenerID]func(Event))}
}

// AddEventListener subscribes fn to events of type t.
func (b *Bus) AddEventListener(t EventType, fn func(Event)) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	if b.listeners[t] == nil {
		b.listeners[t] = make(map[ListenerID]func(Event))
	}
	b.listeners[t][id] = fn
	return id
}

// RemoveEventListener drops the subscription. Unknown ids are ignored.
func (b *Bus) RemoveEventListener(t EventType, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.listeners[t]; m != nil {
		delete(m, id)
	}
}

// emit delivers e to every listener of its type. Delivery order across
// listeners is not guaranteed.
func (b *Bus) emit(e Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.listeners[e.Type]))
	for _, fn := range b.listeners[e.Type] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}
