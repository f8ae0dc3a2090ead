package notification

import (
	"context"
	"sync"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// Broadcaster delivers events to in-process subscribers of a session, such as the
// server-sent events endpoint. A slow subscriber misses events instead of stalling the
// pipeline, except terminal events which replace the oldest buffered event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch     chan Event
	closed bool
}

// NewBroadcaster creates a Broadcaster with the default buffer size.
func NewBroadcaster() *Broadcaster {
	return NewBroadcasterWithBuffer(DefaultSubscriberBuffer)
}

// NewBroadcasterWithBuffer creates a Broadcaster whose subscriber channels hold buffer events.
func NewBroadcasterWithBuffer(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{subs: make(map[string]map[*subscription]struct{}), buffer: buffer}
}

// Subscribe registers for the events of sessionID. The channel is closed after a terminal
// event or when cancel is called.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	set, ok := b.subs[sessionID]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.remove(sessionID, sub)
		})
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Broadcaster) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}

func (b *Broadcaster) Notify(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[e.SessionID] {
		if !deliver(sub.ch, e, e.Type.IsTerminal()) {
			logger.Debugf("Dropped %s event for a slow subscriber of session %s.", e.Type, e.SessionID)
		}
		if e.Type.IsTerminal() {
			b.remove(e.SessionID, sub)
		}
	}
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, set := range b.subs {
		for sub := range set {
			b.remove(id, sub)
		}
	}
}

// remove must be called with mu held.
func (b *Broadcaster) remove(sessionID string, sub *subscription) {
	set := b.subs[sessionID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sessionID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func deliver(ch chan Event, e Event, force bool) bool {
	select {
	case ch <- e:
		return true
	default:
	}
	if !force {
		return false
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}

var _ Notifier = (*Broadcaster)(nil)
