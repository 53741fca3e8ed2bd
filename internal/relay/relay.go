// Package relay carries reliable data messages between participants of a
// conversation room.
package relay

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing on a closed relay.
var ErrClosed = errors.New("relay closed")

// Message is a payload delivered to room subscribers. Sender is the
// publishing participant's identity; subscribers see their own messages too.
type Message struct {
	Room    string `json:"room"`
	Sender  string `json:"sender,omitempty"`
	Payload []byte `json:"payload"`
}

// Handler receives inbound messages. It runs on the relay's delivery
// goroutine and must not block for long.
type Handler func(Message)

// Relay is a room-scoped publish/subscribe channel.
type Relay interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe delivers every message published to room after it returns.
	// The returned function cancels the subscription and waits for the
	// delivery goroutine to exit.
	Subscribe(ctx context.Context, room string, handler Handler) (func(), error)
	Close() error
}

// MemoryRelay fans messages out to in-process subscribers.
type MemoryRelay struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]chan Message
	nextID uint64
	closed bool
}

// NewMemoryRelay returns an empty in-process relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{rooms: make(map[string]map[uint64]chan Message)}
}

const subscriberBuffer = 64

func (r *MemoryRelay) Publish(ctx context.Context, msg Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	for _, ch := range r.rooms[msg.Room] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *MemoryRelay) Subscribe(ctx context.Context, room string, handler Handler) (func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	id := r.nextID
	r.nextID++
	ch := make(chan Message, subscriberBuffer)
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[uint64]chan Message)
	}
	r.rooms[room][id] = ch
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			handler(msg)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if subs, ok := r.rooms[room]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(r.rooms, room)
				}
			}
			r.mu.Unlock()
			<-done
		})
	}, nil
}

// Close drops every subscription.
func (r *MemoryRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for room, subs := range r.rooms {
		for _, ch := range subs {
			close(ch)
		}
		delete(r.rooms, room)
	}
	return nil
}
