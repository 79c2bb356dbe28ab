package broadcast

import (
	"sync"

	"auction-engine/utils"
)

// Subscriber is one connected participant. It is not persisted and only
// tracks which auction groups it belongs to through the Hub.
type Subscriber struct {
	id     string
	userID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewSubscriber creates a subscriber with a bounded outbound buffer
func NewSubscriber(userID string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 32
	}
	return &Subscriber{
		id:     utils.GenerateID(),
		userID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) ID() string     { return s.id }
func (s *Subscriber) UserID() string { return s.userID }

// Messages yields encoded events in delivery order
func (s *Subscriber) Messages() <-chan []byte { return s.send }

// Done is closed once the subscriber is closed
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// deliver queues msg without blocking; false means closed or full
func (s *Subscriber) deliver(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// Close marks the subscriber closed. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// Closed reports whether Close has been called
func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
