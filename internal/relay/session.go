package relay

import (
	"sync"

	"github.com/and161185/cipherchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DefaultSessionBuffer is the outbound queue length of a session.
const DefaultSessionBuffer = 64

// Session is one connected client. Outbound events go through a bounded
// queue; Deliver drops events when the queue is full or the session is closed.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	out  chan model.Event
	done chan struct{}
	once sync.Once
}

// NewSession creates an open session for userID.
func NewSession(userID uuid.UUID, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &Session{
		ID:     uuid.Must(uuid.NewV4()),
		UserID: userID,
		out:    make(chan model.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Deliver enqueues ev without blocking and reports whether it was accepted.
func (s *Session) Deliver(ev model.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

// Events is the outbound queue. It is never closed; watch Done.
func (s *Session) Events() <-chan model.Event { return s.out }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session closed. It is safe to call more than once.
func (s *Session) Close() { s.once.Do(func() { close(s.done) }) }

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
