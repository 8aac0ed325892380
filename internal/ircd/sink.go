package ircd

import (
	"sync"
	"sync/atomic"

	"github.com/boxcat/ircd/internal/wire"
)

// Sink is a connection's bounded outbound queue. The broadcast engine
// and registry post Messages to it non-blockingly (§5); the connection
// task is the only drain side.
type Sink struct {
	ch       chan wire.Message
	dropped  atomic.Int64
	closeOne sync.Once
	closed   atomic.Bool
}

// NewSink builds a sink with the given capacity, taken from one of the
// *_message_queue_length configuration options.
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = 1
	}
	return &Sink{ch: make(chan wire.Message, capacity)}
}

// Send attempts a non-blocking post. If the sink is full the message is
// dropped and the drop counter increments; the caller never blocks. If
// the sink is closed, Send is a silent no-op. The registry does not reap
// closed sinks on its own: a closed sink stays registered until its
// connection's teardown (Connection.Run) removes the user.
func (s *Sink) Send(m wire.Message) {
	if s.closed.Load() {
		return
	}
	// Close may run between the check above and the send below; the send
	// on the just-closed channel then panics, which is the no-op case.
	defer func() { _ = recover() }()
	select {
	case s.ch <- m:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of messages dropped so far due to
// backpressure (§8 property 9).
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// C exposes the receive side for the connection task's drain loop.
func (s *Sink) C() <-chan wire.Message {
	return s.ch
}

// Close marks the sink dead and closes the channel so the drain loop's
// range/select observes closure and exits. Safe to call more than once.
func (s *Sink) Close() {
	s.closeOne.Do(func() {
		s.closed.Store(true)
		close(s.ch)
	})
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	return s.closed.Load()
}
