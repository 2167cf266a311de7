package bridge

import "sync"

// Mailbox is an unbounded many-producer single-consumer queue. Push never
// blocks; the consumer takes everything queued so far with Drain.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It reports false if the mailbox was closed, in which case
// v is discarded.
func (m *Mailbox[T]) Push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Drain appends all queued items to dst in arrival order and empties the
// mailbox.
func (m *Mailbox[T]) Drain(dst []T) []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst = append(dst, m.items...)
	clear(m.items)
	m.items = m.items[:0]
	return dst
}

// Ready is signalled after a Push. The signal is coalesced, so a receive
// only means there may be items to drain.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close discards queued items and makes later pushes no-ops. Producers that
// outlive the consumer then drop their results.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
}

// Inbox merges the pty and classifier mailboxes. No ordering holds between
// the two.
type Inbox struct {
	Pty        *Mailbox[Event]
	Classifier *Mailbox[Event]
}

// NewInbox creates an inbox with two empty mailboxes.
func NewInbox() *Inbox {
	return &Inbox{
		Pty:        NewMailbox[Event](),
		Classifier: NewMailbox[Event](),
	}
}

// Drain takes everything currently queued in both mailboxes.
func (in *Inbox) Drain(dst []Event) []Event {
	dst = in.Pty.Drain(dst)
	return in.Classifier.Drain(dst)
}

// Close closes both mailboxes.
func (in *Inbox) Close() {
	in.Pty.Close()
	in.Classifier.Close()
}
