// Package bus provides the in-process message bus: per-recipient FIFO queues
// with broadcast, bounded history, and delivery statistics. Delivery is
// best-effort and non-durable; a process restart loses undelivered messages.
package bus

import (
	"context"
	"sync"

	"github.com/crewforge/engine/internal/domain"
)

const (
	// DefaultQueueDepth bounds each recipient's queue.
	DefaultQueueDepth = 64
	// DefaultHistorySize bounds the audit ring buffer.
	DefaultHistorySize = 100
)

// Stats is a point-in-time snapshot of bus activity.
type Stats struct {
	TotalSent      int64            `json:"total_sent"`
	TotalDelivered int64            `json:"total_delivered"`
	QueueDepths    map[string]int   `json:"queue_depths"`
	ByKind         map[string]int64 `json:"by_kind"`
	BySender       map[string]int64 `json:"by_sender"`
}

// Bus routes messages between registered recipients.
type Bus struct {
	mu       sync.Mutex
	queues   map[string]chan domain.Message
	depth    int
	history  []domain.Message
	histHead int
	histLen  int

	totalSent      int64
	totalDelivered int64
	byKind         map[domain.Kind]int64
	bySender       map[string]int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueDepth sets the per-recipient queue bound.
func WithQueueDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.depth = n
		}
	}
}

// WithHistorySize sets the ring buffer capacity.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.history = make([]domain.Message, n)
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		queues:   make(map[string]chan domain.Message),
		depth:    DefaultQueueDepth,
		history:  make([]domain.Message, DefaultHistorySize),
		byKind:   make(map[domain.Kind]int64),
		bySender: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates a queue for the named recipient. Registering an existing
// recipient is a no-op so wiring code can be idempotent.
func (b *Bus) Register(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = make(chan domain.Message, b.depth)
	}
}

// Recipients returns the registered recipient names.
func (b *Bus) Recipients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	return names
}

// Send enqueues a message to its recipient's queue without blocking the
// sender. It fails with ErrUnknownRecipient for an unregistered recipient and
// ErrQueueFull when the bounded queue has no room.
func (b *Bus) Send(msg domain.Message) error {
	b.mu.Lock()
	q, ok := b.queues[msg.To]
	if !ok {
		b.mu.Unlock()
		return domain.WrapEngineError(domain.ErrUnknownRecipient.Code, msg.To, nil)
	}
	b.mu.Unlock()

	select {
	case q <- msg:
	default:
		return domain.WrapEngineError(domain.ErrQueueFull.Code, msg.To, nil)
	}

	b.mu.Lock()
	b.record(msg)
	b.mu.Unlock()
	return nil
}

// Broadcast enqueues a copy of the message to every registered recipient
// except the sender. Full queues are skipped rather than blocking the caller.
func (b *Bus) Broadcast(msg domain.Message) {
	b.mu.Lock()
	targets := make(map[string]chan domain.Message, len(b.queues))
	for name, q := range b.queues {
		if name != msg.From {
			targets[name] = q
		}
	}
	b.mu.Unlock()

	delivered := false
	for name, q := range targets {
		copy := msg
		copy.To = name
		select {
		case q <- copy:
			delivered = true
		default:
			// Recipient queue full; broadcast is best-effort.
		}
	}

	if delivered {
		b.mu.Lock()
		b.record(msg)
		b.mu.Unlock()
	}
}

// Receive returns the oldest unread message for the recipient, suspending
// until one arrives or the context is cancelled. This is one of the engine's
// two suspension points.
func (b *Bus) Receive(ctx context.Context, name string) (domain.Message, error) {
	b.mu.Lock()
	q, ok := b.queues[name]
	b.mu.Unlock()
	if !ok {
		return domain.Message{}, domain.WrapEngineError(domain.ErrUnknownRecipient.Code, name, nil)
	}

	select {
	case msg := <-q:
		b.mu.Lock()
		b.totalDelivered++
		b.mu.Unlock()
		return msg, nil
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

// History returns up to limit of the most recent messages, oldest first.
// The backing ring buffer evicts oldest entries once full.
func (b *Bus) History(limit int) []domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.histLen
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Message, 0, n)
	start := b.histLen - n
	for i := start; i < b.histLen; i++ {
		idx := (b.histHead + i) % len(b.history)
		out = append(out, b.history[idx])
	}
	return out
}

// Stats reports queue depths and message counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalSent:      b.totalSent,
		TotalDelivered: b.totalDelivered,
		QueueDepths:    make(map[string]int, len(b.queues)),
		ByKind:         make(map[string]int64, len(b.byKind)),
		BySender:       make(map[string]int64, len(b.bySender)),
	}
	for name, q := range b.queues {
		s.QueueDepths[name] = len(q)
	}
	for kind, n := range b.byKind {
		s.ByKind[string(kind)] = n
	}
	for sender, n := range b.bySender {
		s.BySender[sender] = n
	}
	return s
}

// record updates counters and the history ring. Caller holds b.mu.
func (b *Bus) record(msg domain.Message) {
	b.totalSent++
	b.byKind[msg.Kind]++
	b.bySender[msg.From]++

	if b.histLen < len(b.history) {
		b.history[(b.histHead+b.histLen)%len(b.history)] = msg
		b.histLen++
	} else {
		b.history[b.histHead] = msg
		b.histHead = (b.histHead + 1) % len(b.history)
	}
}
