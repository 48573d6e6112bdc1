package notify

import (
	"context"
	"sync"
)

// MemTransport is a test double recording every Send call and returning a
// scripted outcome per topic.
type MemTransport struct {
	mu       sync.Mutex
	Sent     []Request
	Outcomes map[string][]error // per-topic queue of outcomes, consumed in order
	Default  error              // returned once a topic's queue is exhausted
}

var _ PushTransport = (*MemTransport)(nil)

func NewMemTransport() *MemTransport {
	return &MemTransport{Outcomes: make(map[string][]error)}
}

// Script queues outcomes to return for topic's next N Send calls, in order.
func (m *MemTransport) Script(topic string, outcomes ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[topic] = append(m.Outcomes[topic], outcomes...)
}

func (m *MemTransport) Send(_ context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, req)

	queue := m.Outcomes[req.Topic]
	if len(queue) == 0 {
		return m.Default
	}
	next := queue[0]
	m.Outcomes[req.Topic] = queue[1:]
	return next
}
