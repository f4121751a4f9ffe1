package sink

import "sync"

// MockMessage is one Publish call seen by MockSink.
type MockMessage struct {
	Topic, Key string
	Value      []byte
}

// MockSink keeps published messages in memory. If PublishErr is set,
// Publish fails with it and records nothing.
type MockSink struct {
	mu         sync.Mutex
	Messages   []MockMessage
	PublishErr error
	Closed     bool
}

func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Messages = append(m.Messages, MockMessage{topic, key, value})
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Reset forgets recorded messages.
func (m *MockSink) Reset() {
	m.mu.Lock()
	m.Messages = nil
	m.mu.Unlock()
}
