package messaging

import (
	"context"
	"sync"
)

// MockMessageSender records every message it is given, for tests.
type MockMessageSender struct {
	mu       sync.Mutex
	messages []*MatchMessage
	err      error
	closed   bool
}

// NewMockMessageSender creates a new MockMessageSender.
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// FailWith makes subsequent sends return err
func (m *MockMessageSender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SendMatchMessage records msg.
func (m *MockMessageSender) SendMatchMessage(_ context.Context, msg *MatchMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of what has been sent
func (m *MockMessageSender) Messages() []*MatchMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MatchMessage(nil), m.messages...)
}

// Closed reports whether Close was called
func (m *MockMessageSender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the sender closed.
func (m *MockMessageSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockMessageSender implements MessageSender
var _ MessageSender = (*MockMessageSender)(nil)
