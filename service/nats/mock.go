package nats

import (
	"context"
	"sync"

	"github.com/mqqz/whaleflow-sub000/service/record"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	published    []*record.Record
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		published: make([]*record.Record, 0),
	}
}

// PublishRecord records the record and returns any configured error.
func (m *MockPublisher) PublishRecord(ctx context.Context, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.published = append(m.published, rec)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedRecords returns all published records (for testing).
func (m *MockPublisher) GetPublishedRecords() []*record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	recs := make([]*record.Record, len(m.published))
	copy(recs, m.published)
	return recs
}

// GetPublishedRecordCount returns the number of published records.
func (m *MockPublisher) GetPublishedRecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.published)
}

// GetPublishedRecordsForNetwork returns records published for a network.
func (m *MockPublisher) GetPublishedRecordsForNetwork(network string) []*record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*record.Record, 0)
	for _, rec := range m.published {
		if rec.Network == network {
			recs = append(recs, rec)
		}
	}
	return recs
}

// SetPublishError configures the mock to return an error on PublishRecord.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published records and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = make([]*record.Record, 0)
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
