package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/panoroam/observe"
)

// MockCapturer returns a small fake JPEG per request and records requests.
type MockCapturer struct {
	mu       sync.Mutex
	requests []observe.Request
	err      error
}

// NewMockCapturer creates a capturer.
func NewMockCapturer() *MockCapturer { return &MockCapturer{} }

// WithError makes every capture fail.
func (m *MockCapturer) WithError(err error) *MockCapturer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Capture implements observe.Capturer.
func (m *MockCapturer) Capture(ctx context.Context, req observe.Request) (observe.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return observe.Observation{}, m.err
	}
	return observe.Observation{
		Ref:        fmt.Sprintf("mock:%s@%03.0f", req.NodeID, req.Heading),
		NodeID:     req.NodeID,
		Heading:    req.Heading,
		MIMEType:   "image/jpeg",
		Image:      []byte{0xFF, 0xD8, 0xFF, 0xD9},
		CapturedAt: time.Now(),
	}, nil
}

// Requests returns the captures requested so far.
func (m *MockCapturer) Requests() []observe.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]observe.Request(nil), m.requests...)
}
