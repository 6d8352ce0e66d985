// MockProvider 是 vision.Provider 的脚本化模拟实现。
//
// 支持固定回复序列、错误注入与调用记录。
package mocks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/BaSui01/panoroam/vision"
)

// MockProvider replays scripted replies in order, repeating the last one.
type MockProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	fn      func(ctx context.Context, req vision.CompletionRequest) (string, error)
	calls   []vision.CompletionRequest
}

// NewMockProvider creates a provider that answers index 0.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// WithReplies queues raw reply strings.
func (m *MockProvider) WithReplies(replies ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

// WithChoice queues a well-formed reply selecting index.
func (m *MockProvider) WithChoice(index int, rationale string) *MockProvider {
	return m.WithReplies(fmt.Sprintf(`{"index": %d, "rationale": %q}`, index, rationale))
}

// WithErrors queues errors returned before any reply.
func (m *MockProvider) WithErrors(errs ...error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// WithFunc replaces scripting with fn.
func (m *MockProvider) WithFunc(fn func(ctx context.Context, req vision.CompletionRequest) (string, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Complete implements vision.Provider.
func (m *MockProvider) Complete(ctx context.Context, req vision.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.fn
	if fn == nil && len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return "", err
	}
	var reply string
	switch {
	case fn != nil:
	case len(m.replies) == 0:
		reply = `{"index": 0, "rationale": "default"}`
	case len(m.replies) == 1:
		reply = m.replies[0]
	default:
		reply = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return reply, nil
}

// Calls returns the requests seen so far.
func (m *MockProvider) Calls() []vision.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vision.CompletionRequest(nil), m.calls...)
}

// CallCount returns the number of Complete calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// DeciderFunc adapts a function to the explorer's decider contract.
type DeciderFunc func(ctx context.Context, req vision.Request) vision.Decision

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, req vision.Request) vision.Decision {
	return f(ctx, req)
}

// RandomDecider picks a uniformly random candidate, deterministically for a
// given seed. It stands in for an indifferent model in soak tests.
func RandomDecider(seed int64) DeciderFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func(_ context.Context, req vision.Request) vision.Decision {
		mu.Lock()
		defer mu.Unlock()
		if len(req.Candidates) == 0 {
			return vision.Decision{Index: -1, Fallback: true, FallbackCause: "no_candidates"}
		}
		return vision.Decision{
			Index:     rng.Intn(len(req.Candidates)),
			Rationale: "random",
			Attempts:  1,
		}
	}
}
