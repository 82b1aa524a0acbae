package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/shopsort/internal/llm"
)

// MockClassifier is a test implementation of the Classifier interface. It
// either plays back scripted responses in order or delegates to ChatFunc
// when set, recording every request either way.
type MockClassifier struct {
	// ChatFunc, when non-nil, handles calls instead of the scripted
	// responses.
	ChatFunc  func(ctx context.Context, req llm.Request) (string, error)
	responses []string
	calls     []llm.Request
	next      int
	mu        sync.Mutex
}

// NewMockClassifier creates a mock that returns the given responses in order.
func NewMockClassifier(responses ...string) *MockClassifier {
	return &MockClassifier{responses: responses}
}

// Chat implements Classifier.
func (m *MockClassifier) Chat(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}

	if m.next >= len(m.responses) {
		return "", fmt.Errorf("mock classifier: no response scripted for call %d", m.next+1)
	}
	resp := m.responses[m.next]
	m.next++
	return resp, nil
}

// Calls returns a copy of all recorded requests.
func (m *MockClassifier) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.Request, len(m.calls))
	copy(out, m.calls)
	return out
}
