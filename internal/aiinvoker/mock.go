package aiinvoker

import (
	"context"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

// MockInvoker is a deterministic, in-process Invoker for tests and local
// development without an Anthropic API key. Script queues up a sequence
// of (Document, Failure) pairs consumed one per Invoke call; the last
// entry repeats once exhausted.
type MockInvoker struct {
	Script []MockResult
	calls  int

	// OnInvoke, if set, is invoked before returning so tests can exercise
	// cancellation mid-flight.
	OnInvoke func(ctx context.Context, prompt string)
}

// MockResult is one scripted response.
type MockResult struct {
	Document *routedoc.Document
	Failure  *Failure
}

// NewMockInvoker returns a MockInvoker that always returns doc.
func NewMockInvoker(doc *routedoc.Document) *MockInvoker {
	return &MockInvoker{Script: []MockResult{{Document: doc}}}
}

func (m *MockInvoker) Invoke(ctx context.Context, prompt string) (*routedoc.Document, *Failure) {
	if m.OnInvoke != nil {
		m.OnInvoke(ctx, prompt)
	}
	if err := ctx.Err(); err != nil {
		return nil, &Failure{Kind: FailureCancelled, Message: "generation cancelled"}
	}

	idx := m.calls
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	m.calls++
	if idx < 0 {
		return nil, &Failure{Kind: FailureModelError, Message: "mock invoker has no scripted results"}
	}
	result := m.Script[idx]
	return result.Document, result.Failure
}
