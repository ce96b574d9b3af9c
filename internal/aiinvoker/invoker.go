// Package aiinvoker is the narrow abstraction over a remote model call
// (spec.md §4.4): given a resolved prompt and a cancellation signal it
// yields either a parsed Route Document or a typed Failure. Modeled on
// pkg/ai's AIClient interface, narrowed to the one operation the
// Coordinator actually drives.
package aiinvoker

import (
	"context"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

// FailureKind classifies why an invocation did not produce a Route
// Document (spec.md §4.4).
type FailureKind string

const (
	FailureRateLimited   FailureKind = "rate_limited"
	FailureModelError    FailureKind = "model_error"
	FailureTimeout       FailureKind = "timeout"
	FailureNetwork       FailureKind = "network"
	FailureCancelled     FailureKind = "cancelled"
	FailureInvalidOutput FailureKind = "invalid_output"
)

// Failure is the typed error returned when an invocation doesn't yield a
// Route Document. Message is sanitized: the Invoker never leaks raw
// upstream text into it (spec.md §7 propagation policy).
type Failure struct {
	Kind      FailureKind
	Message   string
	RetryHint bool
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// Invoker abstracts a remote model call. Implementations must honor ctx
// cancellation as the single cancellation signal — the Coordinator wires
// cancel_requested to ctx cancellation before calling Invoke.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (*routedoc.Document, *Failure)
}
