package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ridetrace/itinerary-coordinator/internal/aiinvoker"
	"github.com/ridetrace/itinerary-coordinator/internal/exporter"
	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
	"github.com/ridetrace/itinerary-coordinator/internal/store"
	"github.com/ridetrace/itinerary-coordinator/internal/telemetry"
	"github.com/ridetrace/itinerary-coordinator/resilience"
)

// processJob runs the worker loop for one accepted job (spec.md §4.1
// "Worker loop"), grounded on orchestration/task_worker.go's
// dequeue-process-update structure but specialized to the two-state
// (pending/running) -> terminal transition this domain needs.
func (c *Coordinator) processJob(ctx context.Context, itineraryID string) {
	ctx, span := c.telem.StartSpan(ctx, "coordinator.process_job")
	defer span.End()
	started := time.Now()

	prompt := c.promptFor.take(itineraryID)

	record, err := c.store.Get(ctx, itineraryID)
	if err != nil {
		c.logger.Error("worker: failed to load record", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
		return
	}

	if record.CancelRequested {
		if _, err := c.store.UpdateStatus(ctx, itineraryID, store.StatusPending, store.StatusCancelled, nil); err != nil {
			c.logger.Warn("worker: failed to cancel pending job", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
		}
		return
	}

	if _, err := c.store.UpdateStatus(ctx, itineraryID, store.StatusPending, store.StatusRunning, func(r *store.GenerationRecord) {
		progress := 0
		r.Progress = &progress
	}); err != nil {
		c.logger.Warn("worker: failed to start job", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
		return
	}

	deadlineCtx, cancelDeadline := context.WithDeadline(ctx, record.CreatedAt.Add(c.config.JobDeadline))
	defer cancelDeadline()

	jobCtx, cancelJob := context.WithCancel(deadlineCtx)
	defer cancelJob()

	var cancelledByUser atomic.Bool
	watcherDone := make(chan struct{})
	go c.watchForCancellation(jobCtx, itineraryID, &cancelledByUser, cancelJob, watcherDone)

	doc, failure := c.invokeWithRetry(jobCtx, prompt)
	cancelJob()
	<-watcherDone

	var outcome string
	switch {
	case cancelledByUser.Load():
		c.finishCancelled(ctx, itineraryID)
		outcome = string(store.StatusCancelled)
	case deadlineCtx.Err() == context.DeadlineExceeded && failure == nil && doc == nil:
		c.finishFailed(ctx, itineraryID, KindTimeout, "generation exceeded its wall-clock deadline")
		outcome = string(store.StatusFailed)
	case doc != nil:
		c.finishCompleted(ctx, itineraryID, record.OwnerID, doc)
		outcome = string(store.StatusCompleted)
	case failure != nil:
		c.finishFailed(ctx, itineraryID, mapFailureKind(failure.Kind), failure.Message)
		outcome = string(store.StatusFailed)
	default:
		c.finishFailed(ctx, itineraryID, KindServerError, "worker produced no outcome")
		outcome = string(store.StatusFailed)
	}

	c.telem.RecordMetric(telemetry.MetricJobDuration, time.Since(started).Seconds(), map[string]string{"status": outcome})
	c.telem.RecordMetric(telemetry.MetricJobTransition, 1, map[string]string{"status": outcome})
}

// invokeWithRetry calls the AI Invoker through a circuit breaker
// (resilience.CircuitBreaker, tripped open by a run of repeated failures so
// a failing model provider stops being hammered), retrying exactly once
// (with a fixed backoff) when the Invoker marks the failure retryable
// (spec.md §4.1 "Failure semantics": network resets, rate limiting, and 5xx
// responses).
//
// This uses the breaker's synchronous CanExecute/RecordSuccess/RecordFailure
// gate rather than Execute, which runs fn on its own goroutine — Execute's
// ctx-cancellation path can return before fn finishes writing its result,
// and doc/failure here are plain local variables with no synchronization.
func (c *Coordinator) invokeWithRetry(ctx context.Context, prompt string) (*routedoc.Document, *aiinvoker.Failure) {
	if !c.breaker.CanExecute() {
		return nil, &aiinvoker.Failure{Kind: aiinvoker.FailureNetwork, Message: "AI invoker circuit breaker is open"}
	}

	var doc *routedoc.Document
	var failure *aiinvoker.Failure

	retryConfig := &resilience.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  c.config.RetryDelay,
		MaxDelay:      c.config.RetryDelay,
		BackoffFactor: 1,
		JitterEnabled: false,
	}

	_ = resilience.Retry(ctx, retryConfig, func() error {
		doc, failure = c.invoker.Invoke(ctx, prompt)
		if failure == nil {
			return nil
		}
		if failure.RetryHint {
			return failure
		}
		return nil
	})

	if failure != nil {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}

	return doc, failure
}

func mapFailureKind(kind aiinvoker.FailureKind) Kind {
	switch kind {
	case aiinvoker.FailureRateLimited:
		return KindRateLimited
	case aiinvoker.FailureModelError:
		return KindModelError
	case aiinvoker.FailureTimeout:
		return KindTimeout
	case aiinvoker.FailureNetwork:
		return KindNetwork
	case aiinvoker.FailureCancelled:
		return KindTimeout
	default:
		return KindInvalidRoute
	}
}

func (c *Coordinator) watchForCancellation(ctx context.Context, itineraryID string, flag *atomic.Bool, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.config.CancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record, err := c.store.Get(context.Background(), itineraryID)
			if err != nil {
				continue
			}
			if record.CancelRequested {
				flag.Store(true)
				cancel()
				return
			}
		}
	}
}

func (c *Coordinator) finishCancelled(ctx context.Context, itineraryID string) {
	if _, err := c.store.UpdateStatus(ctx, itineraryID, store.StatusRunning, store.StatusCancelled, nil); err != nil {
		c.logger.Warn("worker: failed to record cancellation", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
	}
}

func (c *Coordinator) finishFailed(ctx context.Context, itineraryID string, kind Kind, message string) {
	_, err := c.store.UpdateStatus(ctx, itineraryID, store.StatusRunning, store.StatusFailed, func(r *store.GenerationRecord) {
		r.Error = &store.GenerationError{Kind: string(kind), Message: message}
	})
	if err != nil {
		c.logger.Warn("worker: failed to record failure", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
	}
}

// finishCompleted validates the returned Route Document against the
// Exporter's ingest contract (spec.md §4.2 "Validation (on ingest from
// AI)") before storing it, even though the AI Invoker already performed
// the same check — the Coordinator owns the transition and must not trust
// a collaborator's internal validation as its sole guard.
func (c *Coordinator) finishCompleted(ctx context.Context, itineraryID, ownerID string, doc *routedoc.Document) {
	if err := exporter.ValidateIngest(doc); err != nil {
		c.finishFailed(ctx, itineraryID, KindInvalidRoute, "generated route failed validation")
		return
	}

	progress := 100
	_, err := c.store.UpdateStatus(ctx, itineraryID, store.StatusRunning, store.StatusCompleted, func(r *store.GenerationRecord) {
		r.Route = doc
		r.Progress = &progress
		r.CostEstimate = c.config.PerCallEstimate
	})
	if err != nil {
		c.logger.Warn("worker: failed to record completion", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
		return
	}

	if err := c.store.RecordCost(ctx, store.CostLedgerEntry{
		OwnerID:     ownerID,
		ItineraryID: itineraryID,
		Amount:      c.config.PerCallEstimate,
		RecordedAt:  time.Now(),
	}); err != nil {
		c.logger.Warn("worker: failed to record cost ledger entry", map[string]interface{}{"itinerary_id": itineraryID, "error": err.Error()})
		return
	}

	c.telem.RecordMetric(telemetry.MetricCostRecorded, c.config.PerCallEstimate, map[string]string{"owner_id": ownerID})
}
