// Package pipeline contains the core dispatch components: the bounded
// message queue, the single worker that owns the send/classify/act cycle,
// and the retry scheduler.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/proxemics-lab/go-push-service/internal/platform/fcm"
	"github.com/proxemics-lab/go-push-service/pkg/dispatch"
	"github.com/proxemics-lab/go-push-service/pkg/metrics"
	"github.com/proxemics-lab/go-push-service/pkg/push"
)

// DefaultQueueCapacity bounds the pending-message queue when the
// configuration does not.
const DefaultQueueCapacity = 1024

// Transport is the synchronous gateway client the worker sends through.
type Transport interface {
	Send(ctx context.Context, body []byte) (status int, resp *fcm.Response, err error)
}

// Dispatcher owns the pending-message queue and the single worker goroutine
// consuming it. Any number of producers may Submit concurrently; exactly
// one worker performs sends and classification.
type Dispatcher struct {
	queue     chan *push.Message
	transport Transport
	tokens    dispatch.TokenInvalidator
	retries   *RetryScheduler
	metrics   *metrics.Metrics
	logger    *slog.Logger

	stopped atomic.Bool
	done    chan struct{}
}

// NewDispatcher assembles the dispatcher. The retry scheduler re-submits
// through the dispatcher's own Submit, so a retried message re-enters the
// normal dispatch path at the back of the queue.
func NewDispatcher(
	transport Transport,
	tokens dispatch.TokenInvalidator,
	retry RetryConfig,
	queueCapacity int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if m == nil {
		m = metrics.New()
	}
	d := &Dispatcher{
		queue:     make(chan *push.Message, queueCapacity),
		transport: transport,
		tokens:    tokens,
		metrics:   m,
		logger:    logger.With("component", "Dispatcher"),
		done:      make(chan struct{}),
	}
	d.retries = NewRetryScheduler(retry, d.Submit, m, logger)
	return d
}

// Submit enqueues a message for delivery. It never blocks: when the queue
// is at capacity, or the worker has already stopped, the message is dropped
// with a single log entry and no error reaches the caller.
func (d *Dispatcher) Submit(msg *push.Message) {
	if !msg.IsStop() {
		d.metrics.IncSubmitted()
	}

	if d.stopped.Load() {
		d.metrics.IncDropped()
		d.logger.Error("message dropped: dispatcher stopped", "customer_id", msg.CustomerID)
		return
	}

	select {
	case d.queue <- msg:
	default:
		d.metrics.IncDropped()
		d.logger.Error("message dropped: queue full", "customer_id", msg.CustomerID)
	}
}

// Start launches the worker goroutine. The context is used for outbound
// sends and token-store calls; there is no cancellation of in-flight work,
// shutdown is cooperative via the stop sentinel.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop submits the stop sentinel and waits for the worker to drain
// everything submitted before it. Messages enqueued after the sentinel are
// dropped and logged.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.Submit(push.NewStopMessage())
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: worker did not drain: %w", ctx.Err())
	}
}

// Done is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	d.logger.Debug("dispatch worker started")
	for msg := range d.queue {
		if msg.IsStop() {
			d.stopped.Store(true)
			d.logger.Warn("stop sentinel received, dispatch worker exiting")
			close(d.done)
			return
		}
		d.process(ctx, msg)
	}
}

// process performs one delivery attempt. All failures are handled locally:
// a single bad message is logged and dropped, never propagated, and never
// kills the worker.
func (d *Dispatcher) process(ctx context.Context, msg *push.Message) {
	procLogger := d.logger.With("customer_id", msg.CustomerID)

	if err := msg.Expand(); err != nil {
		d.metrics.IncFailed()
		procLogger.Error("payload expansion failed, dropping message", "err", err)
		return
	}

	body, err := msg.Build()
	if err != nil {
		d.metrics.IncFailed()
		procLogger.Error("wire body build failed, dropping message", "err", err)
		return
	}

	status, resp, err := d.transport.Send(ctx, body)
	if err != nil {
		// Network-level failure. Logged and dropped; only gateway-reported
		// transient codes trigger a retry.
		d.metrics.IncFailed()
		procLogger.Error("gateway unreachable, dropping message", "err", err)
		return
	}

	var results []fcm.Result
	if resp != nil {
		results = resp.Results
	}

	actions := fcm.Classify(status, msg.Recipients(), results)
	if len(actions) == 0 {
		d.metrics.IncDelivered()
		procLogger.Debug("message delivered", "recipients", len(msg.Recipients()))
		return
	}

	retryScheduled := false
	for _, action := range actions {
		switch action.Op {
		case fcm.OpAbort:
			d.metrics.IncFailed()
			procLogger.Error("delivery attempt aborted",
				"reason", action.Code,
				"status", status,
				"request", string(body),
			)

		case fcm.OpLog:
			procLogger.Error("gateway rejected recipient",
				"code", action.Code,
				"token", action.Token,
				"request", string(body),
			)

		case fcm.OpRemoveToken:
			d.metrics.IncTokensRemoved()
			procLogger.Warn("removing invalid token", "code", action.Code, "token", action.Token)
			if err := d.tokens.RemoveToken(ctx, msg.CustomerID, action.Token); err != nil {
				procLogger.Error("token removal failed", "token", action.Token, "err", err)
			}

		case fcm.OpReplaceToken:
			d.metrics.IncTokensReplaced()
			procLogger.Info("rotating token", "old_token", action.Token, "new_token", action.NewToken)
			if err := d.tokens.ReplaceToken(ctx, msg.CustomerID, msg.Agent(), action.NewToken, action.Token); err != nil {
				procLogger.Error("token replacement failed", "token", action.Token, "err", err)
			}

		case fcm.OpRetry:
			// One re-submission per attempt even when several recipients
			// report transient codes; the whole message is retried anyway.
			if !retryScheduled {
				retryScheduled = true
				d.retries.Schedule(msg)
			}
		}
	}
}
