package pipeline

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/proxemics-lab/go-push-service/pkg/metrics"
	"github.com/proxemics-lab/go-push-service/pkg/push"
)

// Default retry window. Each re-submission independently draws a uniform
// delay from [MinDelay, MaxDelay); there is no backoff growth across
// repeated failures and no bound on the number of attempts.
const (
	DefaultRetryMinDelay = 10 * time.Second
	DefaultRetryMaxDelay = 50 * time.Second
)

// RetryConfig bounds the randomized re-submission delay.
type RetryConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultRetryMinDelay
	}
	if c.MaxDelay <= c.MinDelay {
		c.MaxDelay = c.MinDelay + (DefaultRetryMaxDelay - DefaultRetryMinDelay)
	}
	return c
}

// RetryScheduler re-submits failed messages after a randomized delay
// without blocking the worker. Each fired timer performs exactly one Submit
// and nothing else; it shares no state with the worker loop.
type RetryScheduler struct {
	cfg     RetryConfig
	submit  func(*push.Message)
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRetryScheduler(cfg RetryConfig, submit func(*push.Message), m *metrics.Metrics, logger *slog.Logger) *RetryScheduler {
	if m == nil {
		m = metrics.New()
	}
	return &RetryScheduler{
		cfg:     cfg.withDefaults(),
		submit:  submit,
		metrics: m,
		logger:  logger.With("component", "RetryScheduler"),
	}
}

// Schedule queues one fire-and-forget re-submission of msg. The timer is
// never canceled; if the worker stops before it fires, the Submit is
// dropped and logged like any other submission into a stopped dispatcher.
func (s *RetryScheduler) Schedule(msg *push.Message) {
	delay := s.NextDelay()
	s.metrics.IncRetried()
	s.logger.Info("scheduling re-submission",
		"customer_id", msg.CustomerID,
		"delay", delay,
	)
	time.AfterFunc(delay, func() {
		s.submit(msg)
	})
}

// NextDelay draws the delay for one re-submission, uniform over
// [MinDelay, MaxDelay).
func (s *RetryScheduler) NextDelay() time.Duration {
	return s.cfg.MinDelay + time.Duration(rand.Int63n(int64(s.cfg.MaxDelay-s.cfg.MinDelay)))
}
