package pipeline_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxemics-lab/go-push-service/internal/pipeline"
	"github.com/proxemics-lab/go-push-service/pkg/push"
)

func TestRetryScheduler_DefaultDelayWindow(t *testing.T) {
	s := pipeline.NewRetryScheduler(pipeline.RetryConfig{}, func(*push.Message) {}, nil, newTestLogger())

	for i := 0; i < 1000; i++ {
		delay := s.NextDelay()
		require.GreaterOrEqual(t, delay, 10*time.Second)
		require.Less(t, delay, 50*time.Second)
	}
}

func TestRetryScheduler_FiresExactlyOneSubmit(t *testing.T) {
	var calls atomic.Int64
	fired := make(chan *push.Message, 1)

	s := pipeline.NewRetryScheduler(
		pipeline.RetryConfig{MinDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond},
		func(msg *push.Message) {
			calls.Add(1)
			fired <- msg
		},
		nil,
		newTestLogger(),
	)

	msg := push.NewMessage("cust-1", "data", "ANDROID+tok")
	start := time.Now()
	s.Schedule(msg)

	select {
	case got := <-fired:
		assert.Same(t, msg, got, "the retried message is the same entity, not a copy")
	case <-time.After(time.Second):
		t.Fatal("scheduled submit never fired")
	}
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	// No second submission ever arrives for a single Schedule.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRetryScheduler_DoesNotBlockCaller(t *testing.T) {
	block := make(chan struct{})
	s := pipeline.NewRetryScheduler(
		pipeline.RetryConfig{MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		func(*push.Message) { <-block },
		nil,
		newTestLogger(),
	)

	done := make(chan struct{})
	go func() {
		s.Schedule(push.NewMessage("cust-1", "data", "ANDROID+tok"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule blocked the caller")
	}
	close(block)
}
