// Package metrics exposes a small in-memory counter set for the dispatch
// pipeline. At this scale a handful of atomic counters served as JSON beats
// pulling in a full metrics stack.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics counts dispatch pipeline events.
type Metrics struct {
	submitted      atomic.Int64
	dropped        atomic.Int64
	delivered      atomic.Int64
	retried        atomic.Int64
	failed         atomic.Int64
	tokensRemoved  atomic.Int64
	tokensReplaced atomic.Int64
}

// New returns a zeroed Metrics collector.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSubmitted()      { m.submitted.Add(1) }
func (m *Metrics) IncDropped()        { m.dropped.Add(1) }
func (m *Metrics) IncDelivered()      { m.delivered.Add(1) }
func (m *Metrics) IncRetried()        { m.retried.Add(1) }
func (m *Metrics) IncFailed()         { m.failed.Add(1) }
func (m *Metrics) IncTokensRemoved()  { m.tokensRemoved.Add(1) }
func (m *Metrics) IncTokensReplaced() { m.tokensReplaced.Add(1) }

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"submitted":       m.submitted.Load(),
		"dropped":         m.dropped.Load(),
		"delivered":       m.delivered.Load(),
		"retried":         m.retried.Load(),
		"failed":          m.failed.Load(),
		"tokens_removed":  m.tokensRemoved.Load(),
		"tokens_replaced": m.tokensReplaced.Load(),
	}
}

// Handler serves the counters as JSON.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
