package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	votesCast     prometheus.Counter
	votesRejected *prometheus.CounterVec
	pollsCreated  prometheus.Counter
	pollsDeleted  prometheus.Counter
	subscribers   prometheus.Gauge
	storeRetries  prometheus.Histogram
	tallyDrift    prometheus.Counter
}

// New registers the service collectors on reg. A nil *Metrics is valid and records nothing.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		votesCast: f.NewCounter(prometheus.CounterOpts{
			Name: "poll_votes_cast_total",
			Help: "Votes recorded in the ledger.",
		}),
		votesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poll_votes_rejected_total",
			Help: "Vote casts that did not produce a ledger entry, by reason.",
		}, []string{"reason"}),
		pollsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "polls_created_total",
			Help: "Polls created.",
		}),
		pollsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "polls_deleted_total",
			Help: "Polls deleted by their owner.",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "poll_realtime_subscribers",
			Help: "Open change feed subscriptions.",
		}),
		storeRetries: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "poll_store_retry_attempts",
			Help:    "Attempts needed per store operation.",
			Buckets: []float64{1, 2, 3, 5, 8},
		}),
		tallyDrift: f.NewCounter(prometheus.CounterOpts{
			Name: "poll_tally_drift_total",
			Help: "Counters found out of sync with the ledger by reconciliation.",
		}),
	}
}

func (m *Metrics) VoteCast() {
	if m != nil {
		m.votesCast.Inc()
	}
}

func (m *Metrics) VoteRejected(reason string) {
	if m != nil {
		m.votesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PollCreated() {
	if m != nil {
		m.pollsCreated.Inc()
	}
}

func (m *Metrics) PollDeleted() {
	if m != nil {
		m.pollsDeleted.Inc()
	}
}

func (m *Metrics) SubscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) SubscriberRemoved() {
	if m != nil {
		m.subscribers.Dec()
	}
}

func (m *Metrics) StoreAttempts(n int) {
	if m != nil {
		m.storeRetries.Observe(float64(n))
	}
}

func (m *Metrics) TallyDrift(n int) {
	if m != nil {
		m.tallyDrift.Add(float64(n))
	}
}
