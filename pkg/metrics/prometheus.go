package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsSeeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwgs_records_seeded_total",
			Help: "Total number of person-data records admitted by job type",
		},
		[]string{"job_type"},
	)

	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwgs_messages_consumed_total",
			Help: "Total number of broker deliveries by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)

	StateEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lwgs_state_events_dropped_total",
			Help: "Transaction state updates dropped because no transaction row exists",
		},
	)

	DuplicateTransactions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lwgs_duplicate_transactions_total",
			Help: "Redelivered NEW transaction events discarded on unique-key violation",
		},
	)

	JobStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwgs_job_state_transitions_total",
			Help: "Total number of sync job state transitions by target state",
		},
		[]string{"state"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lwgs_queue_depth",
			Help: "Number of messages ready on a broker queue",
		},
		[]string{"queue"},
	)

	SedexReceiptsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwgs_sedex_receipts_processed_total",
			Help: "Total number of Sedex receipt files handled by outcome",
		},
		[]string{"outcome"},
	)
)
