package broker

import (
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lwgs/searchindex-client/pkg/model"
)

// Header keys are contractual across all producers and consumers.
const (
	HeaderSenderID         = "senderId"
	HeaderJobType          = "jobType"
	HeaderJobID            = "jobId"
	HeaderMessageCategory  = "messageCategory"
	HeaderTransactionState = "transactionState"
	HeaderTransactionID    = "transactionId"
	HeaderTimestamp        = "timestamp"
)

// CommonHeaders is the envelope attached to every broker message. Every
// field except Timestamp is optional; consumers dispatch on what is present.
type CommonHeaders struct {
	SenderID         string
	JobType          model.JobType
	JobID            *uuid.UUID
	MessageCategory  model.MessageCategory
	TransactionState model.TransactionState
	TransactionID    *uuid.UUID
	Timestamp        time.Time
}

// Apply writes the headers onto an outbound publishing and sets its
// correlation id to the transaction id when present, else the job id.
// A zero Timestamp defaults to the current wall clock.
func (h CommonHeaders) Apply(pub *amqp.Publishing) {
	table := amqp.Table{}

	if h.SenderID != "" {
		table[HeaderSenderID] = h.SenderID
	}
	if h.JobType != "" {
		table[HeaderJobType] = string(h.JobType)
	}
	if h.JobID != nil {
		table[HeaderJobID] = h.JobID.String()
	}
	if h.MessageCategory != "" {
		table[HeaderMessageCategory] = string(h.MessageCategory)
	}
	if h.TransactionState != "" {
		table[HeaderTransactionState] = string(h.TransactionState)
	}

	ts := h.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	table[HeaderTimestamp] = ts.UnixMilli()

	if h.TransactionID != nil {
		table[HeaderTransactionID] = h.TransactionID.String()
		pub.CorrelationId = h.TransactionID.String()
	} else if h.JobID != nil {
		pub.CorrelationId = h.JobID.String()
	}

	pub.Headers = table
}

// ParseHeaders reads the envelope back from an untyped header table.
// Missing fields stay zero, an unknown category parses to UNKNOWN and
// malformed UUIDs are treated as absent.
func ParseHeaders(table amqp.Table) CommonHeaders {
	headers := CommonHeaders{
		MessageCategory: model.CategoryUnknown,
	}

	if raw, ok := table[HeaderSenderID].(string); ok {
		headers.SenderID = raw
	}
	if raw, ok := table[HeaderJobType].(string); ok {
		headers.JobType = model.JobType(raw)
	}
	if raw, ok := table[HeaderJobID].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			headers.JobID = &id
		}
	}
	if raw, ok := table[HeaderMessageCategory].(string); ok {
		headers.MessageCategory = model.ParseMessageCategory(raw)
	}
	if raw, ok := table[HeaderTransactionState].(string); ok {
		headers.TransactionState = model.TransactionState(raw)
	}
	if raw, ok := table[HeaderTransactionID].(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			headers.TransactionID = &id
		}
	}
	if millis, ok := headerMillis(table[HeaderTimestamp]); ok {
		headers.Timestamp = time.UnixMilli(millis)
	}

	return headers
}

func headerMillis(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// CorrelationID mirrors the correlation id precedence of Apply.
func (h CommonHeaders) CorrelationID() string {
	if h.TransactionID != nil {
		return h.TransactionID.String()
	}
	if h.JobID != nil {
		return h.JobID.String()
	}
	return ""
}
