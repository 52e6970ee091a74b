package model

// JobType discriminates the two admission modes.
type JobType string

const (
	JobTypePartial JobType = "PARTIAL"
	JobTypeFull    JobType = "FULL"
)

// TransactionState is the lifecycle of a single admitted record.
type TransactionState string

const (
	TransactionNew       TransactionState = "NEW"
	TransactionProcessed TransactionState = "PROCESSED"
	TransactionSent      TransactionState = "SENT"
	TransactionFailed    TransactionState = "FAILED"
)

// JobState is the lifecycle of a full-sync job.
type JobState string

const (
	JobNew              JobState = "NEW"
	JobSending          JobState = "SENDING"
	JobSent             JobState = "SENT"
	JobCompleted        JobState = "COMPLETED"
	JobFailed           JobState = "FAILED"
	JobFailedProcessing JobState = "FAILED_PROCESSING"
)

// Terminal reports whether the job state is a sink. COMPLETED and FAILED
// are decided exclusively by the sedex message state processor.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// SedexMessageState is the lifecycle of one outbound Sedex message.
type SedexMessageState string

const (
	SedexMessageCreated    SedexMessageState = "CREATED"
	SedexMessageSent       SedexMessageState = "SENT"
	SedexMessageSuccessful SedexMessageState = "SUCCESSFUL"
	SedexMessageFailed     SedexMessageState = "FAILED"
)

func (s SedexMessageState) Terminal() bool {
	return s == SedexMessageSuccessful || s == SedexMessageFailed
}

// MessageCategory dispatches consumed broker messages.
type MessageCategory string

const (
	CategoryTransactionEvent MessageCategory = "TRANSACTION_EVENT"
	CategorySedexEvent       MessageCategory = "SEDEX_EVENT"
	CategoryUnknown          MessageCategory = "UNKNOWN"
)

// ParseMessageCategory maps any unrecognized value to CategoryUnknown.
func ParseMessageCategory(raw string) MessageCategory {
	switch MessageCategory(raw) {
	case CategoryTransactionEvent:
		return CategoryTransactionEvent
	case CategorySedexEvent:
		return CategorySedexEvent
	default:
		return CategoryUnknown
	}
}
