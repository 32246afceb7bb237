package bulk

// Status is an event counted by the engine.
type Status int

const (
	// QueueAdd counts successful Add calls.
	QueueAdd Status = iota
	// QueueAddFailure counts rejected Add calls.
	QueueAddFailure
	// BulkSuccess counts batches the operation accepted.
	BulkSuccess
	// BulkFailure counts batches abandoned after the last attempt failed.
	BulkFailure
	// BulkError counts failed attempts, including ones later retried.
	BulkError
	// BulkRetry counts re-attempts.
	BulkRetry
	// InternalError counts batches consumed after an internal fault.
	InternalError
	// CorruptRecord counts durable records that failed to decode.
	CorruptRecord
)

// Statuses lists every Status.
var Statuses = []Status{
	QueueAdd, QueueAddFailure, BulkSuccess, BulkFailure,
	BulkError, BulkRetry, InternalError, CorruptRecord,
}

func (s Status) String() string {
	switch s {
	case QueueAdd:
		return "queue_add"
	case QueueAddFailure:
		return "queue_add_failure"
	case BulkSuccess:
		return "bulk_success"
	case BulkFailure:
		return "bulk_failure"
	case BulkError:
		return "bulk_error"
	case BulkRetry:
		return "bulk_retry"
	case InternalError:
		return "internal_error"
	case CorruptRecord:
		return "corrupt_record"
	default:
		return "unknown"
	}
}
