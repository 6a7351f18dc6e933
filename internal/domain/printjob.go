package domain

import "time"

// JobType enumerates receipt variants.
type JobType string

// Receipt variants.
const (
	JobKitchen  JobType = "kitchen"
	JobService  JobType = "service"
	JobCustomer JobType = "customer"
	JobOther    JobType = "other"
)

// PrintJobStatus captures the lifecycle state of a print job.
type PrintJobStatus string

// Print job status values.
const (
	PrintJobPending   PrintJobStatus = "pending"
	PrintJobPrinting  PrintJobStatus = "printing"
	PrintJobCompleted PrintJobStatus = "completed"
	PrintJobFailed    PrintJobStatus = "failed"
)

// DefaultMaxAttempts is the default maxAttempts for a new print job.
const DefaultMaxAttempts = 3

// PrintJob is one receipt rendering for one order variant. Content is set at
// creation and never mutated; state transitions flow only through the Print
// Manager.
type PrintJob struct {
	ID           string
	OrderID      string
	JobType      JobType
	Status       PrintJobStatus
	Content      []byte
	Attempts     int
	MaxAttempts  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PrintedAt    *time.Time
	ErrorMessage *string
}

// CanAttempt reports whether the job has attempts remaining.
func (j PrintJob) CanAttempt() bool { return j.Attempts < j.MaxAttempts }

// PriorityFor derives the offline-queue priority for a job type: kitchen is
// urgent, customer-facing receipts can wait, everything else is normal.
func PriorityFor(jt JobType) QueuePriority {
	switch jt {
	case JobKitchen:
		return PriorityHigh
	case JobCustomer:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// PrintJobRepository is the Store's port for print jobs.
type PrintJobRepository interface {
	// SavePrintJob upserts a print job, returning its id on insert.
	SavePrintJob(ctx Context, j PrintJob) (string, error)
	GetPrintJob(ctx Context, id string) (PrintJob, error)
	// GetPendingPrintJobs returns pending, attemptable jobs ordered by
	// createdAt ascending.
	GetPendingPrintJobs(ctx Context) ([]PrintJob, error)
	// GetFailedPrintJobs returns jobs currently in the failed state.
	GetFailedPrintJobs(ctx Context) ([]PrintJob, error)
	// GetStuckPrintJobs returns jobs stuck in the printing state since
	// before cutoff: the Print Manager crashed mid-print and left them
	// claimed but never completed or failed.
	GetStuckPrintJobs(ctx Context, cutoff time.Time) ([]PrintJob, error)
	// UpdatePrintJobStatus transitions a job's status, optionally recording
	// an error message.
	UpdatePrintJobStatus(ctx Context, id string, status PrintJobStatus, errMsg *string) error
	// ListByOrder returns every print job created for an order.
	ListByOrder(ctx Context, orderID string) ([]PrintJob, error)
	// CountByStatus returns counts of jobs grouped by status, for
	// getStatistics().
	CountByStatus(ctx Context) (map[PrintJobStatus]int, error)
}
