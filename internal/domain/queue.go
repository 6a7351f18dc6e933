package domain

import "time"

// QueuePriority orders offline-queue drain: higher values drain first.
type QueuePriority int

// Priority levels per spec §3.
const (
	PriorityLow      QueuePriority = 1
	PriorityNormal   QueuePriority = 2
	PriorityHigh     QueuePriority = 3
	PriorityCritical QueuePriority = 4
)

// QueueItemType names what an offline queue item refers to.
type QueueItemType string

// Item types.
const (
	QueueItemOrder    QueueItemType = "order"
	QueueItemPrintJob QueueItemType = "print_job"
)

// QueueItemStatus captures the lifecycle state of an offline queue row.
type QueueItemStatus string

// Offline queue status values.
const (
	QueueQueued     QueueItemStatus = "queued"
	QueueProcessing QueueItemStatus = "processing"
	QueueCompleted  QueueItemStatus = "completed"
	QueueFailed     QueueItemStatus = "failed"
	QueueExpired    QueueItemStatus = "expired"
)

// DefaultMaxQueueRetries is the default maxRetries for a new queue item.
const DefaultMaxQueueRetries = 3

// DefaultQueueTTL is the default expiry window from creation.
const DefaultQueueTTL = 24 * time.Hour

// DefaultMaxQueueSize bounds the offline queue; enqueue rejects once the
// queue holds this many rows (spec §4.4).
const DefaultMaxQueueSize = 10000

// OfflineQueueItem is durable staging for work deferred because a
// dependency is offline. At most one live row exists per (ItemType, ItemID).
type OfflineQueueItem struct {
	ID           string
	ItemType     QueueItemType
	ItemID       string
	Priority     QueuePriority
	Status       QueueItemStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RetryCount   int
	MaxRetries   int
	ExpiresAt    time.Time
	ErrorMessage *string
	Metadata     map[string]string
}

// Expired reports whether the item's TTL has passed as of now.
func (it OfflineQueueItem) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && now.After(it.ExpiresAt)
}

// RecoveryUrgency summarizes how urgently the offline queue needs draining.
type RecoveryUrgency string

// Urgency levels, derived from the age of the oldest queued item and the
// number of items expiring within the next hour.
const (
	UrgencyNone     RecoveryUrgency = "none"
	UrgencyLow      RecoveryUrgency = "low"
	UrgencyMedium   RecoveryUrgency = "medium"
	UrgencyHigh     RecoveryUrgency = "high"
	UrgencyCritical RecoveryUrgency = "critical"
)

// QueueStatistics summarizes the offline queue for the operator surface.
type QueueStatistics struct {
	TotalItems      int
	ByStatus        map[QueueItemStatus]int
	ByPriority      map[QueuePriority]int
	OldestQueuedAge time.Duration
	ExpiringWithin1h int
	Urgency         RecoveryUrgency
}

// UrgencyFromAge derives urgency from the oldest-queued-item age, per the
// thresholds in spec §4.4 (0/2/6/12 hours).
func UrgencyFromAge(age time.Duration, expiringWithin1h int) RecoveryUrgency {
	switch {
	case age >= 12*time.Hour:
		return UrgencyCritical
	case age >= 6*time.Hour:
		return UrgencyHigh
	case age >= 2*time.Hour:
		return UrgencyMedium
	case age > 0:
		return UrgencyLow
	case expiringWithin1h > 0:
		return UrgencyLow
	default:
		return UrgencyNone
	}
}

// OfflineQueueRepository is the Store's port for the offline queue table.
type OfflineQueueRepository interface {
	Enqueue(ctx Context, item OfflineQueueItem) (string, error)
	// NextItems returns queued, unexpired items ordered by priority desc
	// then createdAt asc. It does not claim them.
	NextItems(ctx Context, itemType QueueItemType, limit int) ([]OfflineQueueItem, error)
	// ClaimBatch atomically flips queued->processing for ids still queued,
	// in a single transaction, and returns the ids actually transitioned.
	ClaimBatch(ctx Context, ids []string) ([]string, error)
	UpdateStatus(ctx Context, id string, status QueueItemStatus, errMsg *string) error
	IncrementRetry(ctx Context, id string) error
	Remove(ctx Context, id string) error
	// CleanupExpired deletes rows past ExpiresAt and returns the count removed.
	CleanupExpired(ctx Context) (int, error)
	Count(ctx Context) (int, error)
	Statistics(ctx Context) (QueueStatistics, error)
	// FindLive returns the live (non-terminal) row for (itemType,itemId), if any.
	FindLive(ctx Context, itemType QueueItemType, itemID string) (OfflineQueueItem, bool, error)
}
