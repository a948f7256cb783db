package model

import (
	"time"

	"github.com/google/uuid"
)

type LogEntryID string

// NewLogEntryID generates a new unique LogEntryID
func NewLogEntryID() LogEntryID {
	return LogEntryID(uuid.New().String())
}

// LogStatus records whether the resolution that produced a log entry
// completed successfully.
type LogStatus string

const (
	LogStatusSucceeded LogStatus = "succeeded"
	LogStatusFailed    LogStatus = "failed"
)

// LogEntry is one append-only deduplication decision record. Entries are
// never deleted; they serve audit, incumbent lookup and idempotent replay.
type LogEntry struct {
	ID          LogEntryID `firestore:"id"`
	Company     string     `firestore:"company"`
	Date        string     `firestore:"date"`
	Timestamp   time.Time  `firestore:"timestamp"`
	ContentHash string     `firestore:"contentHash"`
	Decision    Decision   `firestore:"decision"`
	Status      LogStatus  `firestore:"status"`
	StoragePath string     `firestore:"storagePath"`
	// Similarity is the cosine similarity against the incumbent, when an
	// embedding was available at decision time.
	Similarity *float64  `firestore:"similarity"`
	Error      string    `firestore:"error"`
	CreatedAt  time.Time `firestore:"createdAt"`
}
