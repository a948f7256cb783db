package repository

import (
	"context"

	"github.com/intelforge/reportpipe/pkg/model"
)

// DedupLog is the append-only stream of deduplication decisions. Entries are
// never mutated or deleted, so concurrent appends are safe without the
// pipeline's per-(company, date) lock.
type DedupLog interface {
	// Append records one decision. Every pipeline invocation lands exactly
	// one entry, success or failure; accepted decisions are appended only
	// after their artifact write committed.
	Append(ctx context.Context, entry *model.LogEntry) error

	// Latest returns the most recent accepted (kept_as_new or
	// replaced_existing) entry for the company and day, or nil when the day
	// has no canonical report yet.
	Latest(ctx context.Context, company, date string) (*model.LogEntry, error)

	// List returns entries for a company, newest first, optionally filtered
	// by date. limit <= 0 means no limit.
	List(ctx context.Context, company, date string, limit int) ([]*model.LogEntry, error)
}
