package repository

import (
	"context"
	"sync"
	"time"

	"github.com/intelforge/reportpipe/pkg/model"
)

// memoryLog implements DedupLog in process memory. Used by tests and dry
// runs; entries do not survive the process.
type memoryLog struct {
	mu      sync.Mutex
	entries []*model.LogEntry
}

// NewMemory creates an in-memory deduplication log.
func NewMemory() DedupLog {
	return &memoryLog{}
}

func (r *memoryLog) Append(ctx context.Context, entry *model.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = model.NewLogEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Company = model.NormalizeCompany(entry.Company)

	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *memoryLog) Latest(ctx context.Context, company, date string) (*model.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	company = model.NormalizeCompany(company)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.Company == company && e.Date == date &&
			e.Status == model.LogStatusSucceeded && e.Decision.Accepted() {
			clone := *e
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memoryLog) List(ctx context.Context, company, date string, limit int) ([]*model.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	company = model.NormalizeCompany(company)
	var entries []*model.LogEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if company != "" && e.Company != company {
			continue
		}
		if date != "" && e.Date != date {
			continue
		}
		clone := *e
		entries = append(entries, &clone)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}
