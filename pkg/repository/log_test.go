package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/repository"
)

func newBoltLog(t *testing.T) repository.DedupLog {
	t.Helper()
	log, err := repository.NewBolt(filepath.Join(t.TempDir(), "dedup.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		if closer, ok := log.(interface{ Close() error }); ok {
			closer.Close()
		}
	})
	return log
}

func testEntry(company, date, hash string, decision model.Decision, createdAt time.Time) *model.LogEntry {
	return &model.LogEntry{
		Company:     company,
		Date:        date,
		Timestamp:   createdAt,
		ContentHash: hash,
		Decision:    decision,
		Status:      model.LogStatusSucceeded,
		StoragePath: "gs://bucket/" + company + "/" + date + "/report.html",
		CreatedAt:   createdAt,
	}
}

func TestDedupLogBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) repository.DedupLog{
		"memory": func(t *testing.T) repository.DedupLog { return repository.NewMemory() },
		"bolt":   newBoltLog,
	}

	for name, newLog := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("latest returns nil when empty", func(t *testing.T) {
				log := newLog(t)
				entry, err := log.Latest(context.Background(), "acme", "2024-01-15")
				gt.NoError(t, err)
				gt.V(t, entry == nil).Equal(true)
			})

			t.Run("latest follows append order", func(t *testing.T) {
				log := newLog(t)
				ctx := context.Background()
				base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

				gt.NoError(t, log.Append(ctx,
					testEntry("acme", "2024-01-15", "hash1", model.DecisionKeptAsNew, base)))
				gt.NoError(t, log.Append(ctx,
					testEntry("acme", "2024-01-15", "hash2", model.DecisionReplacedExisting, base.Add(5*time.Hour))))

				entry, err := log.Latest(ctx, "acme", "2024-01-15")
				gt.NoError(t, err)
				gt.NotNil(t, entry)
				gt.V(t, entry.ContentHash).Equal("hash2")
				gt.V(t, entry.Decision).Equal(model.DecisionReplacedExisting)
			})

			t.Run("latest skips discarded and failed entries", func(t *testing.T) {
				log := newLog(t)
				ctx := context.Background()
				base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

				gt.NoError(t, log.Append(ctx,
					testEntry("acme", "2024-01-15", "hash1", model.DecisionKeptAsNew, base)))
				gt.NoError(t, log.Append(ctx,
					testEntry("acme", "2024-01-15", "hash1", model.DecisionDiscardedAsDuplicate, base.Add(time.Minute))))

				failed := testEntry("acme", "2024-01-15", "hash3", model.DecisionReplacedExisting, base.Add(2*time.Minute))
				failed.Status = model.LogStatusFailed
				gt.NoError(t, log.Append(ctx, failed))

				entry, err := log.Latest(ctx, "acme", "2024-01-15")
				gt.NoError(t, err)
				gt.NotNil(t, entry)
				gt.V(t, entry.ContentHash).Equal("hash1")
			})

			t.Run("latest scopes to company and date", func(t *testing.T) {
				log := newLog(t)
				ctx := context.Background()
				base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

				gt.NoError(t, log.Append(ctx,
					testEntry("acme", "2024-01-15", "hash1", model.DecisionKeptAsNew, base)))
				gt.NoError(t, log.Append(ctx,
					testEntry("globex", "2024-01-15", "hash2", model.DecisionKeptAsNew, base)))

				entry, err := log.Latest(ctx, "acme", "2024-01-16")
				gt.NoError(t, err)
				gt.V(t, entry == nil).Equal(true)

				entry, err = log.Latest(ctx, "globex", "2024-01-15")
				gt.NoError(t, err)
				gt.NotNil(t, entry)
				gt.V(t, entry.ContentHash).Equal("hash2")
			})

			t.Run("latest normalizes company names", func(t *testing.T) {
				log := newLog(t)
				ctx := context.Background()
				base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

				gt.NoError(t, log.Append(ctx,
					testEntry("Acme Corp", "2024-01-15", "hash1", model.DecisionKeptAsNew, base)))

				entry, err := log.Latest(ctx, "acme corp", "2024-01-15")
				gt.NoError(t, err)
				gt.NotNil(t, entry)
				gt.V(t, entry.Company).Equal("acme_corp")
			})

			t.Run("list returns newest first with limit", func(t *testing.T) {
				log := newLog(t)
				ctx := context.Background()
				base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

				for i, hash := range []string{"hash1", "hash2", "hash3"} {
					gt.NoError(t, log.Append(ctx,
						testEntry("acme", "2024-01-15", hash, model.DecisionKeptAsNew, base.Add(time.Duration(i)*time.Minute))))
				}

				entries, err := log.List(ctx, "acme", "2024-01-15", 2)
				gt.NoError(t, err)
				gt.V(t, len(entries)).Equal(2)
				gt.V(t, entries[0].ContentHash).Equal("hash3")
				gt.V(t, entries[1].ContentHash).Equal("hash2")
			})

			t.Run("append assigns id and created timestamp", func(t *testing.T) {
				log := newLog(t)
				ctx := context.Background()

				entry := testEntry("acme", "2024-01-15", "hash1", model.DecisionKeptAsNew, time.Time{})
				entry.CreatedAt = time.Time{}
				gt.NoError(t, log.Append(ctx, entry))

				gt.V(t, entry.ID != "").Equal(true)
				gt.V(t, entry.CreatedAt.IsZero()).Equal(false)
			})
		})
	}
}

func TestBoltLogPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	log, err := repository.NewBolt(path)
	gt.NoError(t, err)
	gt.NoError(t, log.Append(ctx,
		testEntry("acme", "2024-01-15", "hash1", model.DecisionKeptAsNew, base)))
	gt.NoError(t, log.(interface{ Close() error }).Close())

	reopened, err := repository.NewBolt(path)
	gt.NoError(t, err)
	defer reopened.(interface{ Close() error }).Close()

	entry, err := reopened.Latest(ctx, "acme", "2024-01-15")
	gt.NoError(t, err)
	gt.NotNil(t, entry)
	gt.V(t, entry.ContentHash).Equal("hash1")
}
