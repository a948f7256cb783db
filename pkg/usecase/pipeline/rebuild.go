package pipeline

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/utils/logging"
)

// RebuildResult summarizes an index reconciliation run.
type RebuildResult struct {
	Company    string
	Canonical  int
	Reindexed  int
	SkippedErr []string
}

// RebuildIndex reconciles the vector index from canonical blob artifacts:
// every canonical report for the company is re-embedded and upserted. This
// is the repair pass for partial failures that left Indexed=false.
func (u *UseCase) RebuildIndex(ctx context.Context, company string) (*RebuildResult, error) {
	logger := logging.From(ctx)

	entries, err := u.log.List(ctx, company, "", 0)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list log entries", goerr.V("company", company))
	}

	// Entries come newest first; the first accepted entry per day is the
	// canonical one.
	canonical := make(map[string]*model.LogEntry)
	for _, e := range entries {
		if e.Status != model.LogStatusSucceeded || !e.Decision.Accepted() {
			continue
		}
		if _, seen := canonical[e.Date]; !seen {
			canonical[e.Date] = e
		}
	}

	result := &RebuildResult{
		Company:   model.NormalizeCompany(company),
		Canonical: len(canonical),
	}

	for date, entry := range canonical {
		if err := u.reindexEntry(ctx, entry); err != nil {
			logger.Warn("failed to reindex canonical report",
				"company", company, "date", date, "error", err)
			result.SkippedErr = append(result.SkippedErr, date+": "+err.Error())
			continue
		}
		result.Reindexed++
	}

	logger.Info("index rebuild finished",
		"company", company, "canonical", result.Canonical, "reindexed", result.Reindexed)
	return result, nil
}

func (u *UseCase) reindexEntry(ctx context.Context, entry *model.LogEntry) error {
	getCtx, cancel := context.WithTimeout(ctx, u.cfg.RequestTimeout)
	content, err := u.storage.Get(getCtx, entry.StoragePath)
	cancel()
	if err != nil {
		return goerr.Wrap(err, "failed to load artifact", goerr.V("path", entry.StoragePath))
	}

	vector, err := u.embed(ctx, string(content))
	if err != nil {
		return goerr.Wrap(err, "failed to embed artifact")
	}

	id := model.IndexID(entry.Company, entry.Date)
	err = u.index.Upsert(ctx, id, vector, map[string]string{
		"company":      entry.Company,
		"date":         entry.Date,
		"timestamp":    entry.Timestamp.Format(time.RFC3339),
		"storage_path": entry.StoragePath,
		"content_hash": entry.ContentHash,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert index entry", goerr.V("id", id))
	}
	return nil
}
