package repository

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/model"
)

// AuditSink receives copies of deduplication log entries for offline
// analytics. It is a mirror, not a source of truth; the DedupLog remains
// authoritative.
type AuditSink interface {
	Insert(ctx context.Context, entries []*model.LogEntry) error
}

// bigquerySink streams log entries into a BigQuery table.
type bigquerySink struct {
	inserter *bigquery.Inserter
}

// NewBigQuerySink creates an AuditSink writing to dataset.table.
func NewBigQuerySink(ctx context.Context, projectID, datasetID, tableID string) (AuditSink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &bigquerySink{
		inserter: client.Dataset(datasetID).Table(tableID).Inserter(),
	}, nil
}

// auditRow flattens a LogEntry for the streaming insert API.
type auditRow struct {
	ID          string   `bigquery:"id"`
	Company     string   `bigquery:"company"`
	Date        string   `bigquery:"date"`
	Timestamp   string   `bigquery:"timestamp"`
	ContentHash string   `bigquery:"content_hash"`
	Decision    string   `bigquery:"decision"`
	Status      string   `bigquery:"status"`
	StoragePath string   `bigquery:"storage_path"`
	Similarity  *float64 `bigquery:"similarity"`
	Error       string   `bigquery:"error"`
	CreatedAt   string   `bigquery:"created_at"`
}

func (s *bigquerySink) Insert(ctx context.Context, entries []*model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]*auditRow, len(entries))
	for i, e := range entries {
		rows[i] = &auditRow{
			ID:          string(e.ID),
			Company:     e.Company,
			Date:        e.Date,
			Timestamp:   e.Timestamp.Format(time.RFC3339),
			ContentHash: e.ContentHash,
			Decision:    string(e.Decision),
			Status:      string(e.Status),
			StoragePath: e.StoragePath,
			Similarity:  e.Similarity,
			Error:       e.Error,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		}
	}

	if err := s.inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert audit rows", goerr.V("count", len(rows)))
	}
	return nil
}
