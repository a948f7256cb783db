package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/intelforge/reportpipe/pkg/model"
)

const logCollection = "dedup_log"

// firestoreLog implements DedupLog using Firestore
type firestoreLog struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed deduplication log.
func NewFirestore(ctx context.Context, projectID, databaseID string) (DedupLog, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	return &firestoreLog{client: client}, nil
}

func (r *firestoreLog) Append(ctx context.Context, entry *model.LogEntry) error {
	if entry.ID == "" {
		entry.ID = model.NewLogEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Company = model.NormalizeCompany(entry.Company)

	// Create, not Set: the log is append-only and an ID collision is a bug.
	_, err := r.client.Collection(logCollection).Doc(string(entry.ID)).Create(ctx, entry)
	if err != nil {
		return goerr.Wrap(err, "failed to append log entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (r *firestoreLog) Latest(ctx context.Context, company, date string) (*model.LogEntry, error) {
	q := r.client.Collection(logCollection).
		Where("company", "==", model.NormalizeCompany(company)).
		Where("date", "==", date).
		Where("status", "==", string(model.LogStatusSucceeded)).
		Where("decision", "in", []string{
			string(model.DecisionKeptAsNew),
			string(model.DecisionReplacedExisting),
		}).
		OrderBy("createdAt", firestore.Desc).
		Limit(1)

	it := q.Documents(ctx)
	defer it.Stop()

	doc, err := it.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query latest log entry",
			goerr.V("company", company), goerr.V("date", date))
	}

	var entry model.LogEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode log entry")
	}
	return &entry, nil
}

func (r *firestoreLog) List(ctx context.Context, company, date string, limit int) ([]*model.LogEntry, error) {
	q := r.client.Collection(logCollection).Query
	if company != "" {
		q = q.Where("company", "==", model.NormalizeCompany(company))
	}
	if date != "" {
		q = q.Where("date", "==", date)
	}
	q = q.OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	it := q.Documents(ctx)
	defer it.Stop()

	var entries []*model.LogEntry
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list log entries")
		}

		var entry model.LogEntry
		if err := doc.DataTo(&entry); err != nil {
			return nil, goerr.Wrap(err, "failed to decode log entry")
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
