package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.etcd.io/bbolt"

	"github.com/intelforge/reportpipe/pkg/model"
)

var bucketLog = []byte("dedup_log")

// boltLog implements DedupLog on a local bbolt file for offline and
// single-host runs. Keys are ordered as company/date/nanos/id so a prefix
// cursor scan yields a day's entries in append order.
type boltLog struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) a bbolt-backed deduplication log.
func NewBolt(path string) (DedupLog, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open bolt db", goerr.V("path", path))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to create log bucket")
	}

	return &boltLog{db: db}, nil
}

func logKey(entry *model.LogEntry) []byte {
	return []byte(fmt.Sprintf("%s/%s/%020d/%s",
		model.NormalizeCompany(entry.Company), entry.Date, entry.CreatedAt.UnixNano(), entry.ID))
}

func (r *boltLog) Append(ctx context.Context, entry *model.LogEntry) error {
	if entry.ID == "" {
		entry.ID = model.NewLogEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Company = model.NormalizeCompany(entry.Company)

	data, err := json.Marshal(entry)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal log entry")
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLog).Put(logKey(entry), data)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to append log entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (r *boltLog) Latest(ctx context.Context, company, date string) (*model.LogEntry, error) {
	prefix := []byte(model.NormalizeCompany(company) + "/" + date + "/")

	var latest *model.LogEntry
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var entry model.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return goerr.Wrap(err, "failed to decode log entry", goerr.V("key", string(k)))
			}
			if entry.Status == model.LogStatusSucceeded && entry.Decision.Accepted() {
				latest = &entry
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (r *boltLog) List(ctx context.Context, company, date string, limit int) ([]*model.LogEntry, error) {
	prefix := ""
	if company != "" {
		prefix = model.NormalizeCompany(company) + "/"
		if date != "" {
			prefix += date + "/"
		}
	}

	var entries []*model.LogEntry
	err := r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var entry model.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return goerr.Wrap(err, "failed to decode log entry", goerr.V("key", string(k)))
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// newest first, matching the Firestore backend
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close closes the underlying bolt database.
func (r *boltLog) Close() error {
	return r.db.Close()
}
