package dedup

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/utils/logging"
)

// Resolution is the outcome of resolving a candidate against the incumbent.
type Resolution struct {
	Decision model.Decision

	// Similarity is the cosine similarity against the incumbent, when a
	// vector was available before the decision.
	Similarity *float64

	// NearDuplicate marks a similarity at or above the configured threshold
	// despite differing content hashes.
	NearDuplicate bool

	// pending is the prepared log entry for an accepted decision. It is
	// appended by Commit or Abort, not by Resolve: the log must never point
	// at an artifact whose write did not complete.
	pending *model.LogEntry
}

// Resolve applies the deduplication policy, in order: exact content-hash
// match discards the candidate; a non-exact incumbent is resolved by
// latest-timestamp-wins; no incumbent keeps the candidate as new. The exact
// hash check always precedes similarity.
//
// Terminal outcomes (discard, failure) append their log entry before
// returning. Accepted outcomes defer the append to Commit or Abort, so that
// the recorded status reflects whether the artifact write actually happened.
func (u *UseCase) Resolve(ctx context.Context, candidate, incumbent *model.Report, similarity *float64) (*Resolution, error) {
	logger := logging.From(ctx)

	if err := candidate.Validate(); err != nil {
		u.append(ctx, u.buildEntry(candidate, "", model.LogStatusFailed, nil, err))
		return nil, err
	}

	// Replay guard: if the log already accepted this exact content for this
	// day, re-running the resolution must not create a second canonical
	// artifact even when the incumbent lookup came back empty.
	if incumbent == nil {
		prior, err := u.log.Latest(ctx, candidate.Company, candidate.DateKey())
		if err != nil {
			u.append(ctx, u.buildEntry(candidate, "", model.LogStatusFailed, nil, err))
			return nil, goerr.Wrap(err, "failed to check log for replay")
		}
		if prior != nil && prior.ContentHash == candidate.ContentHash {
			u.append(ctx, u.buildEntry(candidate, model.DecisionDiscardedAsDuplicate, model.LogStatusSucceeded, nil, nil))
			logger.Info("discarded replayed report",
				"company", candidate.Company, "date", candidate.DateKey())
			return &Resolution{Decision: model.DecisionDiscardedAsDuplicate}, nil
		}
	}

	if incumbent == nil {
		logger.Info("kept report as new",
			"company", candidate.Company, "date", candidate.DateKey())
		return &Resolution{
			Decision: model.DecisionKeptAsNew,
			pending:  u.buildEntry(candidate, model.DecisionKeptAsNew, model.LogStatusSucceeded, nil, nil),
		}, nil
	}

	if candidate.ContentHash == incumbent.ContentHash {
		u.append(ctx, u.buildEntry(candidate, model.DecisionDiscardedAsDuplicate, model.LogStatusSucceeded, similarity, nil))
		logger.Info("discarded exact duplicate",
			"company", candidate.Company, "date", candidate.DateKey(),
			"hash", candidate.ContentHash)
		return &Resolution{Decision: model.DecisionDiscardedAsDuplicate, Similarity: similarity}, nil
	}

	res := &Resolution{Similarity: similarity}
	if similarity != nil && *similarity >= u.threshold {
		res.NearDuplicate = true
	}

	// Latest-timestamp-wins against a non-exact incumbent. Near-duplicates
	// resolve by the same rule; the similarity score is kept for audit.
	if candidate.Timestamp.After(incumbent.Timestamp) {
		res.Decision = model.DecisionReplacedExisting
		res.pending = u.buildEntry(candidate, res.Decision, model.LogStatusSucceeded, similarity, nil)
	} else {
		res.Decision = model.DecisionDiscardedAsDuplicate
		u.append(ctx, u.buildEntry(candidate, res.Decision, model.LogStatusSucceeded, similarity, nil))
	}

	logger.Info("resolved against incumbent",
		"company", candidate.Company, "date", candidate.DateKey(),
		"decision", res.Decision, "nearDuplicate", res.NearDuplicate)
	return res, nil
}

// Commit records an accepted resolution once the artifact write succeeded.
// Only after Commit does the entry become visible to Latest as the canonical
// pointer for the day.
func (u *UseCase) Commit(ctx context.Context, res *Resolution) {
	if res == nil || res.pending == nil {
		return
	}
	u.append(ctx, res.pending)
	res.pending = nil
}

// Abort records an accepted resolution whose artifact write failed. The
// entry is demoted to failed with no storage path, so a retry of the same
// report sees no incumbent and can store it.
func (u *UseCase) Abort(ctx context.Context, res *Resolution, cause error) {
	if res == nil || res.pending == nil {
		return
	}

	entry := res.pending
	res.pending = nil
	entry.Status = model.LogStatusFailed
	entry.StoragePath = ""
	if cause != nil {
		entry.Error = cause.Error()
	}

	// The invocation may be aborting on a cancelled context; the audit
	// record still has to land.
	u.append(context.WithoutCancel(ctx), entry)
}

func (u *UseCase) buildEntry(candidate *model.Report, decision model.Decision, status model.LogStatus, similarity *float64, cause error) *model.LogEntry {
	entry := &model.LogEntry{
		ID:          model.NewLogEntryID(),
		Company:     candidate.Company,
		Date:        candidate.DateKey(),
		Timestamp:   candidate.Timestamp,
		ContentHash: candidate.ContentHash,
		Decision:    decision,
		Status:      status,
		Similarity:  similarity,
		CreatedAt:   time.Now(),
	}
	if decision.Accepted() && status == model.LogStatusSucceeded {
		entry.StoragePath = candidate.StoragePath()
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return entry
}

// The log append itself must not mask the resolution outcome.
func (u *UseCase) append(ctx context.Context, entry *model.LogEntry) {
	if err := u.log.Append(ctx, entry); err != nil {
		logging.From(ctx).Error("failed to append dedup log entry",
			"error", err, "company", entry.Company, "date", entry.Date)
	}
}
