package pipeline

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/adapter"
	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/service/htmltext"
	"github.com/intelforge/reportpipe/pkg/utils/logging"
)

// ProcessReport runs one report through the full pipeline. A result is
// returned on every invocation, failed ones included. Invocations for the
// same (company, date) serialize on a keyed lock; everything else runs
// concurrently.
//
// The blob store is the durable source of truth. A failed index upsert after
// a successful blob write is surfaced as a partial success (Stored true,
// Indexed false), never rolled back: the index is derived and rebuildable.
func (u *UseCase) ProcessReport(ctx context.Context, content, company string, timestamp time.Time) (*model.PipelineResult, error) {
	logger := logging.From(ctx)
	candidate := model.NewReport(company, content, timestamp)

	if err := candidate.Validate(); err != nil {
		// Rejected before any write; the engine still records the attempt.
		if _, resolveErr := u.dedup.Resolve(ctx, candidate, nil, nil); resolveErr != nil {
			err = resolveErr
		}
		return failure(err), err
	}

	lockCtx, cancel := context.WithTimeout(ctx, u.cfg.LockTimeout)
	release, err := u.locks.Acquire(lockCtx, candidate.IndexID())
	cancel()
	if err != nil {
		return failure(err), err
	}
	defer release()

	incumbent, incumbentEntry, err := u.lookupIncumbent(ctx, candidate)
	if err != nil {
		return failure(err), err
	}

	// Embedding failure degrades, not aborts: storage and dedup outrank
	// indexing.
	vector, embedErr := u.embed(ctx, candidate.Content)
	if embedErr != nil {
		logger.Warn("proceeding without embedding",
			"company", candidate.Company, "date", candidate.DateKey(), "error", embedErr)
	}

	var similarity *float64
	if vector != nil && incumbentEntry != nil {
		similarity = u.incumbentSimilarity(ctx, candidate, vector)
	}

	resolution, err := u.dedup.Resolve(ctx, candidate, incumbent, similarity)
	if err != nil {
		return failure(err), err
	}

	result := &model.PipelineResult{
		Success:              true,
		Decision:             resolution.Decision,
		EmbeddingUnavailable: embedErr != nil,
	}
	if !resolution.Decision.Accepted() {
		return result, nil
	}

	// Fail closed on cancellation: aborting here leaves zero mutations.
	if err := ctx.Err(); err != nil {
		err = goerr.Wrap(err, "cancelled before storage write")
		u.dedup.Abort(ctx, resolution, err)
		return failure(err), err
	}

	writeCtx, cancel := context.WithTimeout(ctx, u.cfg.RequestTimeout)
	location, err := u.storage.Put(writeCtx, candidate.StoragePath(), []byte(candidate.Content))
	cancel()
	if err != nil {
		// Blob write failure is fatal for this report; the caller decides
		// whether to retry the invocation. The aborted decision is logged as
		// failed so the retry sees no phantom incumbent.
		err = goerr.Wrap(err, "failed to store report artifact")
		u.dedup.Abort(ctx, resolution, err)
		return failure(err), err
	}
	u.dedup.Commit(ctx, resolution)
	result.Stored = true
	result.StoragePath = candidate.StoragePath()
	logger.Info("stored report artifact", "location", location)

	u.applyIndex(ctx, candidate, vector, resolution.Decision, incumbentEntry != nil, result)
	return result, nil
}

// lookupIncumbent reconstructs the canonical report for the candidate's day
// from the dedup log. The blob content is not needed for resolution; the log
// entry carries the hash and timestamp.
func (u *UseCase) lookupIncumbent(ctx context.Context, candidate *model.Report) (*model.Report, *model.LogEntry, error) {
	entry, err := u.log.Latest(ctx, candidate.Company, candidate.DateKey())
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to look up incumbent")
	}
	if entry == nil {
		return nil, nil, nil
	}

	incumbent := &model.Report{
		Company:     candidate.Company,
		Timestamp:   entry.Timestamp,
		ContentHash: entry.ContentHash,
	}
	return incumbent, entry, nil
}

func (u *UseCase) embed(ctx context.Context, content string) ([]float32, error) {
	text, err := htmltext.Extract(content)
	if err != nil || text == "" {
		text = content
	}

	embedCtx, cancel := context.WithTimeout(ctx, u.cfg.RequestTimeout)
	defer cancel()
	return u.embedder.Embed(embedCtx, text)
}

// incumbentSimilarity fetches the incumbent's vector by its entry ID and
// returns its cosine similarity to the candidate vector. A missing or failed
// lookup yields nil; similarity is advisory.
func (u *UseCase) incumbentSimilarity(ctx context.Context, candidate *model.Report, vector []float32) *float64 {
	incumbentVec, err := u.index.Fetch(ctx, candidate.IndexID())
	if err != nil {
		logging.From(ctx).Warn("incumbent similarity lookup failed", "error", err)
		return nil
	}
	if incumbentVec == nil {
		return nil
	}

	score := adapter.Cosine(vector, incumbentVec)
	return &score
}

// applyIndex keeps the index consistent with the freshly written artifact.
// With a vector, the upsert replaces any incumbent entry since both share
// the per-day ID. Without one, a replace must still drop the stale entry so
// the index never points at a superseded path.
func (u *UseCase) applyIndex(ctx context.Context, candidate *model.Report, vector []float32, decision model.Decision, hadIncumbent bool, result *model.PipelineResult) {
	logger := logging.From(ctx)
	id := candidate.IndexID()

	if vector == nil {
		if decision == model.DecisionReplacedExisting && hadIncumbent {
			if err := u.index.Delete(ctx, id); err != nil {
				logger.Warn("failed to drop superseded index entry", "id", id, "error", err)
			}
		}
		return
	}

	err := u.index.Upsert(ctx, id, vector, map[string]string{
		"company":      model.NormalizeCompany(candidate.Company),
		"date":         candidate.DateKey(),
		"timestamp":    candidate.Timestamp.Format(time.RFC3339),
		"storage_path": candidate.StoragePath(),
		"content_hash": candidate.ContentHash,
	})
	if err != nil {
		// Partial success: artifact stored, index rebuildable later.
		logger.Error("index upsert failed after blob write", "id", id, "error", err)
		result.Error = err.Error()
		return
	}

	result.Indexed = true
	result.VectorID = id
}

func failure(err error) *model.PipelineResult {
	return &model.PipelineResult{
		Success: false,
		Error:   err.Error(),
	}
}
