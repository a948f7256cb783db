// Package pipeline drives a generated report end to end: blob storage,
// embedding, deduplication and vector indexing, in that dependency order.
package pipeline

import (
	"github.com/intelforge/reportpipe/pkg/adapter"
	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/repository"
	"github.com/intelforge/reportpipe/pkg/usecase/dedup"
)

// UseCase provides pipeline operations
type UseCase struct {
	storage  adapter.Storage
	embedder adapter.Embedder
	index    adapter.VectorIndex
	log      repository.DedupLog
	dedup    *dedup.UseCase
	audit    repository.AuditSink
	cfg      model.Config
	locks    *keyedLock
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithConfig overrides the default pipeline configuration.
func WithConfig(cfg model.Config) Option {
	return func(uc *UseCase) {
		uc.cfg = cfg
	}
}

// WithAuditSink attaches an optional mirror sink for log exports.
func WithAuditSink(sink repository.AuditSink) Option {
	return func(uc *UseCase) {
		uc.audit = sink
	}
}

// New creates a pipeline UseCase instance
func New(
	storage adapter.Storage,
	embedder adapter.Embedder,
	index adapter.VectorIndex,
	log repository.DedupLog,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		storage:  storage,
		embedder: embedder,
		index:    index,
		log:      log,
		cfg:      model.DefaultConfig(),
		locks:    newKeyedLock(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.dedup = dedup.New(log,
		dedup.WithStorage(storage),
		dedup.WithThreshold(uc.cfg.SimilarityThreshold),
	)

	return uc
}

// Dedup exposes the deduplication engine for maintenance commands.
func (u *UseCase) Dedup() *dedup.UseCase {
	return u.dedup
}
