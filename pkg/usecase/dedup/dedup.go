// Package dedup decides whether a newly generated report is a duplicate of
// the canonical report already stored for the same company and day, and
// records every decision in the append-only deduplication log.
package dedup

import (
	"github.com/intelforge/reportpipe/pkg/adapter"
	"github.com/intelforge/reportpipe/pkg/repository"
)

// UseCase provides deduplication operations
type UseCase struct {
	log       repository.DedupLog
	storage   adapter.Storage
	threshold float64
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage attaches a blob store, required for Sweep.
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithThreshold overrides the near-duplicate similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(uc *UseCase) {
		uc.threshold = threshold
	}
}

// New creates a deduplication UseCase instance
func New(log repository.DedupLog, opts ...Option) *UseCase {
	uc := &UseCase{
		log:       log,
		threshold: 0.95,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
