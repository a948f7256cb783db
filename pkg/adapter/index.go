package adapter

import (
	"context"
	"math"
)

// VectorIndex holds at most one active entry per canonical report, keyed by
// the report's index ID. Implementations must bound every call by the
// caller's context; a timed-out query is an error, never a silently
// truncated result.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	// Fetch returns the stored vector for an entry ID, or nil when the
	// entry does not exist.
	Fetch(ctx context.Context, id string) ([]float32, error)
	// Query returns up to k matches ordered by descending similarity score,
	// ties broken by the most recent timestamp metadata.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// Match is one nearest-neighbor query result.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
