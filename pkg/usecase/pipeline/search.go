package pipeline

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/adapter"
)

// SearchSimilar embeds a query text and returns the nearest canonical
// reports, ordered by descending similarity.
func (u *UseCase) SearchSimilar(ctx context.Context, query string, limit int) ([]adapter.Match, error) {
	if limit <= 0 {
		limit = 10
	}

	vector, err := u.embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	queryCtx, cancel := context.WithTimeout(ctx, u.cfg.RequestTimeout)
	defer cancel()

	matches, err := u.index.Query(queryCtx, vector, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query index")
	}
	return matches, nil
}
