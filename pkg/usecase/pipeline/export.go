package pipeline

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/utils/logging"
)

// ExportAudit mirrors deduplication log entries into the configured audit
// sink. Company and date filters are optional; an empty company exports the
// whole log.
func (u *UseCase) ExportAudit(ctx context.Context, company, date string) (int, error) {
	if u.audit == nil {
		return 0, goerr.New("no audit sink configured")
	}

	entries, err := u.log.List(ctx, company, date, 0)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list log entries for export")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := u.audit.Insert(ctx, entries); err != nil {
		return 0, goerr.Wrap(err, "failed to export audit rows")
	}

	logging.From(ctx).Info("exported dedup log entries", "count", len(entries))
	return len(entries), nil
}
