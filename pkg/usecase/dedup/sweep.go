package dedup

import (
	"context"
	"path"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/utils/logging"
)

// SweepResult summarizes one maintenance sweep over stored artifacts.
type SweepResult struct {
	Company       string
	ArtifactsSeen int
	Removed       []string
	KeptPerDay    map[string]string
}

// SweepAll runs Sweep for every company present in the blob store, derived
// from the top-level path prefixes. A failing company stops the run; results
// for companies already swept are returned alongside the error.
func (u *UseCase) SweepAll(ctx context.Context, dateFilter string) ([]*SweepResult, error) {
	if u.storage == nil {
		return nil, goerr.New("sweep requires a blob store")
	}

	paths, err := u.storage.List(ctx, "")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list artifacts")
	}

	seen := make(map[string]bool)
	var companies []string
	for _, p := range paths {
		company, _, ok := strings.Cut(p, "/")
		if !ok || company == "" || seen[company] {
			continue
		}
		seen[company] = true
		companies = append(companies, company)
	}

	var results []*SweepResult
	for _, company := range companies {
		result, err := u.Sweep(ctx, company, dateFilter)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, goerr.Wrap(err, "sweep failed", goerr.V("company", company))
		}
	}
	return results, nil
}

// Sweep removes superseded blob artifacts for a company, keeping exactly the
// canonical artifact per day. The canonical path comes from the dedup log;
// days without a log record keep their latest artifact by path order, since
// paths embed the timestamp. An optional date filter (YYYY-MM-DD) limits the
// sweep to one day.
func (u *UseCase) Sweep(ctx context.Context, company, dateFilter string) (*SweepResult, error) {
	if u.storage == nil {
		return nil, goerr.New("sweep requires a blob store")
	}

	logger := logging.From(ctx)
	normalized := model.NormalizeCompany(company)
	prefix := normalized + "/"
	if dateFilter != "" {
		prefix += dateFilter + "/"
	}

	paths, err := u.storage.List(ctx, prefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list artifacts", goerr.V("prefix", prefix))
	}

	byDay := make(map[string][]string)
	for _, p := range paths {
		if !strings.HasSuffix(p, ".html") {
			continue
		}
		byDay[path.Base(path.Dir(p))] = append(byDay[path.Base(path.Dir(p))], p)
	}

	result := &SweepResult{
		Company:    normalized,
		KeptPerDay: make(map[string]string),
	}

	for day, dayPaths := range byDay {
		result.ArtifactsSeen += len(dayPaths)

		canonical := dayPaths[len(dayPaths)-1] // paths sort by timestamp
		if entry, err := u.log.Latest(ctx, company, day); err != nil {
			return result, goerr.Wrap(err, "failed to look up canonical artifact", goerr.V("date", day))
		} else if entry != nil && entry.StoragePath != "" {
			canonical = entry.StoragePath
		}
		result.KeptPerDay[day] = canonical

		for _, p := range dayPaths {
			if p == canonical {
				continue
			}
			if err := u.storage.Delete(ctx, p); err != nil {
				return result, goerr.Wrap(err, "failed to delete superseded artifact", goerr.V("path", p))
			}
			result.Removed = append(result.Removed, p)
		}

		if n := len(dayPaths) - 1; n > 0 {
			logger.Info("swept superseded artifacts",
				"company", normalized, "date", day, "removed", n, "kept", canonical)
		}
	}

	return result, nil
}
