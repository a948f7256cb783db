package dedup_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/repository"
	"github.com/intelforge/reportpipe/pkg/usecase/dedup"
)

type mockStorage struct {
	putFunc    func(ctx context.Context, path string, content []byte) (string, error)
	getFunc    func(ctx context.Context, path string) ([]byte, error)
	listFunc   func(ctx context.Context, prefix string) ([]string, error)
	deleteFunc func(ctx context.Context, path string) error
}

func (m *mockStorage) Put(ctx context.Context, path string, content []byte) (string, error) {
	return m.putFunc(ctx, path, content)
}

func (m *mockStorage) Get(ctx context.Context, path string) ([]byte, error) {
	return m.getFunc(ctx, path)
}

func (m *mockStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return m.listFunc(ctx, prefix)
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	return m.deleteFunc(ctx, path)
}

func TestSweepKeepsCanonicalPerDay(t *testing.T) {
	ctx := context.Background()
	log := repository.NewMemory()

	// the log says the 09:00 artifact stayed canonical for the day
	gt.NoError(t, log.Append(ctx, &model.LogEntry{
		Company:     "acme",
		Date:        "2024-01-15",
		Timestamp:   time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		ContentHash: "hash1",
		Decision:    model.DecisionKeptAsNew,
		Status:      model.LogStatusSucceeded,
		StoragePath: "acme/2024-01-15/09-00-00.html",
	}))

	var deleted []string
	storage := &mockStorage{
		listFunc: func(ctx context.Context, prefix string) ([]string, error) {
			gt.V(t, prefix).Equal("acme/")
			return []string{
				"acme/2024-01-15/09-00-00.html",
				"acme/2024-01-15/09-10-00.html",
				"acme/2024-01-16/10-00-00.html",
			}, nil
		},
		deleteFunc: func(ctx context.Context, path string) error {
			deleted = append(deleted, path)
			return nil
		},
	}

	uc := dedup.New(log, dedup.WithStorage(storage))
	result, err := uc.Sweep(ctx, "Acme", "")
	gt.NoError(t, err)

	gt.V(t, result.ArtifactsSeen).Equal(3)
	gt.V(t, result.KeptPerDay["2024-01-15"]).Equal("acme/2024-01-15/09-00-00.html")
	gt.V(t, result.KeptPerDay["2024-01-16"]).Equal("acme/2024-01-16/10-00-00.html")
	gt.A(t, deleted).Length(1)
	gt.V(t, deleted[0]).Equal("acme/2024-01-15/09-10-00.html")
}

func TestSweepFallsBackToLatestPath(t *testing.T) {
	// no log record for the day: keep the lexically last artifact, since
	// paths embed the timestamp
	storage := &mockStorage{
		listFunc: func(ctx context.Context, prefix string) ([]string, error) {
			return []string{
				"acme/2024-01-15/09-00-00.html",
				"acme/2024-01-15/14-00-00.html",
			}, nil
		},
		deleteFunc: func(ctx context.Context, path string) error {
			gt.V(t, path).Equal("acme/2024-01-15/09-00-00.html")
			return nil
		},
	}

	uc := dedup.New(repository.NewMemory(), dedup.WithStorage(storage))
	result, err := uc.Sweep(context.Background(), "acme", "2024-01-15")
	gt.NoError(t, err)
	gt.V(t, result.KeptPerDay["2024-01-15"]).Equal("acme/2024-01-15/14-00-00.html")
	gt.A(t, result.Removed).Length(1)
}

func TestSweepAll(t *testing.T) {
	paths := []string{
		"acme/2024-01-15/09-00-00.html",
		"acme/2024-01-15/14-00-00.html",
		"globex/2024-01-15/10-00-00.html",
	}

	var deleted []string
	storage := &mockStorage{
		listFunc: func(ctx context.Context, prefix string) ([]string, error) {
			var out []string
			for _, p := range paths {
				if strings.HasPrefix(p, prefix) {
					out = append(out, p)
				}
			}
			return out, nil
		},
		deleteFunc: func(ctx context.Context, path string) error {
			deleted = append(deleted, path)
			return nil
		},
	}

	uc := dedup.New(repository.NewMemory(), dedup.WithStorage(storage))
	results, err := uc.SweepAll(context.Background(), "")
	gt.NoError(t, err)

	gt.A(t, results).Length(2)
	gt.V(t, results[0].Company).Equal("acme")
	gt.V(t, results[1].Company).Equal("globex")
	gt.A(t, deleted).Length(1)
	gt.V(t, deleted[0]).Equal("acme/2024-01-15/09-00-00.html")
}

func TestSweepRequiresStorage(t *testing.T) {
	uc := dedup.New(repository.NewMemory())
	_, err := uc.Sweep(context.Background(), "acme", "")
	gt.Error(t, err)
}

func TestSweepIgnoresForeignObjects(t *testing.T) {
	storage := &mockStorage{
		listFunc: func(ctx context.Context, prefix string) ([]string, error) {
			return []string{
				"acme/2024-01-15/09-00-00.html",
				"acme/2024-01-15/manifest.json",
			}, nil
		},
		deleteFunc: func(ctx context.Context, path string) error {
			t.Errorf("unexpected delete: %s", path)
			return nil
		},
	}

	uc := dedup.New(repository.NewMemory(), dedup.WithStorage(storage))
	result, err := uc.Sweep(context.Background(), "acme", "")
	gt.NoError(t, err)
	gt.V(t, result.ArtifactsSeen).Equal(1)
	gt.A(t, result.Removed).Length(0)
}
