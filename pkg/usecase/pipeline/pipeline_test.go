package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/intelforge/reportpipe/pkg/adapter"
	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/repository"
	"github.com/intelforge/reportpipe/pkg/usecase/pipeline"
)

type mockStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte

	putErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{blobs: make(map[string][]byte)}
}

func (m *mockStorage) Put(ctx context.Context, path string, content []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = content
	return "gs://test-bucket/" + path, nil
}

func (m *mockStorage) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.blobs[path]
	if !ok {
		return nil, model.ErrArtifactNotFound
	}
	return content, nil
}

func (m *mockStorage) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for p := range m.blobs {
		if len(p) >= len(prefix) && p[:len(prefix)] == prefix {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, path)
	return nil
}

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) []adapter.EmbedResult {
	results := make([]adapter.EmbedResult, len(texts))
	for i, text := range texts {
		vector, err := m.Embed(ctx, text)
		results[i] = adapter.EmbedResult{Vector: vector, Err: err}
	}
	return results
}

type mockIndex struct {
	mu      sync.Mutex
	entries map[string]map[string]string // id -> metadata
	vectors map[string][]float32

	upsertErr error
	deleted   []string
	queryFunc func(ctx context.Context, vector []float32, k int) ([]adapter.Match, error)
}

func newMockIndex() *mockIndex {
	return &mockIndex{
		entries: make(map[string]map[string]string),
		vectors: make(map[string][]float32),
	}
}

func (m *mockIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = metadata
	m.vectors[id] = vector
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	delete(m.vectors, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockIndex) Fetch(ctx context.Context, id string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectors[id], nil
}

func (m *mockIndex) Query(ctx context.Context, vector []float32, k int) ([]adapter.Match, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, vector, k)
	}
	return nil, nil
}

func newTestPipeline(storage *mockStorage, index *mockIndex, log repository.DedupLog) *pipeline.UseCase {
	return pipeline.New(storage, &mockEmbedder{}, index, log)
}

func TestProcessReportLifecycle(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	log := repository.NewMemory()
	uc := newTestPipeline(storage, index, log)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// first report of the day is kept, stored and indexed
	result, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme", day.Add(9*time.Hour))
	gt.NoError(t, err)
	gt.V(t, result.Success).Equal(true)
	gt.V(t, result.Decision).Equal(model.DecisionKeptAsNew)
	gt.V(t, result.Stored).Equal(true)
	gt.V(t, result.Indexed).Equal(true)
	gt.V(t, result.StoragePath).Equal("acme/2024-01-15/09-00-00.html")
	gt.V(t, result.VectorID).Equal("acme:2024-01-15")

	// identical content ten minutes later is discarded without any write
	result, err = uc.ProcessReport(ctx, "<html>R1</html>", "Acme", day.Add(9*time.Hour+10*time.Minute))
	gt.NoError(t, err)
	gt.V(t, result.Decision).Equal(model.DecisionDiscardedAsDuplicate)
	gt.V(t, result.Stored).Equal(false)
	gt.V(t, result.Indexed).Equal(false)
	gt.V(t, len(storage.blobs)).Equal(1)

	// changed content in the afternoon replaces the incumbent
	result, err = uc.ProcessReport(ctx, "<html>R2</html>", "Acme", day.Add(14*time.Hour))
	gt.NoError(t, err)
	gt.V(t, result.Decision).Equal(model.DecisionReplacedExisting)
	gt.V(t, result.Stored).Equal(true)
	gt.V(t, result.Indexed).Equal(true)
	gt.V(t, result.StoragePath).Equal("acme/2024-01-15/14-00-00.html")

	// one index entry per day, pointing at the replacement
	gt.V(t, len(index.entries)).Equal(1)
	gt.V(t, index.entries["acme:2024-01-15"]["storage_path"]).Equal("acme/2024-01-15/14-00-00.html")

	// the log holds the full decision history
	entries, err := log.List(ctx, "acme", "2024-01-15", 0)
	gt.NoError(t, err)
	gt.A(t, entries).Length(3)
	gt.V(t, entries[0].Decision).Equal(model.DecisionReplacedExisting)
	gt.V(t, entries[1].Decision).Equal(model.DecisionDiscardedAsDuplicate)
	gt.V(t, entries[2].Decision).Equal(model.DecisionKeptAsNew)
}

func TestProcessReportOlderCandidateDiscarded(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	uc := newTestPipeline(storage, index, repository.NewMemory())

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	_, err := uc.ProcessReport(ctx, "<html>late</html>", "Acme", day.Add(14*time.Hour))
	gt.NoError(t, err)

	// an out-of-order arrival with an older timestamp loses
	result, err := uc.ProcessReport(ctx, "<html>early</html>", "Acme", day.Add(9*time.Hour))
	gt.NoError(t, err)
	gt.V(t, result.Decision).Equal(model.DecisionDiscardedAsDuplicate)
	gt.V(t, len(storage.blobs)).Equal(1)
	gt.V(t, index.entries["acme:2024-01-15"]["storage_path"]).Equal("acme/2024-01-15/14-00-00.html")
}

func TestProcessReportIndexFailureIsPartialSuccess(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	index.upsertErr = errors.New("qdrant unavailable")
	uc := newTestPipeline(storage, index, repository.NewMemory())

	result, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme",
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	gt.NoError(t, err)

	// blob stays; the index is derived state and rebuildable
	gt.V(t, result.Success).Equal(true)
	gt.V(t, result.Stored).Equal(true)
	gt.V(t, result.Indexed).Equal(false)
	gt.V(t, result.Error != "").Equal(true)
	gt.V(t, len(storage.blobs)).Equal(1)
}

func TestProcessReportStorageFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	storage.putErr = errors.New("bucket gone")
	index := newMockIndex()
	log := repository.NewMemory()
	uc := newTestPipeline(storage, index, log)

	result, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme",
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	gt.Error(t, err)
	gt.V(t, result.Success).Equal(false)
	gt.V(t, result.Stored).Equal(false)
	gt.V(t, len(index.entries)).Equal(0)

	// the aborted decision is on record as failed, never as canonical
	entries, err := log.List(ctx, "acme", "2024-01-15", 0)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
	gt.V(t, entries[0].Status).Equal(model.LogStatusFailed)
	gt.V(t, entries[0].StoragePath).Equal("")
}

func TestProcessReportRetryAfterStorageOutage(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	log := repository.NewMemory()
	uc := newTestPipeline(storage, index, log)

	ts := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	// first attempt hits a storage outage
	storage.putErr = errors.New("bucket unavailable")
	result, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme", ts)
	gt.Error(t, err)
	gt.V(t, result.Stored).Equal(false)

	// the outage passes; the identical report must store, not be treated
	// as a duplicate of the failed attempt
	storage.putErr = nil
	result, err = uc.ProcessReport(ctx, "<html>R1</html>", "Acme", ts)
	gt.NoError(t, err)
	gt.V(t, result.Success).Equal(true)
	gt.V(t, result.Decision).Equal(model.DecisionKeptAsNew)
	gt.V(t, result.Stored).Equal(true)
	gt.V(t, result.Indexed).Equal(true)
	gt.V(t, len(storage.blobs)).Equal(1)
}

func TestProcessReportEmbeddingUnavailable(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, model.ErrEmbeddingUnavailable
		},
	}
	log := repository.NewMemory()
	uc := pipeline.New(storage, embedder, index, log)

	// embedding failure degrades: the report is still stored and resolved
	result, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme",
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	gt.NoError(t, err)
	gt.V(t, result.Success).Equal(true)
	gt.V(t, result.Decision).Equal(model.DecisionKeptAsNew)
	gt.V(t, result.Stored).Equal(true)
	gt.V(t, result.Indexed).Equal(false)
	gt.V(t, result.EmbeddingUnavailable).Equal(true)
	gt.V(t, len(storage.blobs)).Equal(1)
}

func TestProcessReportVectorlessReplaceDropsStaleEntry(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	log := repository.NewMemory()

	uc := newTestPipeline(storage, index, log)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	_, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme", day.Add(9*time.Hour))
	gt.NoError(t, err)
	gt.V(t, len(index.entries)).Equal(1)

	// the replacement cannot be embedded, so the stale entry must go: the
	// index never points at a superseded artifact
	degraded := pipeline.New(storage, &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, model.ErrEmbeddingUnavailable
		},
	}, index, log)

	result, err := degraded.ProcessReport(ctx, "<html>R2</html>", "Acme", day.Add(14*time.Hour))
	gt.NoError(t, err)
	gt.V(t, result.Decision).Equal(model.DecisionReplacedExisting)
	gt.V(t, result.Stored).Equal(true)
	gt.V(t, result.Indexed).Equal(false)
	gt.V(t, len(index.entries)).Equal(0)
	gt.A(t, index.deleted).Length(1)
}

func TestProcessReportInvalidInput(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	log := repository.NewMemory()
	uc := newTestPipeline(storage, newMockIndex(), log)

	result, err := uc.ProcessReport(ctx, "   ", "Acme",
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	gt.Error(t, err)
	gt.V(t, result.Success).Equal(false)
	gt.V(t, len(storage.blobs)).Equal(0)

	// the rejection itself is on record
	entries, err := log.List(ctx, "acme", "2024-01-15", 0)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
	gt.V(t, entries[0].Status).Equal(model.LogStatusFailed)
}

func TestProcessReportCancelledBeforeWrite(t *testing.T) {
	storage := newMockStorage()
	index := newMockIndex()
	log := repository.NewMemory()

	ctx, cancel := context.WithCancel(context.Background())
	embedder := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			// cancellation arrives mid-flight, before the blob write
			cancel()
			return []float32{0.1, 0.2, 0.3}, nil
		},
	}
	uc := pipeline.New(storage, embedder, index, log)

	result, err := uc.ProcessReport(ctx, "<html>R1</html>", "Acme",
		time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	gt.Error(t, err)
	gt.V(t, result.Success).Equal(false)

	// fail closed: no mutation happened
	gt.V(t, len(storage.blobs)).Equal(0)
	gt.V(t, len(index.entries)).Equal(0)

	// the abort is recorded, but never as a canonical pointer
	latest, err := log.Latest(context.Background(), "acme", "2024-01-15")
	gt.NoError(t, err)
	gt.V(t, latest == nil).Equal(true)
}

func TestProcessReportRecordsIncumbentSimilarity(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	log := repository.NewMemory()
	uc := newTestPipeline(storage, index, log)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	_, err := uc.ProcessReport(ctx, "<html>v1</html>", "Acme", day.Add(9*time.Hour))
	gt.NoError(t, err)

	// the mock embedder returns the same vector for any text, so the
	// replacement scores as a near-duplicate of the incumbent
	result, err := uc.ProcessReport(ctx, "<html>v2</html>", "Acme", day.Add(14*time.Hour))
	gt.NoError(t, err)
	gt.V(t, result.Decision).Equal(model.DecisionReplacedExisting)

	entries, err := log.List(ctx, "acme", "2024-01-15", 1)
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
	gt.NotNil(t, entries[0].Similarity)
	gt.V(t, *entries[0].Similarity > 0.99).Equal(true)
}

func TestProcessReportConcurrentSameDay(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	index := newMockIndex()
	log := repository.NewMemory()
	uc := newTestPipeline(storage, index, log)

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// identical content racing on the same day: exactly one canonical outcome
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.ProcessReport(ctx, "<html>race</html>", "Acme", day.Add(9*time.Hour))
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.V(t, len(storage.blobs)).Equal(1)

	entries, err := log.List(ctx, "acme", "2024-01-15", 0)
	gt.NoError(t, err)
	gt.A(t, entries).Length(8)

	accepted := 0
	for _, e := range entries {
		if e.Decision.Accepted() {
			accepted++
		}
	}
	gt.V(t, accepted).Equal(1)
}
