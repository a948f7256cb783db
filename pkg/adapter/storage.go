package adapter

import (
	"context"
	"errors"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/intelforge/reportpipe/pkg/model"
)

// Storage is the blob store for report artifacts, keyed by derived path.
// Writes are atomic from the caller's perspective: an artifact is visible to
// Get and List only after Put returns.
type Storage interface {
	// Put stores an artifact and returns its location
	Put(ctx context.Context, path string, content []byte) (string, error)
	// Get loads an artifact by path
	Get(ctx context.Context, path string) ([]byte, error)
	// List returns artifact paths under the prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes an artifact
	Delete(ctx context.Context, path string) error
}

// storageClient implements Storage using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, path string, content []byte) (string, error) {
	obj := s.client.Bucket(s.bucketName).Object(path)

	// GCS commits the object on Close; readers never observe a partial write.
	w := obj.NewWriter(ctx)
	w.ContentType = "text/html"
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "failed to write artifact", goerr.V("path", path))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to commit artifact", goerr.V("path", path))
	}

	return "gs://" + s.bucketName + "/" + path, nil
}

func (s *storageClient) Get(ctx context.Context, path string) ([]byte, error) {
	obj := s.client.Bucket(s.bucketName).Object(path)

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(model.ErrArtifactNotFound, "artifact missing", goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to read artifact", goerr.V("path", path))
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read artifact body", goerr.V("path", path))
	}
	return content, nil
}

func (s *storageClient) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var paths []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list artifacts", goerr.V("prefix", prefix))
		}
		paths = append(paths, attrs.Name)
	}

	sort.Strings(paths)
	return paths, nil
}

func (s *storageClient) Delete(ctx context.Context, path string) error {
	obj := s.client.Bucket(s.bucketName).Object(path)

	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			// already gone
			return nil
		}
		return goerr.Wrap(err, "failed to delete artifact", goerr.V("path", path))
	}
	return nil
}
