package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/intelforge/reportpipe/pkg/adapter"
	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/repository"
	"github.com/intelforge/reportpipe/pkg/usecase/dedup"
	"github.com/intelforge/reportpipe/pkg/usecase/pipeline"
	"github.com/intelforge/reportpipe/pkg/utils/retry"
)

// config holds configuration values
type config struct {
	// Config file with pipeline tunables
	configFile string

	// Blob store
	bucket string

	// Dedup log repository
	project  string
	database string
	boltPath string

	// Embedding
	geminiProject  string
	geminiLocation string
	embeddingModel string

	// Vector index
	qdrantAddr       string
	qdrantCollection string

	// Audit export
	auditDataset string
	auditTable   string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML file with pipeline tunables",
			Sources:     cli.EnvVars("REPORTPIPE_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for report artifacts",
			Sources:     cli.EnvVars("REPORTPIPE_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID for the dedup log",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "bolt-path",
			Usage:       "Local bbolt file for the dedup log (overrides Firestore)",
			Sources:     cli.EnvVars("REPORTPIPE_BOLT_PATH"),
			Destination: &cfg.boltPath,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini embeddings",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("REPORTPIPE_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "qdrant-addr",
			Usage:       "Qdrant gRPC address",
			Value:       "localhost:6334",
			Sources:     cli.EnvVars("QDRANT_ADDR"),
			Destination: &cfg.qdrantAddr,
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Usage:       "Qdrant collection for report vectors",
			Value:       "reports",
			Sources:     cli.EnvVars("QDRANT_COLLECTION"),
			Destination: &cfg.qdrantCollection,
		},
		&cli.StringFlag{
			Name:        "audit-dataset",
			Usage:       "BigQuery dataset for dedup log export",
			Sources:     cli.EnvVars("REPORTPIPE_AUDIT_DATASET"),
			Destination: &cfg.auditDataset,
		},
		&cli.StringFlag{
			Name:        "audit-table",
			Usage:       "BigQuery table for dedup log export",
			Value:       "dedup_log",
			Sources:     cli.EnvVars("REPORTPIPE_AUDIT_TABLE"),
			Destination: &cfg.auditTable,
		},
	}
}

// pipelineConfig loads tunables from the optional YAML file.
func (cfg *config) pipelineConfig() (model.Config, error) {
	if cfg.configFile == "" {
		return model.DefaultConfig(), nil
	}
	return model.LoadConfig(cfg.configFile)
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		return nil, goerr.New("bucket is required")
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newDedupLog creates the dedup log repository, bbolt when a local path is
// given, Firestore otherwise.
func (cfg *config) newDedupLog(ctx context.Context) (repository.DedupLog, error) {
	if cfg.boltPath != "" {
		return repository.NewBolt(cfg.boltPath)
	}

	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}
	return repository.NewFirestore(ctx, cfg.project, cfg.database)
}

// newEmbedder creates a new Embedder adapter instance
func (cfg *config) newEmbedder(ctx context.Context, pcfg model.Config) (adapter.Embedder, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	return adapter.NewGeminiEmbedder(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithDimension(pcfg.EmbeddingDimension),
		adapter.WithRetryPolicy(retry.Policy{
			Attempts:       pcfg.RetryCount,
			InitialBackoff: pcfg.RetryBackoff,
			MaxBackoff:     pcfg.RequestTimeout,
		}),
	)
}

// newIndex creates a new VectorIndex adapter instance
func (cfg *config) newIndex(ctx context.Context, pcfg model.Config) (*adapter.QdrantIndex, error) {
	if cfg.qdrantAddr == "" {
		return nil, goerr.New("qdrant-addr is required")
	}

	index, err := adapter.NewQdrantIndex(cfg.qdrantAddr, cfg.qdrantCollection, pcfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if err := index.EnsureCollection(ctx, pcfg.EmbeddingDimension); err != nil {
		return nil, err
	}
	return index, nil
}

// newAuditSink creates a BigQuery audit sink when configured.
func (cfg *config) newAuditSink(ctx context.Context) (repository.AuditSink, error) {
	if cfg.auditDataset == "" {
		return nil, nil
	}
	if cfg.project == "" {
		return nil, goerr.New("project is required for audit export")
	}
	return repository.NewBigQuerySink(ctx, cfg.project, cfg.auditDataset, cfg.auditTable)
}

// newDedupUseCase wires a standalone dedup engine for maintenance commands.
func newDedupUseCase(log repository.DedupLog, storage adapter.Storage, pcfg model.Config) *dedup.UseCase {
	return dedup.New(log,
		dedup.WithStorage(storage),
		dedup.WithThreshold(pcfg.SimilarityThreshold),
	)
}

// newPipeline wires all adapters into a pipeline UseCase.
func (cfg *config) newPipeline(ctx context.Context) (*pipeline.UseCase, error) {
	pcfg, err := cfg.pipelineConfig()
	if err != nil {
		return nil, err
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}
	dedupLog, err := cfg.newDedupLog(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := cfg.newEmbedder(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	index, err := cfg.newIndex(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithConfig(pcfg)}
	if sink, err := cfg.newAuditSink(ctx); err != nil {
		return nil, err
	} else if sink != nil {
		opts = append(opts, pipeline.WithAuditSink(sink))
	}

	return pipeline.New(storage, embedder, index, dedupLog, opts...), nil
}
