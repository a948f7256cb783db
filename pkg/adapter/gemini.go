package adapter

import (
	"context"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/intelforge/reportpipe/pkg/model"
	"github.com/intelforge/reportpipe/pkg/service/htmltext"
	"github.com/intelforge/reportpipe/pkg/utils/retry"
)

// Embedder converts report text into a fixed-dimension vector. The
// dimensionality is constant regardless of input length: long input is
// chunked deterministically and the chunk vectors are mean-pooled.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds each text independently. A failed item never
	// discards sibling items that embedded successfully.
	EmbedBatch(ctx context.Context, texts []string) []EmbedResult
}

// EmbedResult is the per-item outcome of a batch embedding request.
type EmbedResult struct {
	Vector []float32
	Err    error
}

// GeminiEmbedder implements Embedder using Gemini embeddings on Vertex AI.
type GeminiEmbedder struct {
	client         *genai.Client
	embeddingModel string
	dimension      int32
	chunkSize      int
	chunkOverlap   int
	limiter        *rate.Limiter
	retryPolicy    retry.Policy
}

type GeminiOption func(*GeminiEmbedder)

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.embeddingModel = model
	}
}

func WithDimension(dim int) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.dimension = int32(dim)
	}
}

func WithRetryPolicy(p retry.Policy) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.retryPolicy = p
	}
}

// WithRequestRate caps embedding requests per second.
func WithRequestRate(rps float64, burst int) GeminiOption {
	return func(g *GeminiEmbedder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewGeminiEmbedder creates an Embedder backed by the Vertex AI genai API.
func NewGeminiEmbedder(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiEmbedder{
		client:         client,
		embeddingModel: "gemini-embedding-001",
		dimension:      768,
		chunkSize:      3000,
		chunkOverlap:   200,
		limiter:        rate.NewLimiter(rate.Limit(5), 5),
		retryPolicy:    retry.DefaultPolicy(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	chunks := htmltext.Chunk(text, g.chunkSize, g.chunkOverlap)
	if len(chunks) == 0 {
		return nil, goerr.New("no text to embed")
	}

	contents := make([]*genai.Content, len(chunks))
	for i, chunk := range chunks {
		contents[i] = genai.NewContentFromText(chunk, genai.RoleUser)
	}

	var resp *genai.EmbedContentResponse
	err := retry.Do(ctx, g.retryPolicy, func(ctx context.Context) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return goerr.Wrap(err, "rate limiter interrupted")
		}

		var embedErr error
		resp, embedErr = g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &g.dimension,
		})
		if embedErr != nil {
			return goerr.Wrap(embedErr, "failed to embed content")
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, err.Error())
	}

	if len(resp.Embeddings) != len(chunks) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("chunks", len(chunks)), goerr.V("embeddings", len(resp.Embeddings)))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return meanPool(vectors), nil
}

func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	for i, text := range texts {
		vec, err := g.Embed(ctx, text)
		results[i] = EmbedResult{Vector: vec, Err: err}
	}
	return results
}

// meanPool averages chunk vectors into a single L2-normalized vector.
func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 1 {
		return normalize(vectors[0])
	}

	pooled := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for i := range vec {
			pooled[i] += vec[i]
		}
	}
	n := float32(len(vectors))
	for i := range pooled {
		pooled[i] /= n
	}
	return normalize(pooled)
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
