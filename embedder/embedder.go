// Package embedder turns text into vectors of a fixed dimension using a
// chroma embedding function.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"golang.org/x/sync/errgroup"
)

// MaxBatchSize is the largest number of texts sent in one embedding request.
const MaxBatchSize = 20

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrBatchTooLarge     = errors.New("embedding batch too large")
)

type Client struct {
	ef        embeddings.EmbeddingFunction
	dimension int
}

func New(ef embeddings.EmbeddingFunction, dimension int) *Client {
	return &Client{ef: ef, dimension: dimension}
}

// NewOpenAI builds a client backed by the OpenAI embeddings API.
func NewOpenAI(apiKey string, model string, dimension int) (*Client, error) {
	ef, err := openai.NewOpenAIEmbeddingFunction(apiKey,
		openai.WithModel(openai.EmbeddingModel(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
	}

	return New(ef, dimension), nil
}

// NewGemini builds a client backed by the Gemini embeddings API. The
// configured dimension must match the model's output.
func NewGemini(apiKey string, model string, dimension int) (*Client, error) {
	ef, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithAPIKey(apiKey),
		gemini.WithDefaultModel(embeddings.EmbeddingModel(model)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	return New(ef, dimension), nil
}

// EmbeddingFunction exposes the underlying function so the vector store can
// be bound to the same model.
func (c *Client) EmbeddingFunction() embeddings.EmbeddingFunction {
	return c.ef
}

func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns one vector per input, in input order. Callers drop blank
// texts before calling and split large sets into batches of MaxBatchSize.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embs, err := c.ef.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(embs) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(embs), len(texts))
	}

	res := make([][]float32, len(embs))
	for i, e := range embs {
		v, err := c.vector(e)
		if err != nil {
			return nil, err
		}

		res[i] = v
	}

	return res, nil
}

// EmbedQuery embeds a single query text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e, err := c.ef.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return c.vector(e)
}

// EmbedPair embeds two query texts concurrently and waits for both.
func (c *Client) EmbedPair(ctx context.Context, first string, second string) ([]float32, []float32, error) {
	var a, b []float32

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = c.EmbedQuery(gctx, first)
		return err
	})
	g.Go(func() (err error) {
		b, err = c.EmbedQuery(gctx, second)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return a, b, nil
}

func (c *Client) vector(e embeddings.Embedding) ([]float32, error) {
	if e == nil {
		return nil, errors.New("embedding service returned an empty vector")
	}

	v := e.ContentAsFloat32()
	if len(v) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(v), c.dimension)
	}

	return v, nil
}
