package chat

import (
	"context"
	"fmt"
	"sort"

	"github.com/gamma-omg/manifesto-gpt/docstore"
	"golang.org/x/sync/errgroup"
)

const (
	SingleTopK = 5
	DualTopK   = 8
	// MaxContext caps the merged context regardless of how many queries ran.
	MaxContext = 10
)

type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedPair(ctx context.Context, first string, second string) ([]float32, []float32, error)
}

type vectorSearcher interface {
	Query(ctx context.Context, vector []float32, topK int, filter docstore.Filter) ([]docstore.Match, error)
}

type Retriever struct {
	embedder queryEmbedder
	store    vectorSearcher
}

func NewRetriever(embedder queryEmbedder, store vectorSearcher) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve searches with both the original and the translated query and
// merges the two result lists.
func (r *Retriever) Retrieve(ctx context.Context, original string, translated string, filter docstore.Filter) ([]docstore.Match, error) {
	origVec, transVec, err := r.embedder.EmbedPair(ctx, original, translated)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var origMatches, transMatches []docstore.Match

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		origMatches, err = r.store.Query(gctx, origVec, DualTopK, filter)
		return err
	})
	g.Go(func() (err error) {
		transMatches, err = r.store.Query(gctx, transVec, DualTopK, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to search manifestos: %w", err)
	}

	return MergeMatches(MaxContext, origMatches, transMatches), nil
}

// RetrieveSingle runs one query, as used by the search tools.
func (r *Retriever) RetrieveSingle(ctx context.Context, text string, topK int, filter docstore.Filter) ([]docstore.Match, error) {
	if topK <= 0 {
		topK = SingleTopK
	}

	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	res, err := r.store.Query(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search manifestos: %w", err)
	}

	return res, nil
}

// MergeMatches keeps the best scoring match per chunk id, orders the result
// by descending score and truncates it to limit. Equal scores keep the match
// seen first.
func MergeMatches(limit int, lists ...[]docstore.Match) []docstore.Match {
	idx := make(map[string]int)
	merged := make([]docstore.Match, 0)

	for _, list := range lists {
		for _, m := range list {
			i, ok := idx[m.ID]
			if !ok {
				idx[m.ID] = len(merged)
				merged = append(merged, m)
				continue
			}

			if m.Score > merged[i].Score {
				merged[i] = m
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if limit >= 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	return merged
}
