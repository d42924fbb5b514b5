package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

const (
	PartyID = "partyId"
	Source  = "source"

	hnswSpace = "hnsw:space"
)

// queryIncludes lists the fields Query needs back. Distances carry the score.
var queryIncludes = []chroma.Include{
	chroma.IncludeDocuments,
	chroma.IncludeMetadatas,
	chroma.Include("distances"),
}

type ChromaStoreConfig struct {
	BaseURL       string
	Token         string
	Collection    string
	EmbeddingFunc embeddings.EmbeddingFunction
}

type ChromaStore struct {
	client chroma.Client
	col    chroma.Collection
}

// NewChromaStore connects to Chroma and opens the collection, creating it
// with cosine distance when it does not exist yet.
func NewChromaStore(ctx context.Context, cfg ChromaStoreConfig) (*ChromaStore, error) {
	opts := []chroma.ClientOption{chroma.WithBaseURL(cfg.BaseURL)}
	if cfg.Token != "" {
		opts = append(opts, chroma.WithAuth(
			chroma.NewTokenAuthCredentialsProvider(cfg.Token, chroma.AuthorizationTokenHeader)))
	}

	client, err := chroma.NewHTTPClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	col, err := client.GetOrCreateCollection(ctx, cfg.Collection,
		chroma.WithEmbeddingFunctionCreate(cfg.EmbeddingFunc),
		chroma.WithCollectionMetadataCreate(
			chroma.NewMetadata(chroma.NewStringAttribute(hnswSpace, "cosine"))),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}

	return &ChromaStore{client: client, col: col}, nil
}

func (ds *ChromaStore) Close() error {
	if ds.client == nil {
		return nil
	}

	return ds.client.Close()
}

// Upsert writes records by id; a record with an existing id replaces it.
func (ds *ChromaStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]chroma.DocumentID, 0, len(records))
	texts := make([]string, 0, len(records))
	metas := make([]chroma.DocumentMetadata, 0, len(records))
	vectors := make([]embeddings.Embedding, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s has no vector", r.ID)
		}

		ids = append(ids, chroma.DocumentID(r.ID))
		texts = append(texts, r.Text)
		metas = append(metas, chroma.NewDocumentMetadata(
			chroma.NewStringAttribute(PartyID, r.PartyID),
			chroma.NewStringAttribute(Source, r.Source),
		))
		vectors = append(vectors, embeddings.NewEmbeddingFromFloat32(r.Vector))
	}

	err := ds.col.Upsert(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metas...),
		chroma.WithEmbeddings(vectors...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %d records: %w", len(records), err)
	}

	return nil
}

// Query returns at most topK matches ordered by descending similarity.
func (ds *ChromaStore) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) == 0 {
		return nil, errors.New("empty query vector")
	}

	opts := []chroma.CollectionQueryOption{
		chroma.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chroma.WithNResults(topK),
		chroma.WithIncludeQuery(queryIncludes...),
	}
	if filter.PartyID != "" {
		opts = append(opts, chroma.WithWhereQuery(chroma.EqString(PartyID, filter.PartyID)))
	}

	r, err := ds.col.Query(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	idGroups := r.GetIDGroups()
	if len(idGroups) == 0 {
		return []Match{}, nil
	}

	ids := idGroups[0]
	var docs chroma.Documents
	if g := r.GetDocumentsGroups(); len(g) > 0 {
		docs = g[0]
	}
	var metadatas chroma.DocumentMetadatas
	if g := r.GetMetadatasGroups(); len(g) > 0 {
		metadatas = g[0]
	}
	var distances embeddings.Distances
	if g := r.GetDistancesGroups(); len(g) > 0 {
		distances = g[0]
	}

	res := make([]Match, 0, len(ids))
	for i := range len(ids) {
		m := Match{ID: string(ids[i])}
		if i < len(distances) {
			// cosine distance; similarity is its complement
			m.Score = 1 - float32(distances[i])
		}
		if i < len(docs) && docs[i] != nil {
			m.Text = docs[i].ContentString()
		}
		if i < len(metadatas) && metadatas[i] != nil {
			m.PartyID, _ = metadatas[i].GetString(PartyID)
			m.Source, _ = metadatas[i].GetString(Source)
		}

		res = append(res, m)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Score > res[j].Score
	})

	return res, nil
}

// Count returns the number of records in the collection.
func (ds *ChromaStore) Count(ctx context.Context) (int, error) {
	n, err := ds.col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	return n, nil
}
