// Package memory is an in-process vector index on chromem-go, optionally persisted to disk.
package memory

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// Metadata keys.
const (
	metaSource  = "source"
	metaPage    = "page"
	metaSection = "section"
)

const defaultCollection = "pdfchat"

// errNoEmbeddingFunc guards against chromem falling back to its own OpenAI client.
var errNoEmbeddingFunc = errors.New("memory index: documents must carry precomputed embeddings")

// Index implements domain.VectorIndex with a chromem-go collection.
type Index struct {
	mu         sync.RWMutex // writers hold it so counts and query sizes stay exact
	collection *chromem.Collection
}

var _ domain.VectorIndex = (*Index)(nil)

// New opens a collection. An empty persistPath keeps everything in memory.
func New(persistPath, collection string) (*Index, error) {
	var (
		cdb *chromem.DB
		err error
	)
	if persistPath == "" {
		cdb = chromem.NewDB()
	} else {
		cdb, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", persistPath, err)
		}
	}

	if collection == "" {
		collection = defaultCollection
	}
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }
	c, err := cdb.GetOrCreateCollection(collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &Index{collection: c}, nil
}

// Upsert adds or replaces records by ID.
func (x *Index) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:      r.ID,
			Content: r.Content,
			Metadata: map[string]string{
				metaSource:  r.Source,
				metaPage:    strconv.Itoa(r.Page),
				metaSection: r.Section,
			},
			Embedding: r.Vector,
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	return nil
}

// Query runs an exhaustive cosine search over the collection.
func (x *Index) Query(ctx context.Context, q domain.IndexQuery) ([]domain.Candidate, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := min(q.K, x.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if q.Source != "" {
		where = map[string]string{metaSource: q.Source}
	}

	results, err := x.collection.QueryEmbedding(ctx, q.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]domain.Candidate, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < q.MinScore {
			continue
		}
		page, _ := strconv.Atoi(r.Metadata[metaPage])
		out = append(out, domain.Candidate{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Metadata[metaSource],
			Page:    page,
			Section: r.Metadata[metaSection],
			Score:   score,
			Vector:  r.Embedding,
		})
	}
	return out, nil
}

// Delete removes every document of source.
func (x *Index) Delete(ctx context.Context, source string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	before := x.collection.Count()
	if before == 0 {
		return 0, nil
	}
	if err := x.collection.Delete(ctx, map[string]string{metaSource: source}, nil); err != nil {
		return 0, fmt.Errorf("delete documents of %s: %w", source, err)
	}
	return before - x.collection.Count(), nil
}

// DeleteIDs removes chunks by id.
func (x *Index) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	before := x.collection.Count()
	if err := x.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("delete %d documents: %w", len(ids), err)
	}
	return before - x.collection.Count(), nil
}

// Prune removes the documents of source that are not in keep.
// chromem filters only by equality, so the source is listed through a query
// anchored on one of the kept vectors.
func (x *Index) Prune(ctx context.Context, source string, keep []string) (int, error) {
	if len(keep) == 0 {
		return x.Delete(ctx, source)
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	anchor, err := x.collection.GetByID(ctx, keep[0])
	if err != nil {
		return 0, fmt.Errorf("load kept document %s: %w", keep[0], err)
	}
	all, err := x.collection.QueryEmbedding(ctx, anchor.Embedding, x.collection.Count(),
		map[string]string{metaSource: source}, nil)
	if err != nil {
		return 0, fmt.Errorf("list documents of %s: %w", source, err)
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var stale []string
	for _, r := range all {
		if _, ok := kept[r.ID]; !ok {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := x.collection.Delete(ctx, nil, nil, stale...); err != nil {
		return 0, fmt.Errorf("prune documents of %s: %w", source, err)
	}
	return len(stale), nil
}

// Ping always succeeds: the index lives in process.
func (x *Index) Ping(context.Context) error { return nil }
