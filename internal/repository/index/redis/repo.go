// Package redis stores chunk vectors as Redis hashes behind an FT HNSW index.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/pdfchat/internal/db"
	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// Hash fields.
const (
	fieldContent = "content"
	fieldSource  = "source"
	fieldPage    = "page"
	fieldSection = "section"
	fieldVector  = "vector"
)

const (
	keyPrefix      = domain.KeyPrefix + "chunk:"
	deleteBatch    = 500
	tagSeparator   = "|"
	defaultHNSWM   = 16
	defaultHNSWEFC = 200
)

var returnFields = []string{fieldContent, fieldSource, fieldPage, fieldSection, fieldVector}

// store is the consumer interface for the index (ISP).
type store interface {
	db.Pinger
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys ...string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
}

// Config describes the FT index.
type Config struct {
	Name               string
	Dimensions         int
	HNSWM              int
	HNSWEFConstruction int
}

// Index implements domain.VectorIndex on Redis.
type Index struct {
	store store
	cfg   Config
}

var _ domain.VectorIndex = (*Index)(nil)

// New creates a Redis-backed vector index. Call EnsureIndex before first use.
func New(s store, cfg Config) *Index {
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = defaultHNSWM
	}
	if cfg.HNSWEFConstruction <= 0 {
		cfg.HNSWEFConstruction = defaultHNSWEFC
	}
	return &Index{store: s, cfg: cfg}
}

// Definition returns the FT.CREATE schema for the chunk index.
func (x *Index) Definition() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(x.cfg.Name).
		Prefix(keyPrefix).
		TagWithOpts(fieldSource, tagSeparator, true).
		Numeric(fieldPage).
		VectorHNSW(fieldVector, x.cfg.Dimensions, db.DistanceCosine, x.cfg.HNSWM, x.cfg.HNSWEFConstruction).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index definition: %w", err)
	}
	return def, nil
}

// EnsureIndex creates the FT index when it does not exist yet.
func (x *Index) EnsureIndex(ctx context.Context) error {
	exists, err := x.store.IndexExists(ctx, x.cfg.Name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.cfg.Name, err)
	}
	if exists {
		return nil
	}

	def, err := x.Definition()
	if err != nil {
		return err
	}
	if err := x.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", x.cfg.Name, err)
	}
	return nil
}

// Upsert writes each record as one hash in a single pipeline.
func (x *Index) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(records))
	for i, r := range records {
		if len(r.Vector) != x.cfg.Dimensions {
			return fmt.Errorf("record %s: got %d dims, want %d: %w",
				r.ID, len(r.Vector), x.cfg.Dimensions, domain.ErrVectorDimMismatch)
		}
		items[i] = db.HashSetItem{
			Key: keyPrefix + r.ID,
			Fields: map[string]string{
				fieldContent: r.Content,
				fieldSource:  r.Source,
				fieldPage:    strconv.Itoa(r.Page),
				fieldSection: r.Section,
				fieldVector:  string(db.EncodeVector(r.Vector)),
			},
		}
	}

	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d chunks: %w: %w", len(records), domain.ErrProvider, err)
	}
	return nil
}

// Query returns the K nearest chunks, optionally restricted to one source.
func (x *Index) Query(ctx context.Context, q domain.IndexQuery) ([]domain.Candidate, error) {
	knn := &db.KNNQuery{
		IndexName:    x.cfg.Name,
		VectorField:  fieldVector,
		Vector:       q.Vector,
		K:            q.K,
		ReturnFields: returnFields,
	}
	if q.Source != "" {
		knn.Tags = map[string]string{fieldSource: q.Source}
	}

	res, err := x.store.SearchKNN(ctx, knn)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w: %w", domain.ErrProvider, err)
	}

	out := make([]domain.Candidate, 0, len(res.Entries))
	for _, e := range res.Entries {
		if e.Score < q.MinScore {
			continue
		}
		out = append(out, toCandidate(e))
	}
	return out, nil
}

// Delete removes every chunk of source and reports how many went away.
func (x *Index) Delete(ctx context.Context, source string) (int, error) {
	query := db.TagQuery(fieldSource, source)
	deleted := 0

	for {
		res, err := x.store.SearchList(ctx, x.cfg.Name, query, 0, deleteBatch, nil)
		if err != nil {
			return deleted, fmt.Errorf("find chunks of %s: %w: %w", source, domain.ErrProvider, err)
		}
		if len(res.Entries) == 0 {
			return deleted, nil
		}

		keys := make([]string, len(res.Entries))
		for i, e := range res.Entries {
			keys[i] = e.Key
		}
		n, err := x.store.DelMulti(ctx, keys...)
		if err != nil {
			return deleted, fmt.Errorf("delete chunks of %s: %w: %w", source, domain.ErrProvider, err)
		}
		deleted += n
		if n == 0 {
			// index lags behind deleted keys
			return deleted, nil
		}
	}
}

// DeleteIDs removes chunks by id.
func (x *Index) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	return x.delKeys(ctx, keys)
}

// Prune removes the chunks of source whose ids are not in keep.
func (x *Index) Prune(ctx context.Context, source string, keep []string) (int, error) {
	keys, err := x.sourceKeys(ctx, source)
	if err != nil {
		return 0, err
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[keyPrefix+id] = struct{}{}
	}
	stale := keys[:0]
	for _, k := range keys {
		if _, ok := kept[k]; !ok {
			stale = append(stale, k)
		}
	}
	return x.delKeys(ctx, stale)
}

// sourceKeys pages through every chunk key of source.
func (x *Index) sourceKeys(ctx context.Context, source string) ([]string, error) {
	query := db.TagQuery(fieldSource, source)
	var keys []string
	for offset := 0; ; offset += deleteBatch {
		res, err := x.store.SearchList(ctx, x.cfg.Name, query, offset, deleteBatch, nil)
		if err != nil {
			return nil, fmt.Errorf("find chunks of %s: %w: %w", source, domain.ErrProvider, err)
		}
		for _, e := range res.Entries {
			keys = append(keys, e.Key)
		}
		if len(res.Entries) < deleteBatch {
			return keys, nil
		}
	}
}

func (x *Index) delKeys(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for start := 0; start < len(keys); start += deleteBatch {
		n, err := x.store.DelMulti(ctx, keys[start:min(start+deleteBatch, len(keys))]...)
		if err != nil {
			return deleted, fmt.Errorf("delete chunks: %w: %w", domain.ErrProvider, err)
		}
		deleted += n
	}
	return deleted, nil
}

// Ping checks that Redis answers.
func (x *Index) Ping(ctx context.Context) error {
	if err := x.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis index: %w", err)
	}
	return nil
}

func toCandidate(e db.SearchEntry) domain.Candidate {
	c := domain.Candidate{
		ID:      strings.TrimPrefix(e.Key, keyPrefix),
		Content: e.Fields[fieldContent],
		Source:  e.Fields[fieldSource],
		Section: e.Fields[fieldSection],
		Score:   e.Score,
	}
	if page, err := strconv.Atoi(e.Fields[fieldPage]); err == nil {
		c.Page = page
	}
	if raw, ok := e.Fields[fieldVector]; ok {
		if vec, err := db.DecodeVector([]byte(raw)); err == nil {
			c.Vector = vec
		}
	}
	return c
}
