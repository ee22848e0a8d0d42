// Package postgres stores chunk vectors in a pgvector table through bun.
package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"github.com/kailas-cloud/pdfchat/internal/db"
	"github.com/kailas-cloud/pdfchat/internal/domain"
)

const (
	defaultTable   = "pdfchat_chunks"
	defaultHNSWM   = 16
	defaultHNSWEFC = 64
)

type chunkRow struct {
	bun.BaseModel `bun:"table:pdfchat_chunks,alias:c"`

	ID        string          `bun:"id,pk"`
	Source    string          `bun:"source,notnull"`
	Page      int             `bun:"page,notnull"`
	Section   string          `bun:"section,notnull"`
	Content   string          `bun:"content,notnull"`
	Embedding pgvector.Vector `bun:"embedding,notnull"`
	Distance  float64         `bun:"distance,scanonly"`
}

// Config describes the table and its HNSW index.
type Config struct {
	Table              string
	Dimensions         int
	HNSWM              int
	HNSWEFConstruction int
}

// Index implements domain.VectorIndex on Postgres + pgvector.
type Index struct {
	db  *bun.DB
	cfg Config
}

var _ domain.VectorIndex = (*Index)(nil)

// New creates a pgvector-backed index. Call Migrate before first use.
func New(bdb *bun.DB, cfg Config) (*Index, error) {
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if !db.IsValidIdentifier(cfg.Table) {
		return nil, domain.NewValidationError("index.name", "invalid table name")
	}
	if cfg.Dimensions <= 0 {
		return nil, domain.NewValidationError("index.dimensions", "must be positive")
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = defaultHNSWM
	}
	if cfg.HNSWEFConstruction <= 0 {
		cfg.HNSWEFConstruction = defaultHNSWEFC
	}
	return &Index{db: bdb, cfg: cfg}, nil
}

// Migrate creates the extension, table and indexes when missing.
func (x *Index) Migrate(ctx context.Context) error {
	table := bun.Ident(x.cfg.Table)
	stmts := []struct {
		query string
		args  []any
	}{
		{"CREATE EXTENSION IF NOT EXISTS vector", nil},
		{`CREATE TABLE IF NOT EXISTS ? (
			id text PRIMARY KEY,
			source text NOT NULL,
			page integer NOT NULL,
			section text NOT NULL DEFAULT '',
			content text NOT NULL,
			embedding vector(?) NOT NULL
		)`, []any{table, x.cfg.Dimensions}},
		{"CREATE INDEX IF NOT EXISTS ? ON ? (source)", []any{bun.Ident(x.cfg.Table + "_source_idx"), table}},
		{
			"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops) WITH (m = ?, ef_construction = ?)",
			[]any{bun.Ident(x.cfg.Table + "_embedding_idx"), table, x.cfg.HNSWM, x.cfg.HNSWEFConstruction},
		},
	}

	for _, s := range stmts {
		if _, err := x.db.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("migrate %s: %w", x.cfg.Table, err)
		}
	}
	return nil
}

// Upsert inserts records, replacing rows with the same id.
func (x *Index) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]chunkRow, len(records))
	for i, r := range records {
		if len(r.Vector) != x.cfg.Dimensions {
			return fmt.Errorf("record %s: got %d dims, want %d: %w",
				r.ID, len(r.Vector), x.cfg.Dimensions, domain.ErrVectorDimMismatch)
		}
		rows[i] = chunkRow{
			ID:        r.ID,
			Source:    r.Source,
			Page:      r.Page,
			Section:   r.Section,
			Content:   r.Content,
			Embedding: pgvector.NewVector(r.Vector),
		}
	}

	if _, err := x.upsertQuery(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("upsert %d chunks: %w: %w", len(rows), domain.ErrProvider, err)
	}
	return nil
}

// Query returns the K nearest rows by cosine distance.
func (x *Index) Query(ctx context.Context, q domain.IndexQuery) ([]domain.Candidate, error) {
	if q.K <= 0 {
		return nil, nil
	}

	var rows []chunkRow
	if err := x.selectQuery(&rows, q).Scan(ctx); err != nil {
		return nil, fmt.Errorf("knn query: %w: %w", domain.ErrProvider, err)
	}

	out := make([]domain.Candidate, 0, len(rows))
	for _, r := range rows {
		score := max(0, 1-r.Distance)
		if score < q.MinScore {
			continue
		}
		out = append(out, domain.Candidate{
			ID:      r.ID,
			Content: r.Content,
			Source:  r.Source,
			Page:    r.Page,
			Section: r.Section,
			Score:   score,
			Vector:  r.Embedding.Slice(),
		})
	}
	return out, nil
}

// Delete removes every row of source.
func (x *Index) Delete(ctx context.Context, source string) (int, error) {
	return x.execDelete(ctx, x.deleteQuery(source), "chunks of "+source)
}

// DeleteIDs removes rows by id.
func (x *Index) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return x.execDelete(ctx, x.deleteIDsQuery(ids), fmt.Sprintf("%d chunks", len(ids)))
}

// Prune removes the rows of source whose id is not in keep.
func (x *Index) Prune(ctx context.Context, source string, keep []string) (int, error) {
	return x.execDelete(ctx, x.pruneQuery(source, keep), "stale chunks of "+source)
}

func (x *Index) execDelete(ctx context.Context, q *bun.DeleteQuery, what string) (int, error) {
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w: %w", what, domain.ErrProvider, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Ping checks the connection.
func (x *Index) Ping(ctx context.Context) error {
	if err := x.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres index: %w", err)
	}
	return nil
}

func (x *Index) tableExpr() (string, bun.Ident) {
	return "? AS c", bun.Ident(x.cfg.Table)
}

func (x *Index) upsertQuery(rows *[]chunkRow) *bun.InsertQuery {
	expr, table := x.tableExpr()
	return x.db.NewInsert().
		Model(rows).
		ModelTableExpr(expr, table).
		On("CONFLICT (id) DO UPDATE").
		Set("source = EXCLUDED.source").
		Set("page = EXCLUDED.page").
		Set("section = EXCLUDED.section").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding")
}

func (x *Index) selectQuery(rows *[]chunkRow, q domain.IndexQuery) *bun.SelectQuery {
	expr, table := x.tableExpr()
	sel := x.db.NewSelect().
		Model(rows).
		ModelTableExpr(expr, table).
		Column("id", "source", "page", "section", "content", "embedding").
		ColumnExpr("c.embedding <=> ?::vector AS distance", pgvector.NewVector(q.Vector))
	if q.Source != "" {
		sel = sel.Where("c.source = ?", q.Source)
	}
	return sel.OrderExpr("distance").Limit(q.K)
}

func (x *Index) deleteQuery(source string) *bun.DeleteQuery {
	expr, table := x.tableExpr()
	return x.db.NewDelete().
		Model((*chunkRow)(nil)).
		ModelTableExpr(expr, table).
		Where("c.source = ?", source)
}

func (x *Index) deleteIDsQuery(ids []string) *bun.DeleteQuery {
	expr, table := x.tableExpr()
	return x.db.NewDelete().
		Model((*chunkRow)(nil)).
		ModelTableExpr(expr, table).
		Where("c.id IN (?)", bun.In(ids))
}

func (x *Index) pruneQuery(source string, keep []string) *bun.DeleteQuery {
	q := x.deleteQuery(source)
	if len(keep) > 0 {
		q = q.Where("c.id NOT IN (?)", bun.In(keep))
	}
	return q
}
