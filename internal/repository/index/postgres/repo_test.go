package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/uptrace/bun"

	dbpg "github.com/kailas-cloud/pdfchat/internal/db/postgres"
	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// lazyDB never dials: the tests only render SQL.
func lazyDB(t *testing.T) *bun.DB {
	t.Helper()
	bdb, err := dbpg.Open(dbpg.Config{DSN: "postgres://u:p@127.0.0.1:1/pdfchat?sslmode=disable"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = bdb.Close() })
	return bdb
}

func newIndex(t *testing.T) *Index {
	t.Helper()
	x, err := New(lazyDB(t), Config{Table: "chunks", Dimensions: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return x
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad table", Config{Table: "drop table;", Dimensions: 2}},
		{"zero dims", Config{Table: "chunks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(nil, tt.cfg); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	x, err := New(nil, Config{Dimensions: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.cfg.Table != "pdfchat_chunks" || x.cfg.HNSWM != 16 || x.cfg.HNSWEFConstruction != 64 {
		t.Errorf("unexpected defaults %+v", x.cfg)
	}
}

func TestSelectQuery_SQL(t *testing.T) {
	x := newIndex(t)

	var rows []chunkRow
	sql := x.selectQuery(&rows, domain.IndexQuery{
		Vector: []float32{1, 0.5},
		K:      5,
		Source: "https://files.example.com/a.pdf",
	}).String()

	for _, want := range []string{
		`FROM "chunks" AS c`,
		`c.embedding <=> '[1,0.5]'::vector AS distance`,
		`c.source = 'https://files.example.com/a.pdf'`,
		`ORDER BY distance`,
		`LIMIT 5`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query %q\nmissing %q", sql, want)
		}
	}
}

func TestSelectQuery_NoSourceFilter(t *testing.T) {
	x := newIndex(t)

	var rows []chunkRow
	sql := x.selectQuery(&rows, domain.IndexQuery{Vector: []float32{1, 0}, K: 3}).String()
	if strings.Contains(sql, "WHERE") {
		t.Errorf("unexpected filter in %q", sql)
	}
}

func TestUpsertQuery_SQL(t *testing.T) {
	x := newIndex(t)

	rows := []chunkRow{{ID: "a", Source: "s", Page: 1, Content: "c"}}
	sql := x.upsertQuery(&rows).String()

	for _, want := range []string{`INSERT INTO "chunks" AS c`, `ON CONFLICT (id) DO UPDATE`, `embedding = EXCLUDED.embedding`} {
		if !strings.Contains(sql, want) {
			t.Errorf("query %q\nmissing %q", sql, want)
		}
	}
	if strings.Contains(sql, `"distance"`) {
		t.Errorf("scan-only column leaked into insert: %q", sql)
	}
}

func TestDeleteQuery_SQL(t *testing.T) {
	x := newIndex(t)

	sql := x.deleteQuery("https://files.example.com/a.pdf").String()
	for _, want := range []string{`DELETE FROM "chunks" AS c`, `c.source = 'https://files.example.com/a.pdf'`} {
		if !strings.Contains(sql, want) {
			t.Errorf("query %q\nmissing %q", sql, want)
		}
	}
}

func TestDeleteIDsQuery_SQL(t *testing.T) {
	x := newIndex(t)

	sql := x.deleteIDsQuery([]string{"a", "b"}).String()
	for _, want := range []string{`DELETE FROM "chunks" AS c`, `c.id IN ('a', 'b')`} {
		if !strings.Contains(sql, want) {
			t.Errorf("query %q\nmissing %q", sql, want)
		}
	}
}

func TestPruneQuery_SQL(t *testing.T) {
	x := newIndex(t)

	sql := x.pruneQuery("https://files.example.com/a.pdf", []string{"n1", "n2"}).String()
	for _, want := range []string{
		`DELETE FROM "chunks" AS c`,
		`c.source = 'https://files.example.com/a.pdf'`,
		`c.id NOT IN ('n1', 'n2')`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query %q\nmissing %q", sql, want)
		}
	}

	sql = x.pruneQuery("https://files.example.com/a.pdf", nil).String()
	if strings.Contains(sql, "NOT IN") {
		t.Errorf("empty keep list must drop the whole source: %q", sql)
	}
}

func TestDeleteIDs_EmptyIsNoop(t *testing.T) {
	x := newIndex(t)

	n, err := x.DeleteIDs(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	x := newIndex(t)

	err := x.Upsert(context.Background(), []domain.IndexRecord{{ID: "a", Vector: []float32{1, 2, 3}}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery_ZeroK(t *testing.T) {
	got, err := newIndex(t).Query(context.Background(), domain.IndexQuery{Vector: []float32{1, 0}})
	if err != nil || got != nil {
		t.Errorf("got %v, %v", got, err)
	}
}
