package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

const (
	srcA = "https://files.example.com/a.pdf"
	srcB = "https://files.example.com/b.pdf"
)

func seed(t *testing.T) *Index {
	t.Helper()
	x, err := New("", "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = x.Upsert(context.Background(), []domain.IndexRecord{
		{ID: "a1", Vector: []float32{1, 0, 0}, Content: "revenue", Source: srcA, Page: 1, Section: "Introduction"},
		{ID: "a2", Vector: []float32{0.9, 0.1, 0}, Content: "margin", Source: srcA, Page: 2, Section: "Results"},
		{ID: "b1", Vector: []float32{0, 1, 0}, Content: "weather", Source: srcB, Page: 1, Section: "Introduction"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return x
}

func TestQuery_RanksByCosine(t *testing.T) {
	x := seed(t)

	got, err := x.Query(context.Background(), domain.IndexQuery{Vector: []float32{1, 0, 0}, K: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "a1" || got[1].ID != "a2" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Page != 1 || got[0].Section != "Introduction" || got[0].Source != srcA {
		t.Errorf("metadata not mapped: %+v", got[0])
	}
	if len(got[0].Vector) != 3 {
		t.Errorf("expected stored vector, got %v", got[0].Vector)
	}
}

func TestQuery_KLargerThanCollection(t *testing.T) {
	x := seed(t)

	got, err := x.Query(context.Background(), domain.IndexQuery{Vector: []float32{1, 0, 0}, K: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 documents, got %d", len(got))
	}
}

func TestQuery_MinScoreAndSource(t *testing.T) {
	x := seed(t)

	got, err := x.Query(context.Background(), domain.IndexQuery{Vector: []float32{1, 0, 0}, K: 3, MinScore: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range got {
		if c.ID == "b1" {
			t.Error("orthogonal document must fall below min score")
		}
	}

	got, err = x.Query(context.Background(), domain.IndexQuery{Vector: []float32{1, 0, 0}, K: 3, Source: srcB})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b1" {
		t.Errorf("source filter: got %+v", got)
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	x, err := New("", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := x.Query(context.Background(), domain.IndexQuery{Vector: []float32{1}, K: 3})
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestUpsert_ReplacesByID(t *testing.T) {
	x := seed(t)
	ctx := context.Background()

	err := x.Upsert(ctx, []domain.IndexRecord{
		{ID: "a1", Vector: []float32{1, 0, 0}, Content: "revenue v2", Source: srcA, Page: 1},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n := x.collection.Count(); n != 3 {
		t.Errorf("expected 3 documents, got %d", n)
	}
}

func TestDelete_CountsRemoved(t *testing.T) {
	x := seed(t)
	ctx := context.Background()

	n, err := x.Delete(ctx, srcA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	n, err = x.Delete(ctx, srcA)
	if err != nil || n != 0 {
		t.Errorf("second delete: got %d, %v", n, err)
	}
}

func TestDeleteIDs(t *testing.T) {
	x := seed(t)
	ctx := context.Background()

	n, err := x.DeleteIDs(ctx, []string{"a1", "b1", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if c := x.collection.Count(); c != 1 {
		t.Errorf("expected 1 document left, got %d", c)
	}

	if n, err := x.DeleteIDs(ctx, nil); err != nil || n != 0 {
		t.Errorf("empty ids: got %d, %v", n, err)
	}
}

func TestPrune_KeepsListedAndOtherSources(t *testing.T) {
	x := seed(t)
	ctx := context.Background()

	err := x.Upsert(ctx, []domain.IndexRecord{
		{ID: "a3", Vector: []float32{0, 0, 1}, Content: "new", Source: srcA, Page: 1},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	n, err := x.Prune(ctx, srcA, []string{"a3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned, got %d", n)
	}

	got, err := x.Query(ctx, domain.IndexQuery{Vector: []float32{1, 1, 1}, K: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	ids := map[string]bool{}
	for _, c := range got {
		ids[c.ID] = true
	}
	if len(ids) != 2 || !ids["a3"] || !ids["b1"] {
		t.Errorf("expected a3 and b1 to remain, got %v", ids)
	}
}

func TestPrune_EmptyKeepDropsSource(t *testing.T) {
	x := seed(t)

	n, err := x.Prune(context.Background(), srcA, nil)
	if err != nil || n != 2 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestQuery_ConcurrentWithDelete(t *testing.T) {
	x, err := New("", "race")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		src := fmt.Sprintf("https://files.example.com/%d.pdf", i)
		err := x.Upsert(ctx, []domain.IndexRecord{
			{ID: src + "#1", Vector: []float32{1, 0}, Content: "a", Source: src, Page: 1},
			{ID: src + "#2", Vector: []float32{0, 1}, Content: "b", Source: src, Page: 1},
		})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := x.Delete(ctx, src); err != nil {
				t.Errorf("Delete: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := x.Query(ctx, domain.IndexQuery{Vector: []float32{1, 1}, K: 40}); err != nil {
				t.Errorf("Query: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestNew_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	x, err := New(dir, "chunks")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := x.Upsert(ctx, []domain.IndexRecord{{ID: "1", Vector: []float32{1, 0}, Content: "c", Source: srcA}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reopened, err := New(dir, "chunks")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n := reopened.collection.Count(); n != 1 {
		t.Errorf("expected persisted document, got %d", n)
	}
}
