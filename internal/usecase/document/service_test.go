package document

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// --- Mocks ---

type mockBlobs struct {
	entries   []domain.BlobEntry
	listErr   error
	deleteErr error
	deleted   []string
}

func (m *mockBlobs) List(_ context.Context) ([]domain.BlobEntry, error) {
	return m.entries, m.listErr
}

func (m *mockBlobs) Delete(_ context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return m.deleteErr
}

func (m *mockBlobs) URL(name string) string { return "file:///data/" + name }

type mockIndex struct {
	removed int
	err     error
	source  string
}

func (m *mockIndex) Delete(_ context.Context, source string) (int, error) {
	m.source = source
	return m.removed, m.err
}

func entries(n int) []domain.BlobEntry {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.BlobEntry, n)
	for i := range n {
		out[i] = domain.BlobEntry{Name: fmt.Sprintf("doc%02d.pdf", i), UpdatedAt: base.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

// --- Tests ---

func TestList_NewestFirst(t *testing.T) {
	svc := New(&mockBlobs{entries: entries(3)}, &mockIndex{}, zap.NewNop())

	got, err := svc.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].Name != "doc02.pdf" || got[2].Name != "doc00.pdf" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestList_Limit(t *testing.T) {
	svc := New(&mockBlobs{entries: entries(30)}, &mockIndex{}, zap.NewNop()).WithPagination(10, 15)

	tests := []struct {
		limit int
		want  int
	}{
		{0, 10},
		{5, 5},
		{50, 15},
	}
	for _, tt := range tests {
		got, err := svc.List(context.Background(), tt.limit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("limit %d: expected %d entries, got %d", tt.limit, tt.want, len(got))
		}
	}
}

func TestList_Error(t *testing.T) {
	svc := New(&mockBlobs{listErr: errors.New("disk gone")}, &mockIndex{}, zap.NewNop())

	if _, err := svc.List(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestDelete_RemovesFileAndVectors(t *testing.T) {
	blobs := &mockBlobs{}
	idx := &mockIndex{removed: 7}
	svc := New(blobs, idx, zap.NewNop())

	n, err := svc.Delete(context.Background(), "report.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 vectors removed, got %d", n)
	}
	if idx.source != "file:///data/report.pdf" {
		t.Errorf("unexpected source %q", idx.source)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "report.pdf" {
		t.Errorf("unexpected blob deletes %v", blobs.deleted)
	}
}

func TestDelete_Missing(t *testing.T) {
	svc := New(&mockBlobs{deleteErr: domain.ErrNotFound}, &mockIndex{}, zap.NewNop())

	n, err := svc.Delete(context.Background(), "ghost.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
}

func TestDelete_OrphanVectors(t *testing.T) {
	svc := New(&mockBlobs{deleteErr: domain.ErrNotFound}, &mockIndex{removed: 2}, zap.NewNop())

	n, err := svc.Delete(context.Background(), "orphan.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestDelete_EmptyName(t *testing.T) {
	svc := New(&mockBlobs{}, &mockIndex{}, zap.NewNop())

	_, err := svc.Delete(context.Background(), " ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDelete_IndexError(t *testing.T) {
	blobs := &mockBlobs{}
	svc := New(blobs, &mockIndex{err: domain.ErrProvider}, zap.NewNop())

	_, err := svc.Delete(context.Background(), "report.pdf")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if len(blobs.deleted) != 0 {
		t.Error("file must be kept when vectors could not be removed")
	}
}
