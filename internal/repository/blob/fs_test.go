package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

func newStore(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(filepath.Join(t.TempDir(), "files"), "http://localhost:8080/files/")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestPut_WritesAndReturnsURL(t *testing.T) {
	s := newStore(t)

	u, err := s.Put(context.Background(), "Q1 report.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != "http://localhost:8080/files/Q1%20report.pdf" {
		t.Errorf("unexpected url %q", u)
	}
	if u != s.URL("Q1 report.pdf") {
		t.Error("Put and URL must agree")
	}

	got, err := os.ReadFile(filepath.Join(s.Dir(), "Q1 report.pdf"))
	if err != nil || string(got) != "%PDF" {
		t.Errorf("file content %q, %v", got, err)
	}
}

func TestPut_Overwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, body := range []string{"v1", "v2"} {
		if _, err := s.Put(ctx, "a.pdf", []byte(body)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	got, _ := os.ReadFile(filepath.Join(s.Dir(), "a.pdf"))
	if string(got) != "v2" {
		t.Errorf("expected overwrite, got %q", got)
	}
}

func TestPut_RejectsPathTraversal(t *testing.T) {
	s := newStore(t)

	for _, name := range []string{"", "../evil.pdf", "dir/a.pdf", ".hidden.pdf"} {
		if _, err := s.Put(context.Background(), name, []byte("x")); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%q: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, n := range []string{"a.pdf", "b.pdf"} {
		if _, err := s.Put(ctx, n, []byte(n)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	// leftover temp file from an interrupted upload
	if err := os.WriteFile(filepath.Join(s.Dir(), ".upload-123"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	for _, e := range entries {
		if e.URL != s.URL(e.Name) || e.Size != 5 || e.UpdatedAt.IsZero() {
			t.Errorf("unexpected entry %+v", e)
		}
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "a.pdf", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "a.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "a.pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, entry, err := s.Open(ctx, "a.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, _ := io.ReadAll(rc)
	if string(got) != "%PDF-1.4" || entry.Size != 8 || entry.Name != "a.pdf" {
		t.Errorf("unexpected content %q / entry %+v", got, entry)
	}

	if _, _, err := s.Open(ctx, "missing.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Open(ctx, "../a.pdf"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNewFS_RequiresDir(t *testing.T) {
	if _, err := NewFS("", "http://x"); err == nil {
		t.Fatal("expected error")
	}
}
