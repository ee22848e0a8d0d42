package ingest

import (
	"context"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/document"
)

// PageExtractor pulls per-page text out of a PDF.
type PageExtractor interface {
	Extract(ctx context.Context, documentID string, data []byte) ([]document.RawPage, error)
}

// BlobWriter stores the original file and names its source URL.
type BlobWriter interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	URL(name string) string
}

// Index stores chunk vectors, rolls back a failed write and drops a
// document's superseded vectors.
type Index interface {
	Upsert(ctx context.Context, records []domain.IndexRecord) error
	DeleteIDs(ctx context.Context, ids []string) (int, error)
	Prune(ctx context.Context, source string, keep []string) (int, error)
}
