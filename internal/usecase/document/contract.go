package document

import (
	"context"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// BlobStore holds the original uploaded files.
type BlobStore interface {
	List(ctx context.Context) ([]domain.BlobEntry, error)
	Delete(ctx context.Context, name string) error
	URL(name string) string
}

// VectorDeleter drops every vector of one source.
type VectorDeleter interface {
	Delete(ctx context.Context, source string) (int, error)
}
