package retrieval

import (
	"context"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// Router classifies a query as general conversation or a document question.
type Router interface {
	IsGeneral(ctx context.Context, query string) (bool, error)
}

// Index is the nearest-neighbour lookup used for candidate recall.
type Index interface {
	Query(ctx context.Context, q domain.IndexQuery) ([]domain.Candidate, error)
}
