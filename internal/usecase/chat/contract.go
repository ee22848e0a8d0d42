package chat

import (
	"context"

	"github.com/kailas-cloud/pdfchat/internal/domain/conversation"
	"github.com/kailas-cloud/pdfchat/internal/domain/retrieval"
)

// Retriever decides which chunks ground an answer.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (retrieval.Outcome, error)
}

// Generator produces the answer text. contextChunks is empty on the general path.
type Generator interface {
	Generate(ctx context.Context, question string, contextChunks []string, history []conversation.Turn) (string, error)
}
