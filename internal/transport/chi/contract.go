package chi

import (
	"context"
	"io"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	chatuc "github.com/kailas-cloud/pdfchat/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/pdfchat/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/pdfchat/internal/usecase/ingest"
)

// Ingester indexes one uploaded PDF.
type Ingester interface {
	Ingest(ctx context.Context, name string, data []byte) (ingestuc.Result, error)
}

// Chatter answers questions within a session.
type Chatter interface {
	Ask(ctx context.Context, sessionID, question string) (chatuc.Answer, error)
	Reset(sessionID string)
}

// Documents lists and removes stored documents.
type Documents interface {
	List(ctx context.Context, limit int) ([]domain.BlobEntry, error)
	Delete(ctx context.Context, name string) (int, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// FileOpener serves stored originals.
type FileOpener interface {
	Open(ctx context.Context, name string) (io.ReadSeekCloser, domain.BlobEntry, error)
}
