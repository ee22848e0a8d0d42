package domain

import (
	"context"
	"time"
)

// KeyPrefix namespaces every key this service writes to a shared key-value store.
const KeyPrefix = "pdfchat:"

// IndexRecord is a chunk ready for upsert: its vector plus the metadata carried alongside it.
type IndexRecord struct {
	ID      string
	Vector  []float32
	Content string
	Source  string
	Page    int
	Section string
}

// Candidate is a ranked hit returned by a vector index.
// Vector is populated only when the backend returns stored vectors.
type Candidate struct {
	ID      string
	Content string
	Source  string
	Page    int
	Section string
	Score   float64
	Vector  []float32
}

// IndexQuery describes a nearest-neighbour lookup.
type IndexQuery struct {
	Vector []float32
	K      int
	// MinScore discards candidates below this cosine similarity at the index stage. 0 disables it.
	MinScore float64
	// Source restricts the lookup to one document when non-empty.
	Source string
}

// VectorIndex is the single contract over every vector backend (in-process or remote).
// The concrete implementation is chosen once in the composition root.
type VectorIndex interface {
	Upsert(ctx context.Context, records []IndexRecord) error
	Query(ctx context.Context, q IndexQuery) ([]Candidate, error)
	// Delete removes every vector whose source matches and reports how many went away.
	// A source with no vectors is not an error: it returns 0.
	Delete(ctx context.Context, source string) (int, error)
	// DeleteIDs removes the given chunks. Unknown ids are skipped.
	DeleteIDs(ctx context.Context, ids []string) (int, error)
	// Prune removes every vector of source whose id is not in keep.
	Prune(ctx context.Context, source string, keep []string) (int, error)
	Ping(ctx context.Context) error
}

// BlobEntry describes a stored original file.
type BlobEntry struct {
	Name      string
	URL       string
	Size      int64
	UpdatedAt time.Time
}

// BlobStore keeps the original uploaded files. The URL it returns is treated as an opaque source id.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	List(ctx context.Context) ([]BlobEntry, error)
	Delete(ctx context.Context, name string) error
	URL(name string) string
}
