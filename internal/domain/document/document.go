package document

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// DefaultSectionTitle names the text that precedes the first detected heading.
const DefaultSectionTitle = "Introduction"

// RawPage is the extracted text of one PDF page. Immutable for the duration of one ingestion.
type RawPage struct {
	DocumentID string
	Number     int // 1-based
	Text       string
}

// Section is a titled span of a page between detected headings.
type Section struct {
	Title   string
	Content string
	Order   int
}

// Chunk is the unit of embedding and retrieval.
type Chunk struct {
	id       string
	content  string
	section  string
	page     int
	sourceID string
}

// NewChunk validates and creates a Chunk. Content is trimmed and must not be empty.
func NewChunk(id, content, section string, page int, sourceID string) (Chunk, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Chunk{}, fmt.Errorf("empty chunk content: %w", domain.ErrDegenerateInput)
	}
	if page < 1 {
		return Chunk{}, fmt.Errorf("page number must be >= 1, got %d", page)
	}
	return Chunk{
		id:       id,
		content:  content,
		section:  section,
		page:     page,
		sourceID: sourceID,
	}, nil
}

// ID returns the chunk identifier.
func (c Chunk) ID() string { return c.id }

// Content returns the trimmed chunk text.
func (c Chunk) Content() string { return c.content }

// SectionTitle returns the title inherited from the enclosing section.
func (c Chunk) SectionTitle() string { return c.section }

// PageNumber returns the 1-based page the chunk came from.
func (c Chunk) PageNumber() int { return c.page }

// SourceID returns the opaque source identifier (the blob URL).
func (c Chunk) SourceID() string { return c.sourceID }

// WithID returns a copy carrying the given identifier.
func (c Chunk) WithID(id string) Chunk {
	c.id = id
	return c
}

// Record converts the chunk and its vector into an index record.
func (c Chunk) Record(vec []float32) domain.IndexRecord {
	return domain.IndexRecord{
		ID:      c.id,
		Vector:  vec,
		Content: c.content,
		Source:  c.sourceID,
		Page:    c.page,
		Section: c.section,
	}
}

// DisplayName turns an opaque source id (URL or path) into a human-readable file name.
func DisplayName(sourceID string) string {
	if sourceID == "" {
		return ""
	}
	trimmed := strings.TrimRight(sourceID, "/")
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	base := path.Base(trimmed)
	if unescaped, err := url.PathUnescape(base); err == nil {
		return unescaped
	}
	return base
}
