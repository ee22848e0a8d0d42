// Package parser extracts per-page plain text from PDF files.
package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/document"
)

// PDF extracts page text with ledongthuc/pdf.
type PDF struct {
	logger *zap.Logger
}

// NewPDF creates a PDF extractor.
func NewPDF(logger *zap.Logger) *PDF {
	return &PDF{logger: logger}
}

// Extract returns one RawPage per page, numbered from 1.
// Unreadable input is a validation error; a page that fails to decode yields empty text.
func (p *PDF) Extract(ctx context.Context, documentID string, data []byte) (pages []document.RawPage, err error) {
	// the reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.NewValidationError("file", fmt.Sprintf("not a readable PDF: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewValidationError("file", "not a readable PDF: "+err.Error())
	}

	n := reader.NumPage()
	pages = make([]document.RawPage, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, document.RawPage{
			DocumentID: documentID,
			Number:     i,
			Text:       p.pageText(reader, i, documentID),
		})
	}
	return pages, nil
}

func (p *PDF) pageText(reader *pdf.Reader, n int, documentID string) string {
	page := reader.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		p.logger.Warn("Failed to extract page text",
			zap.String("document", documentID),
			zap.Int("page", n),
			zap.Error(err),
		)
		return ""
	}
	return text
}
