// Package document lists and removes ingested documents.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// Service manages stored documents and their vectors.
type Service struct {
	blobs           BlobStore
	index           VectorDeleter
	logger          *zap.Logger
	defaultPageSize int
	maxPageSize     int
}

// New creates a document service.
func New(blobs BlobStore, index VectorDeleter, logger *zap.Logger) *Service {
	return &Service{
		blobs:           blobs,
		index:           index,
		logger:          logger,
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// List returns stored documents, newest first, capped at limit.
func (s *Service) List(ctx context.Context, limit int) ([]domain.BlobEntry, error) {
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	entries, err := s.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].UpdatedAt.Equal(entries[j].UpdatedAt) {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Delete removes the stored file and all of its vectors, returning how many vectors went away.
// An unknown file is not an error; it reports 0.
func (s *Service) Delete(ctx context.Context, name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, domain.NewValidationError("filename", "is required")
	}

	source := s.blobs.URL(name)
	removed, err := s.index.Delete(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("delete vectors: %w", err)
	}

	if err := s.blobs.Delete(ctx, name); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return removed, fmt.Errorf("delete blob: %w", err)
		}
		if removed > 0 {
			s.logger.Warn("Vectors deleted for a missing file", zap.String("name", name), zap.Int("vectors", removed))
		}
	}

	s.logger.Info("Document deleted", zap.String("name", name), zap.Int("vectors", removed))
	return removed, nil
}
