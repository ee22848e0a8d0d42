// Package ingest turns uploaded PDFs into indexed chunk vectors.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/document"
	"github.com/kailas-cloud/pdfchat/internal/domain/text"
	"github.com/kailas-cloud/pdfchat/internal/metrics"
)

// Defaults.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// File is one upload.
type File struct {
	Name string
	Data []byte
}

// Result reports the outcome of ingesting one file.
type Result struct {
	Name     string
	Source   string
	Pages    int
	Chunks   int
	Replaced int // vectors removed from a previous upload of the same file
	Err      error
}

// Config tunes the embedding fan-out.
type Config struct {
	BatchSize   int // chunks per embedding call
	Concurrency int // embedding calls in flight per document
}

// Service runs extract, normalize, segment, chunk, embed and upsert.
type Service struct {
	blobs      BlobWriter
	extractor  PageExtractor
	index      Index
	embed      domain.Embedder
	normalizer *text.Normalizer
	chunker    *text.Chunker
	cfg        Config
	logger     *zap.Logger
}

// New creates an ingest service.
func New(
	blobs BlobWriter, extractor PageExtractor, index Index, embed domain.Embedder,
	normalizer *text.Normalizer, chunker *text.Chunker, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Service{
		blobs: blobs, extractor: extractor, index: index, embed: embed,
		normalizer: normalizer, chunker: chunker,
		cfg: cfg, logger: logger,
	}
}

// Ingest indexes one PDF. Re-uploading a file replaces its previous vectors.
func (s *Service) Ingest(ctx context.Context, name string, data []byte) (Result, error) {
	res := Result{Name: name}
	if err := validate(name, data); err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("rejected").Inc()
		return res, err
	}

	start := time.Now()
	res.Source = s.blobs.URL(name)

	pages, err := s.extractor.Extract(ctx, res.Source, data)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("rejected").Inc()
		return res, fmt.Errorf("extract %s: %w", name, err)
	}
	res.Pages = len(pages)

	chunks := s.chunkPages(pages, res.Source)
	if len(chunks) == 0 {
		metrics.IngestDocumentsTotal.WithLabelValues("rejected").Inc()
		return res, domain.NewValidationError("file", "document contains no extractable text")
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID()
	}

	// New vectors go in under fresh ids first; the previous upload stays
	// searchable until everything else has succeeded.
	if err := s.embedAndStore(ctx, chunks); err != nil {
		s.rollback(ctx, name, ids)
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return res, err
	}

	if _, err := s.blobs.Put(ctx, name, data); err != nil {
		s.rollback(ctx, name, ids)
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("store %s: %w", name, err)
	}

	replaced, err := s.index.Prune(ctx, res.Source, ids)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("drop previous vectors: %w", err)
	}
	res.Replaced = replaced
	res.Chunks = len(chunks)

	metrics.IngestDocumentsTotal.WithLabelValues("ok").Inc()
	metrics.IngestChunksTotal.Add(float64(len(chunks)))
	s.logger.Info("Document ingested",
		zap.String("name", name),
		zap.String("source", res.Source),
		zap.Int("pages", res.Pages),
		zap.Int("chunks", res.Chunks),
		zap.Int("replaced", res.Replaced),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// IngestMany ingests files concurrently. Failures are reported per file and never stop the others.
func (s *Service) IngestMany(ctx context.Context, files []File) []Result {
	results := make([]Result, len(files))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			res, err := s.Ingest(ctx, f.Name, f.Data)
			res.Err = err
			results[i] = res
			if err != nil {
				s.logger.Warn("Document ingest failed", zap.String("name", f.Name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// rollback removes the vectors a failed ingest managed to write.
func (s *Service) rollback(ctx context.Context, name string, ids []string) {
	n, err := s.index.DeleteIDs(context.WithoutCancel(ctx), ids)
	if err != nil {
		s.logger.Error("Rollback of partial ingest failed",
			zap.String("name", name), zap.Int("chunks", len(ids)), zap.Error(err))
		return
	}
	s.logger.Warn("Partial ingest rolled back", zap.String("name", name), zap.Int("removed", n))
}

// chunkPages normalizes, segments and chunks every page, assigning fresh ids.
func (s *Service) chunkPages(pages []document.RawPage, source string) []document.Chunk {
	var chunks []document.Chunk
	for _, p := range pages {
		cleaned := s.normalizer.Normalize(p.Text)
		if cleaned == "" {
			continue
		}
		for _, sec := range text.Segment(cleaned) {
			for _, ch := range s.chunker.Chunk(sec, p.Number, source) {
				chunks = append(chunks, ch.WithID(uuid.NewString()))
			}
		}
	}
	return chunks
}

// embedAndStore embeds chunks in batches, at most cfg.Concurrency batches in flight.
func (s *Service) embedAndStore(ctx context.Context, chunks []document.Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for offset := 0; offset < len(chunks); offset += s.cfg.BatchSize {
		batch := chunks[offset:min(offset+s.cfg.BatchSize, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, ch := range batch {
				texts[i] = ch.Content()
			}

			res, err := domain.EmbedBatch(ctx, s.embed, texts)
			if err != nil {
				return fmt.Errorf("embed chunks [%d:%d]: %w", offset, offset+len(batch), err)
			}
			domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

			records := make([]domain.IndexRecord, len(batch))
			for i, ch := range batch {
				records[i] = ch.Record(res.Embeddings[i])
			}
			if err := s.index.Upsert(ctx, records); err != nil {
				return fmt.Errorf("upsert chunks [%d:%d]: %w", offset, offset+len(batch), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // wrapped inside the group
	}
	return nil
}

func validate(name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidationError("file", "name is required")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return domain.NewValidationError("file", "invalid file name")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return domain.NewValidationError("file", "only PDF files are accepted")
	}
	if len(data) == 0 {
		return domain.NewValidationError("file", "empty upload")
	}
	return nil
}
