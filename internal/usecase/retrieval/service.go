// Package retrieval turns a user query into ranked, deduplicated source snippets.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/document"
	result "github.com/kailas-cloud/pdfchat/internal/domain/retrieval"
	"github.com/kailas-cloud/pdfchat/internal/domain/vector"
	"github.com/kailas-cloud/pdfchat/internal/metrics"
)

// Defaults.
const (
	DefaultBuffer           = 2
	DefaultIndexMinScore    = 0.87
	DefaultRelevanceFloor   = 0.70
	DefaultSnippetMinLength = 150
	DefaultMaxSources       = 3
	DefaultDedupPrefix      = 100
	DefaultTimeout          = 30 * time.Second
)

const ellipsis = "..."

// Config tunes retrieval.
type Config struct {
	Buffer           int           // extra candidates fetched beyond k
	IndexMinScore    float64       // index-stage cutoff; 0 disables
	RelevanceFloor   float64       // recomputed-similarity cutoff
	SnippetMinLength int           // content longer than this (runes) is shaped to its best sentence
	MaxSources       int           // matches returned at most
	DedupPrefix      int           // runes compared when deduplicating
	Timeout          time.Duration // whole-call deadline; 0 disables
}

// DefaultConfig returns the stock retrieval settings.
func DefaultConfig() Config {
	return Config{
		Buffer:           DefaultBuffer,
		IndexMinScore:    DefaultIndexMinScore,
		RelevanceFloor:   DefaultRelevanceFloor,
		SnippetMinLength: DefaultSnippetMinLength,
		MaxSources:       DefaultMaxSources,
		DedupPrefix:      DefaultDedupPrefix,
		Timeout:          DefaultTimeout,
	}
}

// Service runs the retrieval flow: route, recall, dedup, rescore, rank, shape.
type Service struct {
	router   Router
	index    Index
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval Service. Zero fields in cfg take their defaults,
// except IndexMinScore and Timeout, where 0 means disabled.
func New(router Router, index Index, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.Buffer < 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.SnippetMinLength <= 0 {
		cfg.SnippetMinLength = DefaultSnippetMinLength
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultMaxSources
	}
	if cfg.DedupPrefix <= 0 {
		cfg.DedupPrefix = DefaultDedupPrefix
	}
	return &Service{router: router, index: index, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve answers which chunks should ground a reply to query.
// Provider failures and timeouts come back as errors wrapping domain.ErrProvider, never as an empty outcome.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (result.Outcome, error) {
	start := time.Now()
	defer func() { metrics.RetrievalDuration.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(query) == "" {
		return result.Outcome{}, domain.NewValidationError("query", "must not be empty")
	}
	if k <= 0 {
		k = s.cfg.MaxSources
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	out, err := s.retrieve(ctx, query, k)
	if err != nil {
		metrics.RetrievalOutcomesTotal.WithLabelValues("error").Inc()
		return result.Outcome{}, s.classify(ctx, err)
	}
	metrics.RetrievalOutcomesTotal.WithLabelValues(out.Kind().String()).Inc()
	return out, nil
}

func (s *Service) retrieve(ctx context.Context, query string, k int) (result.Outcome, error) {
	general, err := s.router.IsGeneral(ctx, query)
	if err != nil {
		return result.Outcome{}, fmt.Errorf("route query: %w", err)
	}
	if general {
		s.logger.Debug("Query routed to general conversation")
		return result.General(), nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return result.Outcome{}, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)
	qvec := emb.Embedding
	if _, err := vector.Cosine(qvec, qvec); err != nil {
		return result.Outcome{}, fmt.Errorf("query embedding: %w", err)
	}

	candidates, err := s.index.Query(ctx, domain.IndexQuery{
		Vector:   qvec,
		K:        k + s.cfg.Buffer,
		MinScore: s.cfg.IndexMinScore,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProvider) {
			return result.Outcome{}, fmt.Errorf("query index: %w", err)
		}
		return result.Outcome{}, fmt.Errorf("query index: %w: %w", domain.ErrProvider, err)
	}
	if len(candidates) == 0 {
		return result.NoRelevantMatches(), nil
	}

	candidates = s.dedup(candidates)

	matches, err := s.rescore(ctx, qvec, candidates)
	if err != nil {
		return result.Outcome{}, err
	}
	if len(matches) == 0 {
		return result.NoRelevantMatches(), nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	limit := min(k, s.cfg.MaxSources)
	if len(matches) > limit {
		matches = matches[:limit]
	}

	if err := s.shape(ctx, qvec, matches); err != nil {
		return result.Outcome{}, err
	}

	s.logger.Debug("Retrieval completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
		zap.Float64("top_similarity", matches[0].Similarity),
	)
	return result.Grounded(matches), nil
}

// dedup keeps the first candidate for each content prefix, preserving index order.
func (s *Service) dedup(candidates []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := prefix(c.Content, s.cfg.DedupPrefix)
		if _, dup := seen[key]; dup {
			metrics.RetrievalDroppedTotal.WithLabelValues("dedup").Inc()
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// rescore computes query/content similarity for every candidate and applies the relevance floor.
// Candidates without a stored vector are embedded in one batch call.
func (s *Service) rescore(ctx context.Context, qvec []float32, candidates []domain.Candidate) ([]result.Match, error) {
	vecs := make([][]float32, len(candidates))
	var missing []int
	var texts []string
	for i, c := range candidates {
		if len(c.Vector) > 0 {
			vecs[i] = c.Vector
			continue
		}
		missing = append(missing, i)
		texts = append(texts, c.Content)
	}
	if len(texts) > 0 {
		res, err := domain.EmbedBatch(ctx, s.embedder, texts)
		if err != nil {
			return nil, fmt.Errorf("embed candidates: %w", err)
		}
		domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
		for j, i := range missing {
			vecs[i] = res.Embeddings[j]
		}
	}

	matches := make([]result.Match, 0, len(candidates))
	for i, c := range candidates {
		sim, err := vector.Cosine(qvec, vecs[i])
		if err != nil {
			s.logger.Warn("Dropping candidate with unusable vector",
				zap.String("id", c.ID),
				zap.String("source", c.Source),
				zap.Error(err),
			)
			metrics.RetrievalDroppedTotal.WithLabelValues("degenerate").Inc()
			continue
		}
		if sim < s.cfg.RelevanceFloor {
			metrics.RetrievalDroppedTotal.WithLabelValues("relevance").Inc()
			continue
		}
		matches = append(matches, result.Match{
			Content:    c.Content,
			Snippet:    c.Content,
			Page:       c.Page,
			Source:     c.Source,
			SourceName: document.DisplayName(c.Source),
			Section:    c.Section,
			Similarity: sim,
		})
	}
	return matches, nil
}

// shape replaces long snippets with their sentence closest to the query, plus an ellipsis.
// Sentences of all long matches are embedded in a single batch call.
func (s *Service) shape(ctx context.Context, qvec []float32, matches []result.Match) error {
	type span struct{ match, from, to int }
	var spans []span
	var sentences []string

	for i := range matches {
		if utf8.RuneCountInString(matches[i].Content) <= s.cfg.SnippetMinLength {
			continue
		}
		parts := splitSentences(matches[i].Content)
		if len(parts) == 0 {
			continue
		}
		spans = append(spans, span{match: i, from: len(sentences), to: len(sentences) + len(parts)})
		sentences = append(sentences, parts...)
	}
	if len(sentences) == 0 {
		return nil
	}

	res, err := domain.EmbedBatch(ctx, s.embedder, sentences)
	if err != nil {
		return fmt.Errorf("embed snippet sentences: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	for _, sp := range spans {
		_, idx, err := vector.MaxCosine(qvec, res.Embeddings[sp.from:sp.to])
		if err != nil || idx < 0 {
			// keep the full content when no sentence is comparable
			continue
		}
		matches[sp.match].Snippet = sentences[sp.from+idx] + ellipsis
	}
	return nil
}

// classify maps deadline expiry onto the provider error class.
func (s *Service) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("Retrieval timed out", zap.Duration("timeout", s.cfg.Timeout), zap.Error(err))
		return fmt.Errorf("retrieval timed out: %w: %w: %v", domain.ErrProvider, context.DeadlineExceeded, err)
	}
	return err
}

func splitSentences(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ".") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
