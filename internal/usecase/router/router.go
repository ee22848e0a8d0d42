// Package router decides whether a query is general conversation or a document question.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/vector"
	"github.com/kailas-cloud/pdfchat/internal/metrics"
)

// Routing strategies.
const (
	StrategyKeyword   = "keyword"
	StrategyEmbedding = "embedding"
)

// DefaultThreshold is the embedding similarity at or above which a query counts as general.
const DefaultThreshold = 0.80

// DefaultKeywords are greetings, thanks and acknowledgements.
var DefaultKeywords = []string{
	"hello", "hi", "hey",
	"good morning", "good afternoon", "good evening",
	"thanks", "thank you",
	"bye", "goodbye",
	"ok", "okay",
	"how are you",
}

// DefaultPhrases are the reference utterances for the embedding strategy.
var DefaultPhrases = []string{
	"hello",
	"hi there",
	"how are you?",
	"good morning",
	"thank you",
	"thanks a lot",
	"goodbye",
	"what's up?",
	"nice to meet you",
	"who are you?",
}

// Router classifies queries.
type Router interface {
	IsGeneral(ctx context.Context, query string) (bool, error)
}

// Config selects and tunes a strategy.
type Config struct {
	Strategy  string
	Threshold float64
	Keywords  []string
	Phrases   []string
}

// New builds the router named by cfg.Strategy. The embedding strategy embeds
// its reference phrases here, so provider failures surface at startup.
func New(ctx context.Context, cfg Config, embedder domain.Embedder, logger *zap.Logger) (Router, error) {
	switch cfg.Strategy {
	case "", StrategyKeyword:
		return NewKeywordRouter(cfg.Keywords), nil
	case StrategyEmbedding:
		return NewEmbeddingRouter(ctx, embedder, cfg.Phrases, cfg.Threshold, logger)
	default:
		return nil, domain.NewValidationError("router.strategy", fmt.Sprintf("unknown strategy %q", cfg.Strategy))
	}
}

// KeywordRouter matches whole words and phrases, case-insensitively.
type KeywordRouter struct {
	re *regexp.Regexp
}

// NewKeywordRouter compiles keywords into one word-bounded pattern. Empty keywords fall back to DefaultKeywords.
func NewKeywordRouter(keywords []string) *KeywordRouter {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		// "thank  you" and "thank you" should both match
		quoted = append(quoted, strings.Join(strings.Fields(regexp.QuoteMeta(k)), `\s+`))
	}
	return &KeywordRouter{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// IsGeneral reports whether query contains any keyword. It never fails.
func (r *KeywordRouter) IsGeneral(_ context.Context, query string) (bool, error) {
	general := r.re.MatchString(query)
	metrics.RouteDecisionsTotal.WithLabelValues(StrategyKeyword, decision(general)).Inc()
	return general, nil
}

// EmbeddingRouter compares the query embedding with pre-embedded reference phrases.
type EmbeddingRouter struct {
	embedder  domain.Embedder
	refs      [][]float32
	threshold float64
	logger    *zap.Logger
}

// NewEmbeddingRouter embeds phrases once. threshold must lie in [0.5, 1]; 0 selects DefaultThreshold.
func NewEmbeddingRouter(
	ctx context.Context, embedder domain.Embedder, phrases []string, threshold float64, logger *zap.Logger,
) (*EmbeddingRouter, error) {
	if embedder == nil {
		return nil, domain.NewValidationError("router.embedder", "required for embedding strategy")
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0.5 || threshold > 1 {
		return nil, domain.NewValidationError("router.threshold", "must be in [0.5, 1]")
	}
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}

	res, err := domain.EmbedBatch(ctx, embedder, phrases)
	if err != nil {
		return nil, fmt.Errorf("embed reference phrases: %w", err)
	}

	logger.Info("Embedding router ready",
		zap.Int("phrases", len(phrases)),
		zap.Float64("threshold", threshold),
	)

	return &EmbeddingRouter{
		embedder:  embedder,
		refs:      res.Embeddings,
		threshold: threshold,
		logger:    logger,
	}, nil
}

// IsGeneral embeds query and checks its best similarity against the threshold.
func (r *EmbeddingRouter) IsGeneral(ctx context.Context, query string) (bool, error) {
	res, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return false, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)

	best, _, err := vector.MaxCosine(res.Embedding, r.refs)
	if err != nil {
		return false, fmt.Errorf("compare query: %w", err)
	}

	general := best >= r.threshold
	r.logger.Debug("Query routed",
		zap.Float64("similarity", best),
		zap.Bool("general", general),
	)
	metrics.RouteDecisionsTotal.WithLabelValues(StrategyEmbedding, decision(general)).Inc()
	return general, nil
}

func decision(general bool) string {
	if general {
		return "general"
	}
	return "document"
}
