// Package app assembles the pipeline from configuration. It is shared by the
// server and the batch ingestion command.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/config"
	dbpostgres "github.com/kailas-cloud/pdfchat/internal/db/postgres"
	dbredis "github.com/kailas-cloud/pdfchat/internal/db/redis"
	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/domain/conversation"
	"github.com/kailas-cloud/pdfchat/internal/domain/text"
	"github.com/kailas-cloud/pdfchat/internal/metrics"
	"github.com/kailas-cloud/pdfchat/internal/parser"
	"github.com/kailas-cloud/pdfchat/internal/repository/blob"
	"github.com/kailas-cloud/pdfchat/internal/repository/embcache"
	memindex "github.com/kailas-cloud/pdfchat/internal/repository/index/memory"
	pgindex "github.com/kailas-cloud/pdfchat/internal/repository/index/postgres"
	redisindex "github.com/kailas-cloud/pdfchat/internal/repository/index/redis"
	chiTransport "github.com/kailas-cloud/pdfchat/internal/transport/chi"
	"github.com/kailas-cloud/pdfchat/internal/transport/langchain"
	openaiEmb "github.com/kailas-cloud/pdfchat/internal/transport/openai"
	chatuc "github.com/kailas-cloud/pdfchat/internal/usecase/chat"
	documentuc "github.com/kailas-cloud/pdfchat/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/pdfchat/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/pdfchat/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/pdfchat/internal/usecase/ingest"
	retrievaluc "github.com/kailas-cloud/pdfchat/internal/usecase/retrieval"
	routeruc "github.com/kailas-cloud/pdfchat/internal/usecase/router"
)

// App holds the assembled services.
type App struct {
	Ingest    *ingestuc.Service
	Chat      *chatuc.Service
	Documents *documentuc.Service
	Health    *healthuc.Service
	Blobs     *blob.FS
	Index     domain.VectorIndex

	cfg     config.Config
	logger  *zap.Logger
	closers []func()
}

// New connects the configured stores and wires every service. Close releases the connections.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var redisStore *dbredis.Store
	if cfg.Index.Driver == config.IndexDriverRedis || cfg.Embedding.Cache {
		if redisStore, err = a.connectRedis(ctx); err != nil {
			return nil, err
		}
	}

	if a.Index, err = a.openIndex(ctx, redisStore); err != nil {
		return nil, err
	}

	if a.Blobs, err = blob.NewFS(cfg.Blob.Dir, cfg.Blob.BaseURL); err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	base := a.buildEmbedder(redisStore)
	docEmbedder, queryEmbedder := withInstruction(base, cfg.Embedding.DocumentInstruction),
		withInstruction(base, cfg.Embedding.QueryInstruction)

	router, err := routeruc.New(ctx, routeruc.Config{
		Strategy:  cfg.Router.Strategy,
		Threshold: cfg.Router.Threshold,
		Keywords:  cfg.Router.Keywords,
		Phrases:   cfg.Router.Phrases,
	}, queryEmbedder, logger)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	generator, err := langchain.NewGenerator(langchain.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		SystemPrompt: cfg.LLM.SystemPrompt,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	retriever := retrievaluc.New(router, a.Index, queryEmbedder, retrievaluc.Config{
		Buffer:           cfg.Retrieval.Buffer,
		IndexMinScore:    *cfg.Retrieval.IndexMinScore,
		RelevanceFloor:   cfg.Retrieval.RelevanceFloor,
		SnippetMinLength: cfg.Retrieval.SnippetMinLength,
		MaxSources:       cfg.Retrieval.MaxSources,
		Timeout:          time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
	}, logger)

	a.Chat = chatuc.New(retriever, generator,
		conversation.NewStore(cfg.Conversation.MaxTurns, cfg.Conversation.MaxSessions), cfg.Retrieval.TopK, logger)

	a.Ingest = ingestuc.New(
		a.Blobs, parser.NewPDF(logger), a.Index, docEmbedder,
		text.NewNormalizer(cfg.Normalizer.MinLineLength, *cfg.Normalizer.KeepHeadings),
		text.NewChunker(cfg.Chunker.MaxSize, cfg.Chunker.Overlap),
		ingestuc.Config{BatchSize: cfg.Ingest.BatchSize, Concurrency: cfg.Ingest.Concurrency},
		logger,
	)

	a.Documents = documentuc.New(a.Blobs, a.Index, logger)
	a.Health = healthuc.New(a.Index, base, logger)

	return a, nil
}

// Handler builds the HTTP router.
func (a *App) Handler() http.Handler {
	srv := chiTransport.NewServer(a.Ingest, a.Chat, a.Documents, a.Health, a.Blobs,
		int64(a.cfg.HTTP.MaxUploadMB)<<20, a.logger)
	return chiTransport.NewRouter(srv, chiTransport.Config{APIKeys: a.cfg.Auth.APIKeys})
}

// Close releases store connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) connectRedis(ctx context.Context) (*dbredis.Store, error) {
	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    a.cfg.Redis.Addrs,
		Username: a.cfg.Redis.Username,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	if err := store.WaitForReady(ctx, time.Duration(a.cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	a.logger.Info("Connected to redis", zap.Strings("addrs", a.cfg.Redis.Addrs))
	return store, nil
}

func (a *App) openIndex(ctx context.Context, redisStore *dbredis.Store) (domain.VectorIndex, error) {
	cfg := a.cfg.Index
	switch cfg.Driver {
	case config.IndexDriverMemory:
		idx, err := memindex.New(cfg.PersistPath, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("open memory index: %w", err)
		}
		return idx, nil

	case config.IndexDriverRedis:
		idx := redisindex.New(redisStore, redisindex.Config{
			Name:               cfg.Name,
			Dimensions:         cfg.Dimensions,
			HNSWM:              cfg.HNSWM,
			HNSWEFConstruction: cfg.HNSWEFConstruct,
		})
		if err := idx.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure redis index: %w", err)
		}
		return idx, nil

	case config.IndexDriverPostgres:
		bdb, err := a.connectPostgres(ctx)
		if err != nil {
			return nil, err
		}
		idx, err := pgindex.New(bdb, pgindex.Config{
			Table:              cfg.Name,
			Dimensions:         cfg.Dimensions,
			HNSWM:              cfg.HNSWM,
			HNSWEFConstruction: cfg.HNSWEFConstruct,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres index: %w", err)
		}
		if err := idx.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres index: %w", err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

func (a *App) connectPostgres(ctx context.Context) (*bun.DB, error) {
	bdb, err := dbpostgres.Open(dbpostgres.Config{DSN: a.cfg.Postgres.DSN, Debug: a.cfg.Postgres.Debug})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := bdb.Close(); err != nil {
			a.logger.Warn("Close postgres", zap.Error(err))
		}
	})

	if err := dbpostgres.WaitForReady(ctx, bdb, time.Duration(a.cfg.Postgres.ReadinessTimeout)*time.Second); err != nil {
		return nil, fmt.Errorf("postgres not ready: %w", err)
	}
	a.logger.Info("Connected to postgres")
	return bdb, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func (a *App) buildEmbedder(redisStore *dbredis.Store) *embeddinguc.InstrumentedEmbedder {
	cfg := a.cfg.Embedding
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     a.logger,
	})

	var embedder domain.Embedder = base
	if cfg.Cache && redisStore != nil {
		embedder = embcache.New(base, redisStore, cfg.Model, metrics.EmbeddingCacheTotal, a.logger,
			embcache.WithTTL(time.Duration(cfg.CacheTTLSec)*time.Second))
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, a.cfg.Index.Dimensions, a.logger).
		WithMaxBatchSize(cfg.MaxBatchSize)
}

// withInstruction prefixes texts before embedding. Outermost, so the cache key includes it.
func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}
