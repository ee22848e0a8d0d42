package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/db"
	"github.com/kailas-cloud/pdfchat/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	vec        []float32
	tokens     int
	err        error
	embedCalls int
	batchCalls int
	batchTexts []string
	healthErr  error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, PromptTokens: m.tokens, TotalTokens: m.tokens}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchTexts = append(m.batchTexts, texts...)
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vec
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: m.tokens * len(texts),
		TotalTokens:  m.tokens * len(texts),
	}, nil
}

func (m *mockEmbedder) HealthCheck(_ context.Context) error { return m.healthErr }

type mockKV struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	readErr error
	sets    int
}

func newMockKV() *mockKV {
	return &mockKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) MGet(_ context.Context, keys []string) ([][]byte, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.sets++
	m.data[key] = value
	return nil
}

func (m *mockKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.ttls[key] = ttl
	return m.Set(ctx, key, value)
}

func newCached(inner *mockEmbedder, kv *mockKV, opts ...Option) *CachedEmbedder {
	return New(inner, kv, "text-embedding-3-small", nil, zap.NewNop(), opts...)
}

// --- Embed ---

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, 0.2, 0.3}, tokens: 10}
	kv := newMockKV()
	ce := newCached(inner, kv)
	ctx := context.Background()

	first, err := ce.Embed(ctx, "revenue grew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TotalTokens != 10 {
		t.Errorf("miss should report provider tokens, got %d", first.TotalTokens)
	}

	second, err := ce.Embed(ctx, "revenue grew")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.TotalTokens != 0 {
		t.Errorf("hit should report 0 tokens, got %d", second.TotalTokens)
	}
	if len(second.Embedding) != 3 || second.Embedding[2] != 0.3 {
		t.Errorf("unexpected cached vector %v", second.Embedding)
	}
	if inner.embedCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", inner.embedCalls)
	}
}

func TestEmbed_KeyNamespacedByModel(t *testing.T) {
	kv := newMockKV()
	inner := &mockEmbedder{vec: []float32{1}}

	_, _ = New(inner, kv, "model-a", nil, zap.NewNop()).Embed(context.Background(), "same")
	_, _ = New(inner, kv, "model-b", nil, zap.NewNop()).Embed(context.Background(), "same")

	if inner.embedCalls != 2 {
		t.Errorf("different models must not share entries: %d calls", inner.embedCalls)
	}
	for k := range kv.data {
		if !strings.HasPrefix(k, "pdfchat:emb_cache:model-") {
			t.Errorf("unexpected key %q", k)
		}
	}
}

func TestEmbed_CacheReadErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}}
	kv := newMockKV()
	kv.readErr = errors.New("connection reset")

	if _, err := newCached(inner, kv).Embed(context.Background(), "x"); err != nil {
		t.Fatalf("cache failure must not fail the call: %v", err)
	}
	if inner.embedCalls != 1 {
		t.Errorf("expected provider call, got %d", inner.embedCalls)
	}
}

func TestEmbed_CorruptEntryIsMiss(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}}
	kv := newMockKV()
	ce := newCached(inner, kv)
	kv.data[ce.cacheKey("x")] = []byte{1, 2, 3}

	res, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.embedCalls != 1 || res.Embedding[0] != 1 {
		t.Errorf("corrupt entry should be re-embedded: calls=%d vec=%v", inner.embedCalls, res.Embedding)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrProvider}

	_, err := newCached(inner, newMockKV()).Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestEmbed_WithTTL(t *testing.T) {
	kv := newMockKV()
	ce := newCached(&mockEmbedder{vec: []float32{1}}, kv, WithTTL(time.Hour))

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kv.ttls[ce.cacheKey("x")] != time.Hour {
		t.Errorf("expected TTL to be applied, got %v", kv.ttls)
	}
}

// --- BatchEmbed ---

func TestBatchEmbed_OnlyMissesReachProvider(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.5}, tokens: 3}
	kv := newMockKV()
	ce := newCached(inner, kv)
	kv.data[ce.cacheKey("hit")] = db.EncodeVector([]float32{0.9})

	res, err := ce.BatchEmbed(context.Background(), []string{"miss1", "hit", "miss2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.Embeddings[1][0] != 0.9 {
		t.Errorf("expected cached vector at index 1, got %v", res.Embeddings[1])
	}
	if res.Embeddings[0][0] != 0.5 || res.Embeddings[2][0] != 0.5 {
		t.Errorf("expected provider vectors for misses, got %v", res.Embeddings)
	}
	if inner.batchCalls != 1 || strings.Join(inner.batchTexts, ",") != "miss1,miss2" {
		t.Errorf("expected one batch of misses, got %d calls %v", inner.batchCalls, inner.batchTexts)
	}
	if res.TotalTokens != 6 {
		t.Errorf("expected 6 tokens, got %d", res.TotalTokens)
	}
	if kv.sets != 2 {
		t.Errorf("expected 2 cache writes, got %d", kv.sets)
	}
}

func TestBatchEmbed_AllHits(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1}}
	kv := newMockKV()
	ce := newCached(inner, kv)
	for _, s := range []string{"a", "b"} {
		kv.data[ce.cacheKey(s)] = db.EncodeVector([]float32{0.9, 0.8})
	}

	res, err := ce.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// all hits: no tokens, no inner calls
	if res.TotalTokens != 0 || inner.batchCalls != 0 {
		t.Errorf("tokens=%d batchCalls=%d", res.TotalTokens, inner.batchCalls)
	}
}

func TestBatchEmbed_ReadErrorEmbedsEverything(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}}
	kv := newMockKV()
	kv.readErr = errors.New("timeout")

	res, err := newCached(inner, kv).BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 || len(inner.batchTexts) != 2 {
		t.Errorf("expected both texts embedded, got %v", inner.batchTexts)
	}
}

func TestBatchEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("api down")}

	if _, err := newCached(inner, newMockKV()).BatchEmbed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error from inner batch embedder")
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	res, err := newCached(&mockEmbedder{}, newMockKV()).BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Errorf("got %+v, %v", res, err)
	}
}

func TestHealthCheck_Passthrough(t *testing.T) {
	inner := &mockEmbedder{healthErr: domain.ErrProvider}

	if err := newCached(inner, newMockKV()).HealthCheck(context.Background()); !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected inner health error, got %v", err)
	}
}
