package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/config"
)

const testDims = 8

// fakeOpenAI serves /embeddings, /chat/completions and /models.
type fakeOpenAI struct {
	embedCalls atomic.Int32
	chatCalls  atomic.Int32
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/embeddings"):
		f.embedCalls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, testDims)
			for j := range vec {
				vec[j] = float32(j+1) / 10
			}
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list", "data": data, "model": "test-embed",
			"usage": map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		f.chatCalls.Add(1)
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-chat",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hi there!"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	case strings.HasSuffix(r.URL.Path, "/models"):
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestApp(t *testing.T) (*App, *fakeOpenAI) {
	t.Helper()
	fake := &fakeOpenAI{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	var cfg config.Config
	cfg.Index.Dimensions = testDims
	cfg.Embedding.APIKey = "sk-test"
	cfg.Embedding.BaseURL = server.URL
	cfg.Embedding.Model = "test-embed"
	cfg.LLM.Model = "test-chat"
	cfg.Blob.Dir = filepath.Join(t.TempDir(), "files")
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	a, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a, fake
}

func postChat(t *testing.T, h http.Handler, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("chat: status %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestApp_GeneralChatSkipsRetrieval(t *testing.T) {
	a, fake := newTestApp(t)

	resp := postChat(t, a.Handler(), `{"query": "hello"}`)
	if resp["answer"] != "Hi there!" || resp["grounded"] != false {
		t.Errorf("unexpected response %v", resp)
	}
	if details, ok := resp["source_details"].([]any); !ok || len(details) != 0 {
		t.Errorf("expected empty source_details, got %v", resp["source_details"])
	}
	if fake.embedCalls.Load() != 0 {
		t.Errorf("greeting must not be embedded, got %d calls", fake.embedCalls.Load())
	}
	if fake.chatCalls.Load() != 1 {
		t.Errorf("expected one completion, got %d", fake.chatCalls.Load())
	}
}

func TestApp_DocumentQuestionOnEmptyIndexFallsBack(t *testing.T) {
	a, fake := newTestApp(t)

	resp := postChat(t, a.Handler(), `{"query": "what does the report say about revenue", "session_id": "s1"}`)
	if resp["grounded"] != false {
		t.Errorf("empty index cannot ground an answer: %v", resp)
	}
	if fake.embedCalls.Load() == 0 {
		t.Error("document question must be embedded")
	}
}

func TestApp_HealthAndList(t *testing.T) {
	a, _ := newTestApp(t)
	h := a.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("health: status %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/list", http.NoBody))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"documents":[]`) {
		t.Errorf("list: status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestApp_UnknownIndexDriver(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()
	cfg.Index.Driver = "pinecone"

	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
