// Package chi exposes upload, chat and document management over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfchat/internal/domain"
	"github.com/kailas-cloud/pdfchat/internal/logger"
	"github.com/kailas-cloud/pdfchat/internal/metrics"
	healthuc "github.com/kailas-cloud/pdfchat/internal/usecase/health"
)

// DefaultMaxUploadBytes caps a single upload.
const DefaultMaxUploadBytes int64 = 32 << 20

// multipart parts above this size spill to disk.
const multipartMemory = 8 << 20

// Config tunes the HTTP layer.
type Config struct {
	APIKeys        []string
	MaxUploadBytes int64
}

// Server holds the HTTP handlers.
type Server struct {
	ingest    Ingester
	chat      Chatter
	documents Documents
	health    HealthChecker
	files     FileOpener
	maxUpload int64
	logger    *zap.Logger
}

// NewServer creates an HTTP API server. files may be nil when originals are served elsewhere.
func NewServer(
	ingest Ingester,
	chat Chatter,
	documents Documents,
	health HealthChecker,
	files FileOpener,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		ingest:    ingest,
		chat:      chat,
		documents: documents,
		health:    health,
		files:     files,
		maxUpload: maxUploadBytes,
		logger:    logger,
	}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/upload", s.Upload)
	r.Post("/chat", s.Chat)
	r.Delete("/sessions/{session_id}", s.ResetSession)
	r.Get("/list", s.ListDocuments)
	r.Delete("/delete/{filename}", s.DeleteDocument)
	if s.files != nil {
		r.Get("/files/{name}", s.GetFile)
	}
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// NewRouter builds the full middleware stack around the server's routes.
func NewRouter(s *Server, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer(s.logger))
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(BearerAuthMiddleware(cfg.APIKeys))
	r.Use(metrics.Middleware())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	s.Routes(r)
	return r
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message        string `json:"message"`
	FileName       string `json:"file_name"`
	FileURL        string `json:"file_url"`
	Pages          int    `json:"pages"`
	Chunks         int    `json:"chunks"`
	ReplacedChunks int    `json:"replaced_chunks"`
}

// Upload handles POST /upload (multipart field "file").
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "read upload: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(logger.With(r.Context(), zap.String("file", header.Filename)))
	r = r.WithContext(ctx)
	res, err := s.ingest.Ingest(ctx, header.Filename, data)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, UploadResponse{
		Message:        "File uploaded and processed successfully",
		FileName:       res.Name,
		FileURL:        res.Source,
		Pages:          res.Pages,
		Chunks:         res.Chunks,
		ReplacedChunks: res.Replaced,
	})
}

// ChatRequest is the body of POST /chat. Message is accepted as an alias of Query.
type ChatRequest struct {
	Query     string `json:"query"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Answer        string       `json:"answer"`
	Sources       []string     `json:"sources"`
	SourceDetails []SourceItem `json:"source_details"`
	Grounded      bool         `json:"grounded"`
}

// SourceItem is one shaped source of a grounded answer.
type SourceItem struct {
	SourceName string  `json:"source_name"`
	URL        string  `json:"url"`
	Page       int     `json:"page"`
	Section    string  `json:"section,omitempty"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

// Chat handles POST /chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	question := req.Query
	if question == "" {
		question = req.Message
	}

	ctx, usage := domain.NewContextWithUsage(logger.With(r.Context(), zap.String("session_id", req.SessionID)))
	r = r.WithContext(ctx)
	answer, err := s.chat.Ask(ctx, req.SessionID, question)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	details := make([]SourceItem, len(answer.Matches))
	for i, m := range answer.Matches {
		details[i] = SourceItem{
			SourceName: m.SourceName,
			URL:        m.Source,
			Page:       m.Page,
			Section:    m.Section,
			Snippet:    m.Snippet,
			Similarity: m.Similarity,
		}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:        answer.Text,
		Sources:       sources,
		SourceDetails: details,
		Grounded:      answer.Grounded,
	})
}

// ResetSession handles DELETE /sessions/{session_id}.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if !bindPath(w, r, "session_id", &sessionID) {
		return
	}
	s.chat.Reset(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// DocumentItem is one entry of GET /list.
type DocumentItem struct {
	FileName  string    `json:"file_name"`
	FileURL   string    `json:"file_url"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListResponse is returned by GET /list.
type ListResponse struct {
	Documents []DocumentItem `json:"documents"`
}

// ListDocuments handles GET /list?limit=N.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter limit: "+err.Error())
		return
	}

	entries, err := s.documents.List(r.Context(), derefInt(limit))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentItem, len(entries))
	for i, e := range entries {
		items[i] = DocumentItem{FileName: e.Name, FileURL: e.URL, Size: e.Size, UpdatedAt: e.UpdatedAt}
	}
	writeJSON(w, http.StatusOK, ListResponse{Documents: items})
}

// DeleteResponse is returned by DELETE /delete/{filename}.
type DeleteResponse struct {
	Message       string `json:"message"`
	DeletedChunks int    `json:"deleted_chunks"`
}

// DeleteDocument handles DELETE /delete/{filename}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	var filename string
	if !bindPath(w, r, "filename", &filename) {
		return
	}

	n, err := s.documents.Delete(r.Context(), filename)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{
		Message:       fmt.Sprintf("File %s deleted successfully", filename),
		DeletedChunks: n,
	})
}

// GetFile handles GET /files/{name}.
func (s *Server) GetFile(w http.ResponseWriter, r *http.Request) {
	var name string
	if !bindPath(w, r, "name", &name) {
		return
	}

	rc, entry, err := s.files.Open(r.Context(), name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	defer rc.Close()

	http.ServeContent(w, r, entry.Name, entry.UpdatedAt, rc)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// bindPath decodes a required path parameter, writing a 400 on failure.
func bindPath(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest,
			fmt.Sprintf("Invalid format for parameter %s: %s", name, err.Error()))
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if total, used := usage.Snapshot(); used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(total))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
