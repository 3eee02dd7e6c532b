// Package httpapi exposes the document and chat pipeline over a chi router.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/paperqa/paperqa/internal/domain"
	"github.com/paperqa/paperqa/internal/domain/chunk"
	"github.com/paperqa/paperqa/internal/reader"
	chatuc "github.com/paperqa/paperqa/internal/usecase/chat"
	filesuc "github.com/paperqa/paperqa/internal/usecase/files"
	healthuc "github.com/paperqa/paperqa/internal/usecase/health"
	ingestuc "github.com/paperqa/paperqa/internal/usecase/ingest"
)

// maxUploadMemory bounds the multipart form buffer; larger parts spill to disk.
const maxUploadMemory = 32 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the usecase services into HTTP handlers.
type Server struct {
	chat          *chatuc.Service
	ingest        *ingestuc.Service
	files         *filesuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	chunkSize     int
	chunkOverlap  int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chat *chatuc.Service,
	ingest *ingestuc.Service,
	files *filesuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
	chunkSize, chunkOverlap int,
) *Server {
	s := &Server{
		chat:         chat,
		ingest:       ingest,
		files:        files,
		health:       health,
		logger:       logger,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, "unsupported_format"),
		sentinelHandler(domain.ErrDuplicateFilename, http.StatusConflict, "duplicate_filename"),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrGenerationProvider, http.StatusBadGateway, "generation_provider_error"),
		sentinelHandler(domain.ErrStoreRead, http.StatusBadGateway, "store_error"),
		sentinelHandler(domain.ErrStoreWrite, http.StatusBadGateway, "store_error"),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, "timeout"),
	}
	return s
}

// Routes mounts all handlers under /api.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/chat/reset", s.handleChatReset)
		r.Post("/files/upload", s.handleUpload)
		r.Get("/files", s.handleListFiles)
		r.Delete("/files/{fileID}", s.handleDeleteFile)
		r.Get("/health", s.handleHealth)
	})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	answer, err := s.chat.Ask(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleChatReset handles POST /api/chat/reset.
func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}
	s.chat.Reset(req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

type uploadFileResult struct {
	Filename  string                 `json:"filename"`
	FileID    string                 `json:"file_id,omitempty"`
	Submitted int                    `json:"submitted"`
	Uploaded  []domain.UploadedChunk `json:"uploaded"`
	Complete  bool                   `json:"complete"`
	Error     *errorResponse         `json:"error,omitempty"`
}

type uploadResponse struct {
	Files []uploadFileResult `json:"files"`
}

// handleUpload handles POST /api/files/upload. Each part of the multipart
// "files" field is processed independently: one bad file never blocks the
// rest of the upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "no files provided")
		return
	}

	resp := uploadResponse{Files: make([]uploadFileResult, 0, len(headers))}
	for _, fh := range headers {
		resp.Files = append(resp.Files, s.processUpload(r, fh))
	}
	writeJSON(w, http.StatusOK, resp)
}

// processUpload runs the full pipeline for one uploaded file: extension
// gate, text extraction, chunking, ingestion. Failures land in the
// per-file result instead of failing the request.
func (s *Server) processUpload(r *http.Request, fh *multipart.FileHeader) uploadFileResult {
	res := uploadFileResult{Filename: fh.Filename}

	fail := func(err error) uploadFileResult {
		s.logger.Warn("file upload failed",
			zap.String("filename", fh.Filename),
			zap.Error(err),
		)
		res.Error = &errorResponse{Code: errorCode(err), Message: safeDomainMessage(err)}
		return res
	}

	if !reader.Supported(fh.Filename) {
		return fail(fmt.Errorf("%s: %w", fh.Filename, domain.ErrUnsupportedFormat))
	}

	f, err := fh.Open()
	if err != nil {
		return fail(fmt.Errorf("open upload: %w: %w", err, domain.ErrValidation))
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return fail(fmt.Errorf("read upload: %w: %w", err, domain.ErrValidation))
	}

	text, err := reader.Extract(data, fh.Filename)
	if err != nil {
		return fail(err)
	}

	chunks := chunk.Split(text, fh.Filename, s.chunkSize, s.chunkOverlap)
	res.Submitted = len(chunks)

	report, err := s.ingest.Ingest(r.Context(), fh.Filename, chunks)
	if err != nil {
		return fail(err)
	}

	res.FileID = report.FileID
	res.Uploaded = report.Uploaded
	if res.Uploaded == nil {
		res.Uploaded = []domain.UploadedChunk{}
	}
	res.Complete = report.Complete()
	return res
}

// handleListFiles handles GET /api/files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	groups, err := s.files.ListGrouped(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if groups == nil {
		groups = []domain.FileGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": groups})
}

// handleDeleteFile handles DELETE /api/files/{fileID}.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if err := s.files.Delete(r.Context(), fileID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrUnsupportedFormat,
		domain.ErrDuplicateFilename,
		domain.ErrEmbeddingProvider,
		domain.ErrGenerationProvider,
		domain.ErrStoreRead,
		domain.ErrStoreWrite,
		domain.ErrTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// errorCode maps a usecase error to a wire error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, domain.ErrDuplicateFilename):
		return "duplicate_filename"
	case errors.Is(err, domain.ErrValidation):
		return "validation_failed"
	case errors.Is(err, domain.ErrEmbeddingProvider):
		return "embedding_provider_error"
	case errors.Is(err, domain.ErrGenerationProvider):
		return "generation_provider_error"
	case errors.Is(err, domain.ErrStoreRead), errors.Is(err, domain.ErrStoreWrite):
		return "store_error"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "internal_error"
	}
}

// handleDomainError maps a usecase error to an HTTP response.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			s.logger.Warn("domain error", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
