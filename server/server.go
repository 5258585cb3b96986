// Package server is the HTTP surface over the scan pipeline: multipart
// uploads, job status polling, deck exports, health and metrics. Handlers
// stay thin and never run OCR inline; all pipeline work happens on the job
// manager's workers.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wudi/deckscan/carddb"
	"github.com/wudi/deckscan/deck"
	"github.com/wudi/deckscan/export"
	"github.com/wudi/deckscan/job"
	"github.com/wudi/deckscan/observability"
)

// uploadSlack is the multipart envelope allowance on top of the image cap.
const uploadSlack = 1 << 20

// Server routes API requests to the job manager.
type Server struct {
	manager   *job.Manager
	corpus    *carddb.Corpus
	maxUpload int64
	logger    *zap.Logger
}

// New builds a server over the manager and corpus. maxUpload caps the
// accepted image payload in bytes.
func New(manager *job.Manager, corpus *carddb.Corpus, maxUpload int64, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Server{manager: manager, corpus: corpus, maxUpload: maxUpload, logger: logger}
}

// Router wires the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/api/ocr/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/ocr/status/{jobId}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/export/formats", s.handleFormats).Methods(http.MethodGet)
	r.HandleFunc("/api/export/{target}", s.handleExportDeck).Methods(http.MethodPost)
	r.HandleFunc("/api/export/{jobId}/{target}", s.handleExportJob).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	return r
}

type uploadResponse struct {
	JobID  string `json:"job_id"`
	Cached bool   `json:"cached"`
}

// handleUpload accepts a multipart image upload and answers with the job
// that owns it, existing or new.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+uploadSlack)
	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, deck.Wrap(deck.CodeBadImage, err, "multipart field %q required", "file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.writeError(w, deck.Wrap(deck.CodeBadImage, err, "read upload"))
		return
	}
	if int64(len(data)) > s.maxUpload {
		s.writeError(w, deck.E(deck.CodeBadImage, "image exceeds %d byte limit", s.maxUpload))
		return
	}

	id, cached, err := s.manager.Submit(r.Context(), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{JobID: id, Cached: cached})
}

type statusResponse struct {
	ID        string        `json:"id"`
	State     job.State     `json:"state"`
	Progress  int           `json:"progress"`
	Stage     string        `json:"stage,omitempty"`
	Result    *job.Result   `json:"result,omitempty"`
	Error     *errorPayload `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["jobId"]
	j, err := s.manager.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := statusResponse{
		ID:        j.ID,
		State:     j.State,
		Progress:  j.Progress,
		Stage:     j.Stage,
		Result:    j.Result,
		UpdatedAt: j.UpdatedAt,
	}
	if j.ErrorCode != "" {
		resp.Error = &errorPayload{Code: string(j.ErrorCode), Message: j.ErrorMessage}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExportDeck renders a deck supplied in the request body, no job
// involved. The CI fixture suite drives the exporters through this route.
func (s *Server) handleExportDeck(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(mux.Vars(r)["target"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	d, err := export.ParseDeckJSON(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	text, err := export.Render(format, d)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeText(w, text)
}

// handleExportJob renders a completed job's deck.
func (s *Server) handleExportJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	format, err := export.ParseFormat(vars["target"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	text, err := s.manager.Export(r.Context(), vars["jobId"], format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeText(w, text)
}

type formatInfo struct {
	ID      string `json:"id"`
	Example string `json:"example"`
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	examples := map[export.Format]string{
		export.FormatMTGA:      "4 Lightning Bolt (2XM) 129",
		export.FormatMoxfield:  "SB: 2 Negate",
		export.FormatArchidekt: "4x Lightning Bolt",
		export.FormatTappedOut: "4 Lightning Bolt",
	}
	out := make([]formatInfo, 0, len(examples))
	for _, f := range export.Formats() {
		out = append(out, formatInfo{ID: string(f), Example: examples[f]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": out})
}

type healthResponse struct {
	Status      string `json:"status"`
	CorpusReady bool   `json:"corpus_ready"`
	CorpusCards int    `json:"corpus_cards"`
	Store       string `json:"store"`
}

// handleHealth reports readiness: the corpus must be built and the job
// store reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok"}
	if s.corpus != nil {
		resp.CorpusReady = s.corpus.Ready()
		resp.CorpusCards = s.corpus.Size()
	}
	if err := s.manager.Ping(r.Context()); err != nil {
		resp.Store = err.Error()
	}
	if !resp.CorpusReady || resp.Store != "ok" {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// writeError maps a pipeline error onto its HTTP status and the JSON error
// envelope.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, job.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorPayload{
			Code:    "JOB_NOT_FOUND",
			Message: "no such job",
		}})
		return
	}
	code := deck.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case deck.CodeBadImage, deck.CodeExportInvalid:
		status = http.StatusBadRequest
	case deck.CodeRateLimit:
		status = http.StatusTooManyRequests
	case deck.CodeTimeout:
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: errorPayload{Code: string(code), Message: publicMessage(err)}})
}

// publicMessage strips wrapped internals off classified errors so responses
// carry the classification message only.
func publicMessage(err error) string {
	var de *deck.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
