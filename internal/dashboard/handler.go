// internal/dashboard/handler.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/signalnine/logsentry/internal/analyzer"
	"github.com/signalnine/logsentry/internal/archive"
	"github.com/signalnine/logsentry/internal/history"
	"github.com/signalnine/logsentry/internal/logparser"
	"github.com/signalnine/logsentry/internal/protocol"
)

// HistoryItem is the list view of a stored analysis
type HistoryItem struct {
	ID        string                   `json:"id"`
	FileName  string                   `json:"fileName"`
	Timestamp int64                    `json:"timestamp"`
	Summary   protocol.AnalysisSummary `json:"summary"`
}

// Handler serves the dashboard API
type Handler struct {
	runner         *analyzer.Runner
	store          *history.Store
	archiver       archive.Archiver
	maxUploadBytes int64
	jobs           *jobTable

	// jobCtx outlives individual requests so uploads keep running after 202
	jobCtx context.Context
	wg     sync.WaitGroup
}

// NewHandler creates the dashboard API handler. Jobs stop when ctx is cancelled.
func NewHandler(ctx context.Context, runner *analyzer.Runner, store *history.Store, archiver archive.Archiver, maxUploadBytes int64) *Handler {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return &Handler{
		runner:         runner,
		store:          store,
		archiver:       archiver,
		maxUploadBytes: maxUploadBytes,
		jobs:           newJobTable(JobRetention),
		jobCtx:         ctx,
	}
}

// Routes builds the router
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Route("/api", func(rt chi.Router) {
		rt.Post("/analyses", h.handleUpload)
		rt.Get("/analyses", h.handleList)
		rt.Get("/analyses/{id}", h.handleGet)
		rt.Get("/jobs/{id}", h.handleJob)
	})
	return mux
}

// Wait blocks until every started job has finished
func (h *Handler) Wait() {
	h.wg.Wait()
}

// POST /api/analyses
// Multipart form with a "file" field holding the CSV.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if !isCSV(header.Filename, header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "Invalid file type. Please upload a CSV file.")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	entries, err := logparser.Parse(string(data))
	if err != nil {
		var fe *logparser.FormatError
		if errors.As(err, &fe) {
			writeError(w, http.StatusBadRequest, fe.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &Job{
		ID:        uuid.NewString(),
		FileName:  header.Filename,
		Entries:   len(entries),
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	h.jobs.add(job, job.StartedAt)
	log.Printf("Starting analysis job=%s reqid=%s file=%s entries=%d",
		job.ID, middleware.GetReqID(r.Context()), job.FileName, len(entries))

	h.wg.Add(1)
	go h.runJob(job.ID, header.Filename, entries, data)

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

func (h *Handler) runJob(jobID, fileName string, entries []protocol.LogEntry, raw []byte) {
	defer h.wg.Done()

	result, stats := h.runner.Run(h.jobCtx, fileName, entries, func(p float64) {
		h.jobs.update(jobID, func(j *Job) { j.Progress = p })
	})

	if stats.Cancelled {
		log.Printf("Job %s: cancelled with %d of %d entries unsent, not saved", jobID, stats.Skipped, len(entries))
		h.jobs.update(jobID, func(j *Job) {
			j.Status = JobCancelled
			j.Error = "analysis cancelled"
			j.Stats = &stats
			j.FinishedAt = time.Now()
		})
		return
	}

	if err := h.store.Append(context.WithoutCancel(h.jobCtx), result); err != nil {
		log.Printf("Job %s: store result: %v", jobID, err)
		h.jobs.update(jobID, func(j *Job) {
			j.Status = JobFailed
			j.Error = "failed to store result"
			j.Stats = &stats
			j.FinishedAt = time.Now()
		})
		return
	}

	archive.Best(context.WithoutCancel(h.jobCtx), h.archiver, result.ID, fileName, raw)

	h.jobs.update(jobID, func(j *Job) {
		j.Status = JobDone
		j.Progress = 100
		j.ResultID = result.ID
		j.Stats = &stats
		j.FinishedAt = time.Now()
	})
	log.Printf("Finished analysis job=%s result=%s total=%d malicious=%d benign=%d",
		jobID, result.ID, result.Summary.Total, result.Summary.Malicious, result.Summary.Benign)
}

// GET /api/jobs/{id}
func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GET /api/analyses
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		log.Printf("History error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	items := make([]HistoryItem, 0, len(list))
	for _, a := range list {
		items = append(items, HistoryItem{ID: a.ID, FileName: a.FileName, Timestamp: a.Timestamp, Summary: a.Summary})
	}
	writeJSON(w, http.StatusOK, items)
}

// GET /api/analyses/{id}?filter=all|benign|malicious&q=term
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	filter := strings.ToLower(r.URL.Query().Get("filter"))
	switch filter {
	case "", protocol.FilterAll, string(protocol.Benign), string(protocol.Malicious):
	default:
		writeError(w, http.StatusBadRequest, "filter must be one of all, benign, malicious")
		return
	}

	result, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		log.Printf("History error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	result.Results = protocol.FilterResults(result.Results, filter, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, result)
}

func isCSV(fileName, contentType string) bool {
	if strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(contentType), "text/csv")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
