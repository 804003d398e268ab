package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docuchat/rag-server/internal/bus"
	"github.com/docuchat/rag-server/internal/cache"
	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// processTimeout bounds background processing of one upload.
const processTimeout = 10 * time.Minute

// Handler provides HTTP handlers for document upload.
type Handler struct {
	processor *Processor
	tasks     *TaskStore
	cache     cache.Cache
	bus       bus.Bus
	uploadDir string
	maxBytes  int64
	log       *logger.Logger
}

// NewHandler creates an upload handler. Cache and bus may be nil.
func NewHandler(processor *Processor, tasks *TaskStore, c cache.Cache, b bus.Bus, cfg config.IngestConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		processor: processor,
		tasks:     tasks,
		cache:     c,
		bus:       b,
		uploadDir: cfg.UploadDir,
		maxBytes:  cfg.MaxFileBytes,
		log:       log,
	}
}

// RegisterRoutes registers upload routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/upload", h.handleUpload)
	mux.HandleFunc("GET /api/v1/upload/{task_id}", h.handleTaskStatus)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		errors.WriteError(w, errors.ValidationError("file exceeds size limit or multipart body is malformed"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, errors.ValidationError("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !AllowedExtensions[ext] {
		errors.WriteError(w, errors.ValidationError("unsupported file extension: "+ext))
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		errors.WriteError(w, errors.InternalError("failed to create upload directory", err))
		return
	}

	task := h.tasks.Create(header.Filename, DocIDFor(header.Filename))

	path := filepath.Join(h.uploadDir, task.ID+ext)
	if err := saveUpload(path, file); err != nil {
		h.tasks.MarkFailed(task.ID, err)
		errors.WriteError(w, errors.InternalError("failed to store uploaded file", err))
		return
	}

	go h.process(task, path)

	writeJSON(w, http.StatusAccepted, task)
}

func (h *Handler) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.PathValue("task_id"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// process runs in the background after the upload response is sent.
func (h *Handler) process(task Task, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	defer os.Remove(path)

	h.tasks.MarkProcessing(task.ID)

	chunks, err := h.processor.Process(ctx, task.DocID, task.Filename, path)
	if err != nil {
		h.tasks.MarkFailed(task.ID, err)
		h.log.Error("ingestion failed", "task_id", task.ID, "filename", task.Filename, "error", err)
		return
	}

	h.tasks.MarkCompleted(task.ID, chunks)
	h.log.Info("document ingested", "task_id", task.ID, "doc_id", task.DocID, "chunks", chunks)

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.log.Warn("answer cache invalidation failed", "error", err)
		}
	}

	if h.bus != nil {
		event := bus.NewEvent("document.ingested", "ingest", map[string]interface{}{
			"doc_id":         task.DocID,
			"filename":       task.Filename,
			"chunks_created": chunks,
		})
		if err := h.bus.Publish(ctx, bus.TopicDocumentIngested, event); err != nil {
			h.log.Warn("failed to publish ingestion event", "error", err)
		}
	}
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
