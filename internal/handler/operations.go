// Package handler provides HTTP handlers for the operational API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/outbox"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

// OperationHandler exposes the pending-operations retry subsystem.
type OperationHandler struct {
	store        outbox.Store
	orchestrator *outbox.Orchestrator
	logger       *logger.Logger
}

// NewOperationHandler creates a new operation handler.
func NewOperationHandler(store outbox.Store, orch *outbox.Orchestrator, log *logger.Logger) *OperationHandler {
	return &OperationHandler{
		store:        store,
		orchestrator: orch,
		logger:       log,
	}
}

// Routes mounts the operation endpoints on a chi router.
func (h *OperationHandler) Routes(r chi.Router) {
	r.Get("/status", h.Status)
	r.Get("/list", h.List)
	r.Get("/failed/list", h.ListFailed)
	r.Post("/retry-all-failed", h.RetryAllFailed)
	r.Post("/process", h.Process)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/retry", h.Retry)
	r.Post("/{id}/reset", h.Reset)
}

// Status handles GET /api/v1/operations/status
func (h *OperationHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		h.logger.Error("failed to read operation counts")
		writeError(w, http.StatusInternalServerError, "failed to read operation counts")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// List handles GET /api/v1/operations/list?status=&limit=&offset=
func (h *OperationHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.OperationStatus(r.URL.Query().Get("status"))
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be one of pending, processing, completed, failed")
		return
	}

	limit := queryInt(r, "limit", 50, 1, 500)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	ops, err := h.store.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list operations")
		writeError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	if ops == nil {
		ops = []model.PendingOperation{}
	}

	writeJSON(w, http.StatusOK, model.ListOperationsResponse{
		Operations: ops,
		Count:      len(ops),
		Status:     status,
		Limit:      limit,
		Offset:     offset,
	})
}

// ListFailed handles GET /api/v1/operations/failed/list?limit=
func (h *OperationHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1, 500)

	ops, err := h.store.List(r.Context(), model.StatusFailed, limit, 0)
	if err != nil {
		h.logger.Error("failed to list failed operations")
		writeError(w, http.StatusInternalServerError, "failed to list failed operations")
		return
	}
	if ops == nil {
		ops = []model.PendingOperation{}
	}

	writeJSON(w, http.StatusOK, model.ListOperationsResponse{
		Operations: ops,
		Count:      len(ops),
		Status:     model.StatusFailed,
		Limit:      limit,
	})
}

// Create handles POST /api/v1/operations
func (h *OperationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.OperationType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown operation type")
		return
	}

	op, err := h.store.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, model.ErrStoreUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "operation store unavailable")
			return
		}
		h.logger.Error("failed to create operation")
		writeError(w, http.StatusInternalServerError, "failed to create operation")
		return
	}

	writeJSON(w, http.StatusCreated, op)
}

// Get handles GET /api/v1/operations/{id}
func (h *OperationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	op, err := h.store.Get(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load operation")
		writeError(w, http.StatusInternalServerError, "failed to load operation")
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// Retry handles POST /api/v1/operations/{id}/retry. A logical retry failure
// is reported through the success flag, not an HTTP error.
func (h *OperationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	succeeded := h.orchestrator.RetryOne(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{
		"operation_id": id,
		"success":      succeeded,
	})
}

// Reset handles POST /api/v1/operations/{id}/reset
func (h *OperationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.store.Reset(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to reset operation")
		writeError(w, http.StatusInternalServerError, "failed to reset operation")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found or not in failed status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operation_id": id,
		"status":       model.StatusPending,
	})
}

// RetryAllFailed handles POST /api/v1/operations/retry-all-failed?batch_size=
func (h *OperationHandler) RetryAllFailed(w http.ResponseWriter, r *http.Request) {
	batchSize := queryInt(r, "batch_size", outbox.DefaultBatchSize, 1, 500)

	result := h.orchestrator.RetryAllFailed(r.Context(), batchSize)
	writeJSON(w, http.StatusOK, result)
}

// Process handles POST /api/v1/operations/process?batch_size=&check_alerts=
func (h *OperationHandler) Process(w http.ResponseWriter, r *http.Request) {
	batchSize := queryInt(r, "batch_size", outbox.DefaultBatchSize, 1, 500)

	checkAlerts := true
	if v := r.URL.Query().Get("check_alerts"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			checkAlerts = parsed
		}
	}

	result := h.orchestrator.ProcessBatch(r.Context(), batchSize, checkAlerts)
	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < min || parsed > max {
		return def
	}
	return parsed
}
